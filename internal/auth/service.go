// Package auth validates credentials and manages session tokens.
package auth

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/metrics"
	"github.com/maneesh/filesmanager/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("files-manager-auth")

// SessionTTL is how long a token stays valid after login
const SessionTTL = 24 * time.Hour

// UserStore is the part of the metadata store holding users
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByCredentials(ctx context.Context, email, passwordHash string) (*models.User, error)
}

// SessionStore maps tokens to user ids with an expiry
type SessionStore interface {
	SetSession(ctx context.Context, token, userID string, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (string, error)
	DeleteSession(ctx context.Context, token string) error
}

// Service issues, resolves and revokes session tokens
type Service struct {
	users    UserStore
	sessions SessionStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService creates the authentication service; m may be nil
func NewService(users UserStore, sessions SessionStore, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
	}
}

// HashPassword returns the stored digest of password
func HashPassword(password string) string {
	sum := sha1.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// ParseBasicAuth decodes an "Authorization: Basic ..." header value
func ParseBasicAuth(header string) (email, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	email, password, ok = strings.Cut(string(decoded), ":")
	if !ok || email == "" || password == "" {
		return "", "", false
	}
	return email, password, true
}

// Register creates a user with email and password
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer span.End()

	if email == "" {
		return nil, apperr.ErrMissingEmail
	}
	if password == "" {
		return nil, apperr.ErrMissingPassword
	}

	_, err := s.users.FindUserByEmail(ctx, email)
	if err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNoRecord) {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user := &models.User{Email: email, PasswordHash: HashPassword(password)}
	if err := s.users.CreateUser(ctx, user); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login exchanges Basic credentials for a new session token
func (s *Service) Login(ctx context.Context, authorization string) (string, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	email, password, ok := ParseBasicAuth(authorization)
	if !ok {
		s.metrics.SessionEvent("rejected")
		return "", apperr.ErrUnauthorized
	}

	user, err := s.users.FindUserByCredentials(ctx, email, HashPassword(password))
	if errors.Is(err, apperr.ErrNoRecord) {
		s.metrics.SessionEvent("rejected")
		return "", apperr.ErrUnauthorized
	} else if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	token := uuid.New().String()
	if err := s.sessions.SetSession(ctx, token, user.ID, SessionTTL); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	s.metrics.SessionEvent("login")
	s.logger.InfoContext(ctx, "session opened", "user_id", user.ID)
	return token, nil
}

// Logout revokes token
func (s *Service) Logout(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer span.End()

	if token == "" {
		return apperr.ErrUnauthorized
	}

	err := s.sessions.DeleteSession(ctx, token)
	if errors.Is(err, apperr.ErrNoRecord) {
		return apperr.ErrUnauthorized
	} else if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.metrics.SessionEvent("logout")
	return nil
}

// ResolveSession returns the user id behind token. The expiry is not extended.
func (s *Service) ResolveSession(ctx context.Context, token string) (string, error) {
	ctx, span := tracer.Start(ctx, "auth.resolve_session")
	defer span.End()

	if token == "" {
		return "", apperr.ErrUnauthorized
	}

	userID, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, apperr.ErrNoRecord) {
		return "", apperr.ErrUnauthorized
	} else if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to get session: %w", err)
	}

	span.SetAttributes(attribute.String("user_id", userID))
	return userID, nil
}

// WhoAmI returns the user owning token
func (s *Service) WhoAmI(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, apperr.ErrNoRecord) {
		return nil, apperr.ErrUnauthorized
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
