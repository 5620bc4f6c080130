package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/auth"
)

// UsersHandler registers users and describes the current one
type UsersHandler struct {
	auth   *auth.Service
	logger *slog.Logger
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(svc *auth.Service, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{auth: svc, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Create handles POST /users
func (uh *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, uh.logger, apperr.ErrInvalidBody)
		return
	}

	user, err := uh.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, uh.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email})
}

// Me handles GET /users/me
func (uh *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := uh.auth.WhoAmI(r.Context(), token(r))
	if err != nil {
		writeError(w, r, uh.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email})
}
