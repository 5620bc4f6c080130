package handlers

import (
	"log/slog"
	"net/http"

	"github.com/maneesh/filesmanager/internal/auth"
)

// AuthHandler opens and closes sessions
type AuthHandler struct {
	auth   *auth.Service
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Connect handles GET /connect with Basic credentials
func (ah *AuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	token, err := ah.auth.Login(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, ah.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// Disconnect handles GET /disconnect
func (ah *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := ah.auth.Logout(r.Context(), token(r)); err != nil {
		writeError(w, r, ah.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
