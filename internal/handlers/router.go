package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/filesmanager/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handlers groups the endpoint handlers mounted by NewRouter
type Handlers struct {
	App   *AppHandler
	Auth  *AuthHandler
	Users *UsersHandler
	Files *FilesHandler
}

// NewRouter mounts every route. Each route gets its own otelhttp span named
// after its method and template.
func NewRouter(h Handlers, m *metrics.Metrics, logger *slog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.Use(recoverer(logger), instrument(m, logger))

	handle := func(method, path string, fn http.HandlerFunc) {
		router.Handle(path, otelhttp.NewHandler(fn, method+" "+path)).Methods(method)
	}

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	handle(http.MethodGet, "/status", h.App.Status)
	handle(http.MethodGet, "/stats", h.App.Stats)

	handle(http.MethodPost, "/users", h.Users.Create)
	handle(http.MethodGet, "/users/me", h.Users.Me)

	handle(http.MethodGet, "/connect", h.Auth.Connect)
	handle(http.MethodGet, "/disconnect", h.Auth.Disconnect)

	handle(http.MethodPost, "/files", h.Files.Upload)
	handle(http.MethodGet, "/files", h.Files.Index)
	handle(http.MethodGet, "/files/{id}", h.Files.Show)
	handle(http.MethodPut, "/files/{id}/publish", h.Files.Publish)
	handle(http.MethodPut, "/files/{id}/unpublish", h.Files.Unpublish)
	handle(http.MethodGet, "/files/{id}/data", h.Files.Data)

	return router
}
