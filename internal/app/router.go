package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/quillcms/quill/internal/auth"
	"github.com/quillcms/quill/internal/content"
	"github.com/quillcms/quill/internal/media"
	"github.com/quillcms/quill/internal/messages"
	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthHandler     *auth.Handler
	UsersHandler    *users.Handler
	ContentHandler  *content.Handler
	MediaHandler    *media.Handler
	MessagesHandler *messages.Handler
	RBACHandler     *rbac.Handler
}

// NewRouter constructs the chi.Router with Quill defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.AuthHandler.MountRoutes(r)
	params.UsersHandler.MountRoutes(r)
	params.ContentHandler.MountRoutes(r)
	params.MediaHandler.MountRoutes(r)
	params.MessagesHandler.MountRoutes(r)
	params.RBACHandler.MountRoutes(r)

	return r
}
