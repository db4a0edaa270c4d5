package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/feynman-tutor/backend/internal/config"
	"github.com/zhouzirui/feynman-tutor/backend/internal/handler/chat"
	"github.com/zhouzirui/feynman-tutor/backend/internal/handler/health"
	middlewarePkg "github.com/zhouzirui/feynman-tutor/backend/internal/middleware"
	"github.com/zhouzirui/feynman-tutor/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(serverCfg config.ServerConfig, tutorSvc chat.TutorService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(serverCfg.AllowedOrigins))

	health.New().RegisterRoutes(r)
	chat.New(tutorSvc).RegisterRoutes(r)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
