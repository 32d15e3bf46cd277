package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/projectsamarth/samarth/internal/api/handlers"
	"github.com/projectsamarth/samarth/internal/api/middleware"
	"github.com/projectsamarth/samarth/internal/auth"
	"github.com/projectsamarth/samarth/internal/config"
	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/queue"
	"github.com/projectsamarth/samarth/internal/session"
)

// Deps are the services the HTTP layer serves. DB, Redis and Queue may be
// nil.
type Deps struct {
	Config   *config.Config
	Index    *index.Handle
	Expect   index.Expect
	Pipeline handlers.Asker
	Sessions *session.Manager
	Queue    queue.Enqueuer
	DB       handlers.Pinger
	Redis    handlers.Pinger
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{mux: chi.NewRouter(), deps: deps}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigin))

	if cfg.Server.RateLimit > 0 {
		rl := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		r.Use(rl.Limit)
	}

	health := handlers.NewHealthHandler(rt.deps.Index, rt.deps.DB, rt.deps.Redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	var jwt *auth.JWTMiddleware
	if cfg.Auth.JWTSecret != "" {
		jwt = auth.NewJWTMiddleware(cfg.Auth.JWTSecret)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if jwt != nil {
			r.Use(jwt.Authenticate)
		}

		sessH := handlers.NewSessionHandler(rt.deps.Sessions)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessH.Create)
			r.Get("/{id}", sessH.Get)
			r.Delete("/{id}", sessH.Delete)
			r.Post("/{id}/messages", sessH.PostMessage)
		})

		ragH := handlers.NewRAGHandler(rt.deps.Pipeline)
		r.Post("/ask", ragH.Ask)
		r.Post("/ask/stream", ragH.AskStream)
		r.Post("/search", ragH.Search)

		adminH := handlers.NewAdminHandler(rt.deps.Index, rt.deps.Queue, cfg.Index.Path, rt.deps.Expect)
		r.Route("/admin", func(r chi.Router) {
			if jwt != nil {
				r.Use(auth.RequireRole(auth.RoleAdmin))
			}
			r.Get("/index", adminH.IndexStats)
			r.Post("/index/rebuild", adminH.Rebuild)
			r.Post("/index/reload", adminH.Reload)
		})
	})

	return r
}
