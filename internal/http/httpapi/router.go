package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/oclite/studio/internal/http/handlers"
	"github.com/oclite/studio/internal/infra"
	"github.com/oclite/studio/internal/middleware"
	"github.com/oclite/studio/internal/telemetry"
)

// Options tunes the router's transport-level protections.
type Options struct {
	Logger         infra.Logger
	AllowedOrigins []string
	RequestsPerMin int
}

// NewRouter wires the HTTP surface. The per-IP limiter here protects the
// transport; the per-user cloud-operation limiter lives in the pipeline.
func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(opts.Logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}
	if opts.RequestsPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RequestsPerMin, time.Minute))
	}

	r.Get("/healthz", app.Health)
	r.Method(stdhttp.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/images/generate", app.Generate)

		r.Route("/gallery", func(r chi.Router) {
			r.Get("/", app.ListGallery)
			r.Get("/stats", app.GalleryStats)
			r.Get("/export", app.ExportLocal)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", app.CurrentSession)
			r.Post("/signin", app.SignIn)
			r.Post("/signout", app.SignOut)
		})

		r.Get("/limit", app.Limit)
	})

	return r
}
