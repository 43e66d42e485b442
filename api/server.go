/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through zap
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web frontend

ROUTE GROUPS:
  /api/rooms/*        Room management and bills
  /api/settlements/*  Start new month
  /api/history/*      Undo archive
  /api/config         Global defaults
  /api/session        Remote sync session
  /metrics            Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.ListRooms)
			r.Post("/", h.CreateRoom)
			r.Post("/batch/preview", h.PreviewBatch)
			r.Post("/batch", h.AddRooms)
			r.Post("/delete", h.DeleteRooms)
			r.Post("/pay-day", h.SetPayDay)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRoom)
				r.Put("/", h.UpdateRoom)
				r.Delete("/", h.DeleteRoom)
				r.Post("/settle", h.SettleRoom)
				r.Post("/move-out", h.MoveOut)
				r.Post("/status", h.SetStatus)
				r.Get("/bills", h.ListBills)
				r.Get("/bills/export", h.ExportBills)
				r.Get("/bills/{billID}", h.GetBill)
			})
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Post("/", h.Settle)
			r.Get("/groups", h.PayDayGroups)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.ListHistory)
			r.Get("/{index}", h.GetArchive)
			r.Post("/{index}/restore", h.RestoreArchive)
		})

		r.Get("/config", h.GetConfig)
		r.Put("/config", h.UpdateConfig)
		r.Get("/summary", h.Summary)
		r.Get("/journal", h.Journal)
		r.Get("/export/rooms", h.ExportRooms)

		r.Get("/session", h.GetSession)
		r.Post("/session", h.StartSession)
		r.Delete("/session", h.EndSession)
	})

	return r
}

// requestLogger logs one line per request at debug level, errors at warn.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Warn("request failed", fields...)
				return
			}
			logger.Debug("request", fields...)
		})
	}
}
