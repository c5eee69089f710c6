package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes bundles everything the router mounts. Nil optional handlers leave
// their routes out.
type Routes struct {
	Detect  *DetectHandler
	Logs    *LogsHandler
	Stream  *StreamHandler
	WS      http.HandlerFunc // optional
	Metrics http.Handler     // optional
	Proxy   http.Handler     // optional, mounted under /p
}

// NewRouter builds the chi router for the detection service.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	// Health check
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})

	r.Post("/v1/detect", rt.Detect.Detect)
	r.Get("/v1/rules", rt.Detect.Rules)

	r.Route("/api", func(api chi.Router) {
		api.Post("/logs", rt.Logs.Ingest)
		api.Get("/logs", rt.Logs.List)
		api.Get("/logs/{eventID}", rt.Logs.Get)
		api.Get("/stats", rt.Logs.Stats)
		api.Get("/stream/events", rt.Stream.HandleSSE)
	})

	if rt.WS != nil {
		r.Get("/ws", rt.WS)
	}
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}
	if rt.Proxy != nil {
		r.Handle("/p", rt.Proxy)
		r.Handle("/p/*", rt.Proxy)
	}
	return r
}

// corsMiddleware adds permissive CORS headers for dashboard clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
