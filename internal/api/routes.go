package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/menulive/internal/api/handlers"
	"github.com/onnwee/menulive/internal/middleware"
	"github.com/onnwee/menulive/internal/metrics"
)

// Deps are the collaborators the display routes are built from.
type Deps struct {
	Display     handlers.Display
	Hub         *handlers.Hub
	Health      handlers.HealthSources
	RateLimiter *middleware.RateLimiter // guards /menu/refresh; nil disables
	CORS        *middleware.CORSConfig
}

// NewRouter wires the display server routes and middleware.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.RecoverWithSentry, middleware.CORS(d.CORS),
		middleware.SecurityHeaders, middleware.LimitRequestBody, instrument)

	menuHandler := handlers.NewMenuHandler(d.Display)
	cors := d.CORS
	if cors == nil {
		cors = middleware.DefaultCORSConfig()
	}
	ws := handlers.NewWebSocketHandler(d.Hub, d.Display.Current, cors.AllowedOrigins)

	// Registered ahead of the fragment subrouter so the upgrade keeps the raw,
	// hijackable writer.
	r.HandleFunc("/menu/ws", ws.HandleWebSocket).Methods(http.MethodGet)

	fragments := r.PathPrefix("/menu").Subrouter()
	fragments.Use(middleware.ETag, middleware.Compress)
	fragments.HandleFunc("", menuHandler.GetCurrent).Methods(http.MethodGet)
	fragments.HandleFunc("/categories", menuHandler.GetCategories).Methods(http.MethodGet)
	fragments.HandleFunc("/categories/{id}", menuHandler.GetCategoryProducts).Methods(http.MethodGet)
	fragments.HandleFunc("/lang/{lang}", menuHandler.SetLanguage).Methods(http.MethodPost)

	var refresh http.Handler = http.HandlerFunc(menuHandler.Refresh)
	if d.RateLimiter != nil {
		refresh = d.RateLimiter.Limit(refresh)
	}
	fragments.Handle("/refresh", refresh).Methods(http.MethodPost)

	r.HandleFunc("/health", handlers.Health(d.Health)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request durations by route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		endpoint := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		metrics.APIRequestDuration.WithLabelValues(endpoint, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
