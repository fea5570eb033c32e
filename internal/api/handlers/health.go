package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/menulive/internal/cache"
	"github.com/onnwee/menulive/internal/circuitbreaker"
)

// HealthSources supply the state reported by /health. Any field may be nil.
type HealthSources struct {
	Breaker    func() circuitbreaker.State
	Mode       func() string
	CacheStats func() map[string]cache.Stats
	Clients    func() int
	ActiveView func() string
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Upstream    string                 `json:"upstream,omitempty"`
	TriggerMode string                 `json:"trigger_mode,omitempty"`
	ActiveView  string                 `json:"active_view,omitempty"`
	Displays    int                    `json:"displays"`
	Caches      map[string]cache.Stats `json:"caches,omitempty"`
}

// Health returns a handler reporting liveness. The service stays "ok" while the
// upstream breaker is open since cached views can still be served; it reports
// "degraded" instead.
func Health(src HealthSources) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if src.Breaker != nil {
			state := src.Breaker()
			resp.Upstream = state.String()
			if state == circuitbreaker.StateOpen {
				resp.Status = "degraded"
			}
		}
		if src.Mode != nil {
			resp.TriggerMode = src.Mode()
		}
		if src.ActiveView != nil {
			resp.ActiveView = src.ActiveView()
		}
		if src.Clients != nil {
			resp.Displays = src.Clients()
		}
		if src.CacheStats != nil {
			resp.Caches = src.CacheStats()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
