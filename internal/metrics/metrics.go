package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Menu cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_cache_hits_total",
			Help: "Total number of menu cache hits",
		},
		[]string{"cache"}, // cache: categories, bundles
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_cache_misses_total",
			Help: "Total number of menu cache misses",
		},
		[]string{"cache"},
	)

	CacheExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_cache_expirations_total",
			Help: "Total number of entries evicted on read because their TTL elapsed",
		},
		[]string{"cache"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_cache_invalidations_total",
			Help: "Total number of cache entries removed by invalidation",
		},
		[]string{"cache"},
	)

	CacheItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "menu_cache_items",
			Help: "Current number of items in the menu cache",
		},
		[]string{"cache"},
	)

	CoalescedLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_cache_coalesced_loads_total",
			Help: "Loads that attached to an in-flight fetch instead of issuing a new one",
		},
		[]string{"cache"},
	)

	DiscardedLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_cache_discarded_loads_total",
			Help: "Fetched payloads not stored because the cache was invalidated while in flight",
		},
		[]string{"cache"},
	)

	// Upstream API metrics
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_fetch_requests_total",
			Help: "Total number of requests made to the menu API",
		},
		[]string{"outcome"}, // outcome: success, network, timeout, server, parsing, unknown
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menu_fetch_duration_seconds",
			Help:    "Duration of menu API requests in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	FetchRateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "menu_fetch_rate_limit_waits_total",
			Help: "Total number of times the client waited for its rate limiter",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// Invalidation trigger metrics
	InvalidationSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_invalidation_signals_total",
			Help: "Invalidation signals received",
		},
		[]string{"kind"}, // kind: product_added, product_updated, product_deleted, category_*, poll, reconnect
	)

	PushConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "menu_push_connected",
			Help: "1 while the push channel is connected",
		},
	)

	PushReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "menu_push_reconnects_total",
			Help: "Total number of push channel reconnections",
		},
	)

	PollChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_poll_checks_total",
			Help: "Total number of last-update polls",
		},
		[]string{"result"}, // result: unchanged, changed, error
	)

	// View metrics
	Renders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_view_renders_total",
			Help: "Total number of view renders",
		},
		[]string{"view", "status"}, // view: categories, category; status: ok, error
	)

	RendersCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "menu_view_renders_coalesced_total",
			Help: "Re-render requests dropped because one was already pending for the view",
		},
	)

	// Display surface metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active display WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to displays",
		},
	)

	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"},
	)
)
