package metrics

import (
	"context"
	"time"
)

// Sizer reports the number of live items held by a cache.
type Sizer interface {
	Len() int
}

// Collector periodically samples cache sizes into Prometheus gauges.
type Collector struct {
	sources  map[string]Sizer
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a new metrics collector. sources maps the "cache" label to a sizer.
func NewCollector(sources map[string]Sizer, interval time.Duration) *Collector {
	return &Collector{
		sources:  sources,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	close(c.stop)
}

// Collect samples every source once.
func (c *Collector) Collect() {
	for name, src := range c.sources {
		if src == nil {
			MetricsCollectionErrors.WithLabelValues(name).Inc()
			CacheItems.WithLabelValues(name).Set(-1) // Signal stale data
			continue
		}
		CacheItems.WithLabelValues(name).Set(float64(src.Len()))
	}
}
