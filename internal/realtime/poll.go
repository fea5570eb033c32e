package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/metrics"
)

// LastUpdater reports the server's last menu mutation timestamp.
type LastUpdater interface {
	LastUpdate(ctx context.Context) (int64, error)
}

// Poller detects server-side changes by comparing last-update timestamps.
// The first value seen is the baseline; only a strictly newer value is a change.
type Poller struct {
	src      LastUpdater
	interval time.Duration
	log      *slog.Logger

	last int64
	seen bool
}

// NewPoller creates a poller checking src every interval.
func NewPoller(src LastUpdater, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{src: src, interval: interval, log: logger.WithComponent("realtime")}
}

// Check fetches the timestamp once and reports whether it moved forward.
// Check is not safe for concurrent use; Run is its only caller in production.
func (p *Poller) Check(ctx context.Context) (bool, error) {
	ts, err := p.src.LastUpdate(ctx)
	if err != nil {
		metrics.PollChecks.WithLabelValues("error").Inc()
		return false, err
	}
	if !p.seen {
		p.seen = true
		p.last = ts
		metrics.PollChecks.WithLabelValues("baseline").Inc()
		return false, nil
	}
	if ts <= p.last {
		metrics.PollChecks.WithLabelValues("unchanged").Inc()
		return false, nil
	}
	p.log.Info("menu changed on server", "previous", p.last, "current", ts)
	p.last = ts
	metrics.PollChecks.WithLabelValues("changed").Inc()
	return true, nil
}

// Run checks immediately and then every interval, calling onChange for each
// detected change. Failures are logged and wait for the next tick.
func (p *Poller) Run(ctx context.Context, onChange func()) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		changed, err := p.Check(ctx)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				p.log.Warn("poll failed", "error", err)
			}
		case changed:
			onChange()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
