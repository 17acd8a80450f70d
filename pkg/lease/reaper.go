package lease

import (
	"time"

	"dhcpd-go/pkg/metrics"
	"github.com/rs/zerolog"
)

// Reaper periodically removes expired leases from a store.
type Reaper struct {
	store    *Store
	interval time.Duration
	recorder metrics.Recorder
	logger   zerolog.Logger
	ticker   *time.Ticker
	quit     chan struct{}
}

// NewReaper creates a reaper. A zero interval defaults to 60s.
func NewReaper(store *Store, interval time.Duration, recorder metrics.Recorder, logger zerolog.Logger) *Reaper {
	if interval == 0 {
		interval = 60 * time.Second
	}
	return &Reaper{
		store:    store,
		interval: interval,
		recorder: recorder,
		logger:   logger.With().Str("component", "reaper").Logger(),
		quit:     make(chan struct{}),
	}
}

// Start begins the reaping process in a background goroutine.
func (r *Reaper) Start() {
	r.ticker = time.NewTicker(r.interval)
	go r.run()
	r.logger.Info().Str("interval", r.interval.String()).Msg("Lease reaper started")
}

// Stop terminates the reaping process.
func (r *Reaper) Stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	close(r.quit)
	r.logger.Info().Msg("Lease reaper stopped")
}

func (r *Reaper) run() {
	for {
		select {
		case <-r.ticker.C:
			r.reap()
		case <-r.quit:
			return
		}
	}
}

func (r *Reaper) reap() {
	removed := r.store.CleanupExpired()
	if removed > 0 {
		r.recorder.AddToCounter("dhcp_leases_expired_total", nil, float64(removed))
		r.logger.Info().Int("count", removed).Msg("Reaped expired leases")
	}
}
