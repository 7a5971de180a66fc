package call

import (
	"context"
	"log/slog"
	"time"

	"chat-platform/internal/apperr"
)

// Sweeper finalizes durable calls stuck in INITIATING/RINGING past the
// ring window. Directory TTL expiry only makes the cached snapshot
// invisible; without this job the durable record would stay RINGING
// forever after a gateway crash mid-ring.
type Sweeper struct {
	svc      *Service
	repo     Repository
	log      *slog.Logger
	interval time.Duration
	ringTTL  time.Duration
	clock    func() time.Time
}

const sweepBatchSize = 100

func NewSweeper(svc *Service, repo Repository, log *slog.Logger, interval, ringTTL time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		svc:      svc,
		repo:     repo,
		log:      log,
		interval: interval,
		ringTTL:  ringTTL,
		clock:    time.Now,
	}
}

// Run sweeps until ctx is canceled. Intended to be started as a goroutine
// from main.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep finalizes one batch of stale ringing calls to MISSED through the
// normal state machine, so missed counters and notifications fire the
// same way as a live MISSED transition.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.clock().UTC().Add(-s.ringTTL)
	ids, err := s.repo.ListStaleRinging(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.log.Error("stale ring scan failed", "err", err)
		return
	}
	for _, id := range ids {
		if _, err := s.svc.UpdateStatus(ctx, id, StatusMissed, ""); err != nil {
			// A racer may have finalized it between scan and transition.
			if apperr.Is(err, apperr.CodeNotFound) {
				continue
			}
			s.log.Warn("stale ring finalize failed", "call_id", id, "err", err)
		}
	}
}
