// Package watchdog implements DiscussionWatchdog (spec.md §4.8): the
// periodic sweep that force-resolves any IN_PROGRESS room that has made
// no progress for longer than STALL_THRESHOLD_MS, so a discussion a
// failed oracle or an empty room left stuck never blocks the sector
// forever.
package watchdog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/discussion"
	"github.com/sectormind/engine/internal/metrics"
	"github.com/sectormind/engine/pkg/types"
)

// Watchdog sweeps every discussion room once per invocation.
type Watchdog struct {
	discussion     *discussion.Engine
	stallThreshold time.Duration
	logger         *zap.Logger
	metrics        *metrics.Collectors
}

// New constructs a Watchdog.
func New(disc *discussion.Engine, stallThreshold time.Duration, logger *zap.Logger) *Watchdog {
	return &Watchdog{discussion: disc, stallThreshold: stallThreshold, logger: logger.Named("watchdog")}
}

// SetMetrics wires a collectors instance after construction.
func (w *Watchdog) SetMetrics(m *metrics.Collectors) {
	w.metrics = m
}

// Sweep force-resolves every room that has sat IN_PROGRESS without an
// update for longer than stallThreshold. One room's failure never
// prevents the sweep from examining the rest.
func (w *Watchdog) Sweep(ctx context.Context) error {
	rooms, err := w.discussion.ListDiscussions()
	if err != nil {
		return err
	}

	for _, room := range rooms {
		if room.Status != types.StatusInProgress {
			continue
		}
		if time.Since(room.UpdatedAt) < w.stallThreshold {
			continue
		}
		if _, err := w.discussion.ForceResolve(room.ID, "stalled"); err != nil {
			w.logger.Warn("failed to force-resolve stalled discussion, continuing", zap.String("discussionId", room.ID), zap.Error(err))
			continue
		}
		if w.metrics != nil {
			w.metrics.DiscussionsStalled.Inc()
		}
	}
	return nil
}
