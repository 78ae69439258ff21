package archive

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/discussion"
	"github.com/sectormind/engine/pkg/types"
)

// Sweeper periodically archives every CLOSED room whose ArchiveDelay has
// elapsed, optionally uploading it to Sink first.
type Sweeper struct {
	discussion   *discussion.Engine
	sink         Sink
	archiveDelay time.Duration
	logger       *zap.Logger
	cron         *cron.Cron
}

// NewSweeper constructs a Sweeper. A nil sink is treated as NoopSink{}.
func NewSweeper(disc *discussion.Engine, sink Sink, archiveDelay time.Duration, logger *zap.Logger) *Sweeper {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Sweeper{
		discussion:   disc,
		sink:         sink,
		archiveDelay: archiveDelay,
		logger:       logger.Named("archive-sweeper"),
		cron:         cron.New(),
	}
}

// Start schedules the sweep on the given cron spec (e.g. "@every 1m") and
// begins running it in the background.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() { s.sweepOnce(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	rooms, err := s.discussion.ListDiscussions()
	if err != nil {
		s.logger.Warn("archive sweep: list discussions failed", zap.Error(err))
		return
	}

	for _, room := range rooms {
		if room.Status != types.StatusClosed {
			continue
		}
		archived, err := s.discussion.ArchiveDiscussion(room.ID, s.archiveDelay)
		if err != nil {
			continue // not yet eligible, or raced with another sweep
		}
		if err := s.sink.Archive(ctx, archived); err != nil {
			s.logger.Warn("archive sink upload failed", zap.String("discussionId", archived.ID), zap.Error(err))
		}
	}
}
