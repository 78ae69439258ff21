package archive

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/discussion"
	"github.com/sectormind/engine/internal/oracle"
	"github.com/sectormind/engine/internal/registry"
	"github.com/sectormind/engine/internal/storage"
	"github.com/sectormind/engine/pkg/types"
)

type capturingSink struct {
	mu   sync.Mutex
	seen []types.DiscussionRoom
}

func (s *capturingSink) Archive(ctx context.Context, room types.DiscussionRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, room)
	return nil
}

func (s *capturingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func newClosedRoom(t *testing.T) (*discussion.Engine, string) {
	t.Helper()
	logger := zap.NewNop()
	cfg := types.DefaultEngineConfig()

	store, err := storage.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	sectors := registry.NewSectorRegistry(store, logger)
	sectors.AutoCreateManager = false
	agents := registry.NewAgentRegistry(store, oracle.DisabledOracle{}, cfg, sectors, logger)
	disc := discussion.NewEngine(store, agents, sectors, oracle.DisabledOracle{}, cfg.ConflictThreshold, logger)

	sector, err := sectors.CreateSector(context.Background(), "Closed Room Test", "CRT")
	if err != nil {
		t.Fatalf("create sector: %v", err)
	}

	room, err := disc.CreateDiscussion(sector.ID, "test room", nil)
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	if _, err := disc.StartDiscussion(room.ID); err != nil {
		t.Fatalf("start discussion: %v", err)
	}
	if _, err := disc.ForceResolve(room.ID, "test"); err != nil {
		t.Fatalf("force resolve: %v", err)
	}

	return disc, room.ID
}

func TestSweepArchivesEligibleClosedRoom(t *testing.T) {
	disc, roomID := newClosedRoom(t)
	sink := &capturingSink{}
	sweeper := NewSweeper(disc, sink, 0, zap.NewNop())

	sweeper.sweepOnce(context.Background())

	room, err := disc.GetDiscussion(roomID)
	if err != nil {
		t.Fatalf("get discussion: %v", err)
	}
	if room.Status != types.StatusArchived {
		t.Fatalf("expected ARCHIVED, got %s", room.Status)
	}
	if sink.count() != 1 {
		t.Fatalf("expected the sink to receive exactly one room, got %d", sink.count())
	}
}

func TestSweepSkipsRoomsBeforeArchiveDelayElapses(t *testing.T) {
	disc, roomID := newClosedRoom(t)
	sink := &capturingSink{}
	sweeper := NewSweeper(disc, sink, 1*time.Hour, zap.NewNop())

	sweeper.sweepOnce(context.Background())

	room, err := disc.GetDiscussion(roomID)
	if err != nil {
		t.Fatalf("get discussion: %v", err)
	}
	if room.Status != types.StatusClosed {
		t.Fatalf("expected the room to remain CLOSED before its archive delay elapses, got %s", room.Status)
	}
	if sink.count() != 0 {
		t.Fatal("expected the sink to receive nothing yet")
	}
}
