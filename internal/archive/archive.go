// Package archive implements the optional cold-storage path for
// discussion rooms once ArchiveDiscussion moves them to ARCHIVED
// (spec.md §4.5): an S3Sink uploads the room's JSON representation to an
// operator-configured bucket, and a cron-scheduled sweep drives the
// CLOSED -> ARCHIVED transition once ARCHIVE_DELAY_MS has elapsed.
package archive

import (
	"context"
	"encoding/json"

	"github.com/sectormind/engine/pkg/types"
)

// Sink persists an archived discussion room somewhere durable outside the
// engine's own JSON document store. A nil Sink is valid: rooms still
// reach ARCHIVED, they simply are not additionally uploaded anywhere.
type Sink interface {
	Archive(ctx context.Context, room types.DiscussionRoom) error
}

// NoopSink discards every room. Used when no cold-storage bucket is
// configured.
type NoopSink struct{}

// Archive implements Sink.
func (NoopSink) Archive(ctx context.Context, room types.DiscussionRoom) error { return nil }

func marshalRoom(room types.DiscussionRoom) ([]byte, error) {
	return json.MarshalIndent(room, "", "  ")
}
