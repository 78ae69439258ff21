// Package storage implements PersistenceStore (spec.md §4.1): a
// table-named JSON document store with per-file exclusive locks and
// atomic read-modify-write. Every other engine component reads and writes
// exclusively through this package.
//
// The teacher's own internal/data/store.go gave this package its
// cache/constructor shape (NewStore(logger, dir), mutex-guarded map), but
// its SaveOHLCV writes with a plain os.WriteFile — not atomic. The
// temp-file-then-os.Rename idiom used here instead is grounded in
// other_examples' crypto-dca-bot state persistence file.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/apperr"
)

// Document table names. The canonical store for rooms is Discussions;
// Debates is a legacy shim written for backward-compatible readers and
// never read back by this engine (spec.md §9).
const (
	TableAgents        = "agents"
	TableSectors       = "sectors"
	TableDiscussions   = "discussions"
	TableDebates       = "debates"
	TableComms         = "comms"
	TablePriceHistory  = "priceHistory"
	TableExecutionLogs = "executionLogs"
)

// Store is a directory of named JSON documents, each guarded by its own
// mutex so unrelated documents proceed in parallel while writes to the
// same document serialize.
type Store struct {
	logger *zap.Logger
	dir    string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates the storage directory (if absent) and returns a Store
// rooted at dir.
func NewStore(logger *zap.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{
		logger: logger.Named("storage"),
		dir:    dir,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) lockFor(name string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// readRaw returns the raw bytes of a document, or apperr.NotFound if the
// file does not exist. Callers must hold the document's lock.
func (s *Store) readRaw(name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NewNotFound("document", name)
		}
		return nil, apperr.NewStorageFailure(name, err)
	}
	return data, nil
}

// writeRaw atomically replaces the document's contents via temp-file then
// rename, so readers never observe a partial file. Callers must hold the
// document's lock.
func (s *Store) writeRaw(name string, data []byte) error {
	target := s.path(name)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.NewStorageFailure(name, fmt.Errorf("write temp file: %w", err))
	}
	if err := os.Rename(tmp, target); err != nil {
		// Prior state remains visible: target was never touched.
		return apperr.NewStorageFailure(name, fmt.Errorf("rename temp file: %w", err))
	}
	return nil
}

// Read returns the current raw document, or apperr.NotFound.
func (s *Store) Read(name string) ([]byte, error) {
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	return s.readRaw(name)
}

// Write unconditionally replaces the document atomically.
func (s *Store) Write(name string, data []byte) error {
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	return s.writeRaw(name, data)
}

// AtomicUpdate acquires the document's exclusive lock, reads current raw
// state (an absent file reads as "[]"), calls transform, writes the
// result, and returns it. transform must be pure with respect to the bytes
// handed to it — no I/O inside transform.
func (s *Store) AtomicUpdate(name string, transform func([]byte) ([]byte, error)) ([]byte, error) {
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.readRaw(name)
	if err != nil {
		if _, isNotFound := err.(*apperr.NotFound); isNotFound {
			current = []byte("[]")
		} else {
			return nil, err
		}
	}

	next, err := transform(current)
	if err != nil {
		return nil, err
	}

	if err := s.writeRaw(name, next); err != nil {
		return nil, err
	}
	return next, nil
}

// ReadDocument unmarshals a typed array document, treating a missing file
// as an empty slice (spec.md §4.1 edge case: callers may initialize with a
// default on NotFound — for arrays that default is simply empty).
func ReadDocument[T any](s *Store, name string) ([]T, error) {
	raw, err := s.Read(name)
	if err != nil {
		if _, isNotFound := err.(*apperr.NotFound); isNotFound {
			return []T{}, nil
		}
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.NewStorageFailure(name, fmt.Errorf("decode %s: %w", name, err))
	}
	return out, nil
}

// WriteDocument marshals and atomically writes a typed array document,
// 2-space pretty-printed for human inspection (spec.md §6).
func WriteDocument[T any](s *Store, name string, docs []T) error {
	if docs == nil {
		docs = []T{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return apperr.NewStorageFailure(name, fmt.Errorf("encode %s: %w", name, err))
	}
	return s.Write(name, data)
}

// AtomicUpdateDocument decodes the current document, calls transform, and
// atomically persists + returns the new slice. This is the only path any
// engine component should use to mutate a table: the per-file lock is held
// for transform's whole duration, and transform must not perform I/O.
func AtomicUpdateDocument[T any](s *Store, name string, transform func([]T) ([]T, error)) ([]T, error) {
	var result []T
	_, err := s.AtomicUpdate(name, func(raw []byte) ([]byte, error) {
		var current []T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &current); err != nil {
				return nil, apperr.NewStorageFailure(name, fmt.Errorf("decode %s: %w", name, err))
			}
		}

		next, err := transform(current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []T{}
		}
		result = next

		data, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return nil, apperr.NewStorageFailure(name, fmt.Errorf("encode %s: %w", name, err))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
