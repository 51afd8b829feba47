// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger provides the BadgerDB-backed layer store.
//
// Layer records are stored under 8-byte big-endian keys so that key
// iteration yields ascending layer IDs; values are the tagged JSON layer
// envelope. ID assignment is serialized behind a single writer lock
// while point reads proceed concurrently on snapshot transactions.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/molstack/molstack/services/workspace/layer"
	"github.com/molstack/molstack/services/workspace/storage"
)

var (
	layerPrefix = []byte("l/")
	seqKey      = []byte("m/next_id")
)

// Config holds configuration for a BadgerDB-backed layer store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent databases.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5 (GC when 50% of value log is garbage).
	GCDiscardRatio float64
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing: no disk
// I/O, no sync, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the BadgerDB-backed layer store.
type Store struct {
	db       *badger.DB
	gcRunner *gcRunner

	// writeMu serializes ID assignment so batch creates always return
	// non-overlapping contiguous ranges.
	writeMu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// Open creates and opens a layer store with the given configuration.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist and
//	starts the GC runner when GCInterval is configured.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if path is invalid or database cannot be opened.
//
// Thread Safety: The returned *Store is safe for concurrent use.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcRunner = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gcRunner.start()
	}
	return s, nil
}

// OpenInMemory opens an in-memory store for testing. Data is lost when
// closed.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops the GC runner and closes the database.
func (s *Store) Close() error {
	if s.gcRunner != nil {
		s.gcRunner.stop()
	}
	return s.db.Close()
}

func layerKey(id uint64) []byte {
	key := make([]byte, len(layerPrefix)+8)
	copy(key, layerPrefix)
	binary.BigEndian.PutUint64(key[len(layerPrefix):], id)
	return key
}

// CreateLayers appends a batch of layers in one transaction and returns
// the assigned contiguous ID range [start, end).
//
// Thread Safety: Safe for concurrent use; writers are serialized.
func (s *Store) CreateLayers(ctx context.Context, layers []layer.Layer) (uint64, uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, fmt.Errorf("context cancelled: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var start, end uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		next, err := readSeq(txn)
		if err != nil {
			return err
		}
		start, end = next, next+uint64(len(layers))

		for i, l := range layers {
			value, err := layer.Marshal(l)
			if err != nil {
				return err
			}
			if err := txn.Set(layerKey(next+uint64(i)), value); err != nil {
				return fmt.Errorf("write layer %d: %w", next+uint64(i), err)
			}
		}
		return writeSeq(txn, end)
	})
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ReadLayer returns the layer stored under id.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) ReadLayer(ctx context.Context, id uint64) (layer.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var l layer.Layer
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(layerKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &storage.NoSuchLayerError{ID: id}
		}
		if err != nil {
			return fmt.Errorf("read layer %d: %w", id, err)
		}
		return item.Value(func(value []byte) error {
			l, err = layer.Unmarshal(value)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// LayerIDs returns every stored layer ID in ascending order.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) LayerIDs(ctx context.Context) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var ids []uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = layerPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			ids = append(ids, binary.BigEndian.Uint64(key[len(layerPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// WriteLayer overwrites an existing layer in place. The "unreferenced by
// any stack" guard belongs to the caller.
//
// Thread Safety: Safe for concurrent use; writers are serialized.
func (s *Store) WriteLayer(ctx context.Context, id uint64, l layer.Layer) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		key := layerKey(id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return &storage.NoSuchLayerError{ID: id}
		} else if err != nil {
			return fmt.Errorf("read layer %d: %w", id, err)
		}
		value, err := layer.Marshal(l)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
}

// RemoveLayer deletes a layer record.
//
// Thread Safety: Safe for concurrent use; writers are serialized.
func (s *Store) RemoveLayer(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		key := layerKey(id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return &storage.NoSuchLayerError{ID: id}
		} else if err != nil {
			return fmt.Errorf("read layer %d: %w", id, err)
		}
		return txn.Delete(key)
	})
}

func readSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(seqKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read id sequence: %w", err)
	}
	var next uint64
	err = item.Value(func(value []byte) error {
		if len(value) != 8 {
			return fmt.Errorf("corrupt id sequence value of %d bytes", len(value))
		}
		next = binary.BigEndian.Uint64(value)
		return nil
	})
	return next, err
}

func writeSeq(txn *badger.Txn, next uint64) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, next)
	if err := txn.Set(seqKey, value); err != nil {
		return fmt.Errorf("write id sequence: %w", err)
	}
	return nil
}

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	// ErrNoRewrite means no GC was needed, not an error.
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		if r.logger != nil {
			r.logger.Debug("badger value log GC completed")
		}
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		if r.logger != nil {
			r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
		}
	}
}
