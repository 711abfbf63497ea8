// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists refactoring plans and apply journals in BadgerDB.
//
// Plans live under the "plan:" key prefix and journals under "journal:",
// both as JSON. Journals may carry a retention TTL; plans are kept until
// deleted.
//
// # Thread Safety
//
// A Store is safe for concurrent use.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

const (
	planPrefix    = "plan:"
	journalPrefix = "journal:"
)

// ErrNotFound is returned for unknown plan or journal ids.
var ErrNotFound = errors.New("not found")

// Store is the badger-backed plan and journal store.
type Store struct {
	db               *badger.DB
	gc               *gcRunner
	journalRetention time.Duration
	logger           *slog.Logger
}

// Open opens a store with cfg.
//
// # Outputs
//
//	*Store - Call Close when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:               db,
		journalRetention: cfg.JournalRetention,
		logger:           slog.Default().With("component", "store.Store"),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, s.logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		s.gc = runner
		runner.start()
	}
	return s, nil
}

// OpenInMemory opens a store that keeps nothing on disk.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// SavePlan stores p under its ID, replacing any previous version.
func (s *Store) SavePlan(ctx context.Context, p *plan.Plan) error {
	if p == nil || p.ID == "" {
		return errors.New("plan must have an id")
	}
	return s.put(ctx, planPrefix+p.ID, p, 0)
}

// LoadPlan returns the plan with id, or ErrNotFound.
func (s *Store) LoadPlan(ctx context.Context, id string) (*plan.Plan, error) {
	var p plan.Plan
	if err := s.get(ctx, planPrefix+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns every stored plan, oldest first.
func (s *Store) ListPlans(ctx context.Context) ([]*plan.Plan, error) {
	var plans []*plan.Plan
	err := s.scan(ctx, planPrefix, func(val []byte) error {
		var p plan.Plan
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		plans = append(plans, &p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(plans, func(i, j int) bool {
		a, b := plans[i].Metadata.CreatedAt, plans[j].Metadata.CreatedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return plans[i].ID < plans[j].ID
	})
	return plans, nil
}

// DeletePlan removes the plan with id. Unknown ids return ErrNotFound.
func (s *Store) DeletePlan(ctx context.Context, id string) error {
	return s.delete(ctx, planPrefix+id)
}

// SaveJournal implements apply.JournalStore.
func (s *Store) SaveJournal(ctx context.Context, j *apply.Journal) error {
	if j == nil || j.ApplyID == "" {
		return errors.New("journal must have an apply id")
	}
	return s.put(ctx, journalPrefix+j.ApplyID, j, s.journalRetention)
}

// LoadJournal implements apply.JournalStore.
func (s *Store) LoadJournal(ctx context.Context, applyID string) (*apply.Journal, error) {
	var j apply.Journal
	if err := s.get(ctx, journalPrefix+applyID, &j); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", apply.ErrJournalNotFound, applyID)
		}
		return nil, err
	}
	return &j, nil
}

// DeleteJournal implements apply.JournalStore.
func (s *Store) DeleteJournal(ctx context.Context, applyID string) error {
	err := s.delete(ctx, journalPrefix+applyID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *Store) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *Store) delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
}

func (s *Store) scan(ctx context.Context, prefix string, fn func(val []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ apply.JournalStore = (*Store)(nil)
