// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"context"
	"sync"
)

// MemoryJournalStore keeps journals in process memory. Journals are lost
// on exit.
type MemoryJournalStore struct {
	mu       sync.RWMutex
	journals map[string]*Journal
}

// NewMemoryJournalStore creates an empty store.
func NewMemoryJournalStore() *MemoryJournalStore {
	return &MemoryJournalStore{journals: make(map[string]*Journal)}
}

// SaveJournal implements JournalStore.
func (s *MemoryJournalStore) SaveJournal(_ context.Context, j *Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journals[j.ApplyID] = j
	return nil
}

// LoadJournal implements JournalStore.
func (s *MemoryJournalStore) LoadJournal(_ context.Context, applyID string) (*Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.journals[applyID]
	if !ok {
		return nil, ErrJournalNotFound
	}
	return j, nil
}

// DeleteJournal implements JournalStore.
func (s *MemoryJournalStore) DeleteJournal(_ context.Context, applyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.journals, applyID)
	return nil
}

var _ JournalStore = (*MemoryJournalStore)(nil)
