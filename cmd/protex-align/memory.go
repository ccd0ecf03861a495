// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"
	"sync"

	"modernc.org/kv"

	"github.com/kortschak/protex/align"
	"github.com/kortschak/protex/internal/rank"
	"github.com/kortschak/protex/internal/store"
)

// kvMemory is the modernc.org/kv-backed implementation of
// internal/rank.Memory named in DESIGN.md: persisted per-query ranking
// state (spec.md §4.3), keyed by query index via internal/store's
// ByQueryID ordering. Reads and writes go straight through to the
// store; at CLI scale the per-query record count doesn't warrant an
// in-process cache on top of kv's own page cache.
type kvMemory struct {
	db *kv.DB
	mu sync.Mutex
}

// openQueryMemory creates (or truncates) the on-disk query-memory
// store at path.
func openQueryMemory(path string) (*kvMemory, error) {
	opts := &kv.Options{Compare: store.ByQueryID}
	db, err := kv.Create(path, opts)
	if err != nil {
		return nil, fmt.Errorf("protex-align: create query memory %s: %w", path, err)
	}
	return &kvMemory{db: db}, nil
}

func (m *kvMemory) record(query uint32) align.QueryMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.db.Get(nil, store.MarshalQueryID(query))
	if err != nil || v == nil {
		return align.QueryMemory{}
	}
	return store.UnmarshalQueryMemory(v)
}

func (m *kvMemory) put(query uint32, rec align.QueryMemory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Set(store.MarshalQueryID(query), store.MarshalQueryMemory(rec)); err != nil {
		return fmt.Errorf("protex-align: persist query memory for query %d: %w", query, err)
	}
	return nil
}

func (m *kvMemory) LowScore(query uint32) int      { return m.record(query).LowScore }
func (m *kvMemory) RankFailCount(query uint32) int { return m.record(query).RankFailCount }
func (m *kvMemory) RankFailScore(query uint32) int { return m.record(query).RankFailScore }

func (m *kvMemory) UpdateFailedCount(query uint32, count, score int) {
	rec := m.record(query)
	rec.RankFailCount = count
	rec.RankFailScore = score
	if err := m.put(query, rec); err != nil {
		log.Printf("%v", err)
	}
}

func (m *kvMemory) Update(query uint32, best int) {
	rec := m.record(query)
	if rec.LowScore == 0 || best < rec.LowScore {
		rec.LowScore = best
	}
	if err := m.put(query, rec); err != nil {
		log.Printf("%v", err)
	}
}

func (m *kvMemory) Close() error { return m.db.Close() }

var _ rank.Memory = (*kvMemory)(nil)
