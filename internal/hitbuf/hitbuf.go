// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hitbuf implements the seed hit buffer and query-range
// partitioner of spec.md §4.1: a source of SeedHit batches, each
// spanning a contiguous query range, bounded by a byte budget. Load
// reads the next batch synchronously in the caller's goroutine and
// parks it on a one-slot channel for Retrieve; it does not overlap
// that I/O with the caller's processing of the previous batch.
//
// Two backends are provided: MemBuffer, a slice-backed buffer for
// small inputs and tests, and DiskBuffer, backed by modernc.org/kv,
// grounded on the teacher's use of that store for the on-disk hit
// databases built by cmd/ins/blast.go's runBlastTabular.
package hitbuf

import (
	"fmt"

	"modernc.org/kv"

	"github.com/kortschak/protex/align"
	"github.com/kortschak/protex/internal/store"
)

// MaxBytes computes the batch byte budget from spec.md §4.1:
//
//	max_bytes = min(chunkSize*1e10*2/indexChunks/3, tracePtFetchSize)
//	         or max(..., memoryLimit*1e9) when memoryLimit is set.
func MaxBytes(cfg align.Config) int64 {
	maxSize := int64(cfg.ChunkSize * 1e9 * 10 * 2 / float64(max(cfg.IndexChunks, 1)) / 3)
	if cfg.TracePtFetchSize > 0 && cfg.TracePtFetchSize < maxSize {
		maxSize = cfg.TracePtFetchSize
	}
	if cfg.MemoryLimit != 0 {
		floor := int64(cfg.MemoryLimit * 1e9)
		if floor > maxSize {
			maxSize = floor
		}
	}
	return maxSize
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// batch is one query-range-bounded group of hits.
type batch struct {
	hits                 []align.SeedHit
	queryBegin, queryEnd int
}

// MemBuffer is a slice-backed HitSource: Retrieve hands back
// pre-chunked batches already split by query range. It implements
// align.HitSource and overlaps "loading" the next batch (a no-op
// copy here, since the data is already resident) with the caller
// processing the current one via a single-buffered channel, matching
// the single-producer/single-consumer shape spec.md §9 calls for
// even when there is no real I/O to overlap.
type MemBuffer struct {
	batches []batch
	next    int
	pending chan batch
}

// NewMemBuffer returns a MemBuffer over hits, a single batch spanning
// the given query range, already sorted by subject offset being the
// loader's job, not the buffer's.
func NewMemBuffer(hits []align.SeedHit, queryBegin, queryEnd int) *MemBuffer {
	return &MemBuffer{
		batches: []batch{{hits: hits, queryBegin: queryBegin, queryEnd: queryEnd}},
		pending: make(chan batch, 1),
	}
}

// NewMemBufferBatches returns a MemBuffer over pre-split batches, so
// that successive Load/Retrieve calls hand back one batch each.
func NewMemBufferBatches(batches [][]align.SeedHit, ranges [][2]int) *MemBuffer {
	b := &MemBuffer{pending: make(chan batch, 1)}
	for i, h := range batches {
		b.batches = append(b.batches, batch{hits: h, queryBegin: ranges[i][0], queryEnd: ranges[i][1]})
	}
	return b
}

// Load implements align.HitSource: it prefetches the next resident
// batch onto the pending channel, ignoring maxBytes since MemBuffer
// holds everything in memory already.
func (b *MemBuffer) Load(maxBytes int64) {
	if b.next >= len(b.batches) {
		return
	}
	bt := b.batches[b.next]
	b.next++
	b.pending <- bt
}

// Retrieve implements align.HitSource.
func (b *MemBuffer) Retrieve() (hits []align.SeedHit, queryBegin, queryEnd int, ok bool) {
	select {
	case bt := <-b.pending:
		return bt.hits, bt.queryBegin, bt.queryEnd, true
	default:
		return nil, 0, 0, false
	}
}

// DiskBuffer is a modernc.org/kv-backed HitSource: hits are persisted
// in an ordered on-disk store keyed by (query, subject, seq) via
// internal/store, and Retrieve walks the store in key order,
// returning one query-range batch at a time bounded by maxBytes.
//
// Grounded on cmd/ins/blast.go's runBlastTabular, which opens a
// modernc.org/kv store with a custom Compare function and commits
// records in batches of 100 inside explicit transactions; DiskBuffer
// follows the same batched-transaction idiom for writes.
type DiskBuffer struct {
	db       *kv.DB
	cursor   *kv.Enumerator
	curQuery uint32
	hasCur   bool
	curKey   store.HitKey
	curVal   []byte
	done     bool

	pending chan batch
}

// NewDiskBuffer creates (or truncates) an on-disk seed-hit store at
// path.
func NewDiskBuffer(path string) (*DiskBuffer, error) {
	opts := &kv.Options{Compare: store.ByQuerySubject}
	db, err := kv.Create(path, opts)
	if err != nil {
		return nil, fmt.Errorf("hitbuf: create %s: %w", path, err)
	}
	return &DiskBuffer{db: db, pending: make(chan batch, 1)}, nil
}

// Put persists hits for query under subject-offset-ordered keys. It
// is the writer side of the buffer, used by whatever upstream
// indexing component feeds protex (out of scope per spec.md §1); in
// this module cmd/protex-align's loadSeedHits calls it.
func (b *DiskBuffer) Put(query uint32, hits []align.SeedHit) error {
	if err := b.db.BeginTransaction(); err != nil {
		return fmt.Errorf("hitbuf: begin tx: %w", err)
	}
	for i, h := range hits {
		k := store.HitKey{Query: query, Subject: uint64(h.SubjectOffset), Seq: uint32(i)}
		if err := b.db.Set(store.MarshalHitKey(k), store.MarshalHitValue(h)); err != nil {
			_ = b.db.Rollback()
			return fmt.Errorf("hitbuf: set: %w", err)
		}
	}
	return b.db.Commit()
}

// Close releases the underlying store.
func (b *DiskBuffer) Close() error { return b.db.Close() }

// Load implements align.HitSource: it walks the on-disk store
// starting from the cursor and assembles the next contiguous
// query-range batch, bounded by maxBytes (measured as hit count *
// average hit size, an acceptable approximation since SeedHit is
// fixed-width).
func (b *DiskBuffer) Load(maxBytes int64) {
	if b.done {
		return
	}
	const hitSize = 24 // approx marshaled size of one SeedHit entry
	budget := maxBytes / hitSize
	if budget <= 0 {
		budget = 1
	}

	if b.cursor == nil {
		it, err := b.db.SeekFirst()
		if err != nil {
			b.done = true
			return
		}
		b.cursor = it
		b.advance()
	}
	if !b.hasCur {
		b.done = true
		return
	}

	bt := batch{queryBegin: int(b.curQuery)}
	for b.hasCur && int64(len(bt.hits)) < budget {
		h := store.UnmarshalHitValue(b.curKey, b.curVal)
		bt.hits = append(bt.hits, h)
		lastQuery := b.curQuery
		b.advance()
		if b.hasCur && b.curQuery != lastQuery {
			break
		}
		if !b.hasCur {
			break
		}
	}
	bt.queryEnd = int(b.curQuery)
	if !b.hasCur {
		bt.queryEnd = bt.queryBegin + 1
	}
	b.pending <- bt
}

func (b *DiskBuffer) advance() {
	k, v, err := b.cursor.Next()
	if err != nil {
		b.hasCur = false
		return
	}
	b.curKey = store.UnmarshalHitKey(k)
	b.curVal = v
	b.curQuery = b.curKey.Query
	b.hasCur = true
}

// Retrieve implements align.HitSource.
func (b *DiskBuffer) Retrieve() (hits []align.SeedHit, queryBegin, queryEnd int, ok bool) {
	select {
	case bt := <-b.pending:
		return bt.hits, bt.queryBegin, bt.queryEnd, true
	default:
		return nil, 0, 0, false
	}
}
