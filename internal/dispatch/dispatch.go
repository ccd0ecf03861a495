// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dispatch schedules per-query extension work across a worker
// pool and reassembles results in strictly ascending query order,
// implementing spec.md §4.7.
//
// AlignFetcher is grounded on
// original_source/src/align/align.cpp's Align_fetcher/align_worker/
// align_queries: a monotonic cursor over a sorted hit buffer claims
// one query's hit range at a time, deciding per claim whether that
// query should itself be processed target-parallel. OutputSink is
// grounded on the same file's OutputSink::get().push(query, buf) call
// sites: a buffer keyed by query id that only releases results to the
// writer in query-id order, holding later-arriving results back until
// every earlier query has been delivered. The worker pool itself uses
// golang.org/x/sync/errgroup, the same idiom internal/extend uses for
// its own fan-out, standing in for the source's raw std::thread pool.
package dispatch

import (
	"container/heap"
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kortschak/protex/align"
)

// HitRange is one query's claimed slice of a sorted hit buffer.
type HitRange struct {
	Query          uint32
	Hits           []align.SeedHit
	TargetParallel bool
}

// AlignFetcher is a monotonic cursor over a query-sorted hit buffer:
// each call to Next claims the next query's full run of hits and
// decides, per spec.md §4.7's exact condition, whether that query
// should run target-parallel.
type AlignFetcher struct {
	mu   sync.Mutex
	hits []align.SeedHit
	pos  int
	// queryOf extracts the query id a hit belongs to (SeedHit doesn't
	// carry one directly once flattened from per-block loading; the
	// caller supplies the mapping learned from the original chunk
	// boundaries).
	queryOf func(align.SeedHit) uint32
	cfg     align.Config
}

// NewAlignFetcher builds a fetcher over hits, already sorted by
// query, using queryOf to recover each hit's owning query id.
func NewAlignFetcher(hits []align.SeedHit, queryOf func(align.SeedHit) uint32, cfg align.Config) *AlignFetcher {
	return &AlignFetcher{hits: hits, queryOf: queryOf, cfg: cfg}
}

// Next claims the next query's hit range, or reports done=false once
// the buffer is exhausted.
func (f *AlignFetcher) Next() (r HitRange, done bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.hits) {
		return HitRange{}, false
	}
	begin := f.pos
	q := f.queryOf(f.hits[begin])
	end := begin
	for end < len(f.hits) && f.queryOf(f.hits[end]) == q {
		end++
	}
	f.pos = end

	r = HitRange{Query: q, Hits: f.hits[begin:end]}
	// spec.md §4.7: a query runs target-parallel when its claimed
	// range exceeds query_parallel_limit and either frame-shift mode
	// is off, or both top-percent filtering and range-culling are
	// active.
	r.TargetParallel = (end-begin) > f.cfg.QueryParallelLimit &&
		(f.cfg.FrameShift == 0 || (f.cfg.TopPercent < 100 && f.cfg.InnerCullingOverlap > 0))
	return r, true
}

// Result is one query's finished output, ready for ordered delivery.
type Result struct {
	Query uint32
	Data  []byte
}

// pending is a min-heap of buffered Results, ordered by Query.
type pending []Result

func (p pending) Len() int            { return len(p) }
func (p pending) Less(i, j int) bool  { return p[i].Query < p[j].Query }
func (p pending) Swap(i, j int)       { p[i], p[j] = p[j], p[i] }
func (p *pending) Push(x interface{}) { *p = append(*p, x.(Result)) }
func (p *pending) Pop() interface{} {
	old := *p
	n := len(old)
	item := old[n-1]
	*p = old[:n-1]
	return item
}

// OutputSink buffers finished per-query results and releases them to
// Write, in strictly ascending query order, regardless of the order
// workers finish in. A result for a query far ahead of the current
// cursor is held until every intervening query has arrived.
type OutputSink struct {
	mu      sync.Mutex
	next    uint32
	buf     pending
	Write   func(Result) error
	writeMu sync.Mutex
}

// NewOutputSink returns a sink that begins releasing results starting
// at query id first, writing each via write.
func NewOutputSink(first uint32, write func(Result) error) *OutputSink {
	return &OutputSink{next: first, Write: write}
}

// Push delivers a finished result; it is written immediately if it is
// (or becomes, after draining the buffer) the next expected query,
// otherwise it is held.
func (s *OutputSink) Push(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.buf, r)
	return s.drain()
}

// drain must be called with s.mu held.
func (s *OutputSink) drain() error {
	for len(s.buf) > 0 && s.buf[0].Query == s.next {
		r := heap.Pop(&s.buf).(Result)
		s.writeMu.Lock()
		err := s.Write(r)
		s.writeMu.Unlock()
		if err != nil {
			return err
		}
		s.next++
	}
	return nil
}

// Stalled reports how many results are buffered waiting for an
// earlier query to arrive, for diagnostics/heartbeat logging.
func (s *OutputSink) Stalled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Process runs workers racing Next/extend/Push concurrently,
// following align_queries/align_worker's pool shape: one errgroup of
// n goroutines, each looping fetch-extend-push until the fetcher is
// exhausted. extend performs the full per-query pipeline (ranking,
// extension, gapped filter, Smith-Waterman, culling, formatting) and
// returns the formatted bytes to push.
func Process(ctx context.Context, fetcher *AlignFetcher, sink *OutputSink, workers int, extend func(context.Context, HitRange) (Result, error)) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				r, ok := fetcher.Next()
				if !ok {
					return nil
				}
				res, err := extend(ctx, r)
				if err != nil {
					return err
				}
				if err := sink.Push(res); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}
