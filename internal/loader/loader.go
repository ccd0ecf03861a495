// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader implements the hit loader and target grouper of
// spec.md §4.2: given a batch of SeedHits spanning one query range,
// sort by subject offset, resolve each hit to (target, in-target
// offset) and group into per-target LocalHit arrays with a max-score
// summary.
//
// Grounded directly on original_source/src/align/load_hits.h:
// load_hits, including its density-adaptive choice between per-hit
// binary search and a single sweeping cursor over the target-length
// prefix-sum table.
package loader

import (
	"math"
	"sort"

	"github.com/kortschak/protex/align"
)

// densityThreshold is the constant from
// original_source/src/align/load_hits.h's
// `log2(total_subjects) * hits < total_subjects / 10` density test.
// Its provenance is undocumented in the source (spec.md §9 Open
// Questions); kept as-is rather than re-derived.
const densityThreshold = 10

// Targets is the result of loading one batch of hits: three parallel
// arrays mirroring spec.md §4.2 item 4 (target_block_ids, flat
// LocalHit storage via per-target slices, target_scores).
type Targets struct {
	BlockIDs []uint32
	Hits     [][]align.LocalHit
	Scores   []align.TargetScore
}

// Buffers are thread-local reusable scratch storage for Load, kept
// off the hot path per spec.md §4.2's complexity constraints ("Memory
// linear in number of hits... thread-local reusable buffers required
// to keep allocations off the hot path"). Safe for reuse once Load
// returns control to the caller, not for concurrent use from multiple
// goroutines.
type Buffers struct {
	blockIDs []uint32
	hits     [][]align.LocalHit
	scores   []align.TargetScore
}

// PrefixSums is a precomputed prefix-sum table over target lengths,
// used to translate a subject byte offset into (target block id,
// in-target offset). Limits[i] is the absolute byte offset of the
// start of target i; the final entry, Limits[len(Limits)-1], is
// stored explicitly, equals TotalSubjects and bounds the last target.
type PrefixSums struct {
	Limits        []int64
	TotalSubjects int64
}

// NewPrefixSums builds a PrefixSums table from target lengths.
func NewPrefixSums(lengths []int64) PrefixSums {
	limits := make([]int64, len(lengths)+1)
	var total int64
	for i, l := range lengths {
		limits[i] = total
		total += l
	}
	limits[len(lengths)] = total
	return PrefixSums{Limits: limits, TotalSubjects: total}
}

// locate resolves a subject byte offset to (target, in-target
// offset) using binary search.
func (p PrefixSums) locate(offset int64) (target uint32, local int64) {
	i := sort.Search(len(p.Limits)-1, func(i int) bool { return p.Limits[i+1] > offset })
	return uint32(i), offset - p.Limits[i]
}

// Load sorts hits by subject offset, resolves each to a target via
// prefixSums and groups them into per-target LocalHit arrays,
// reusing buf's backing arrays. The sort need not be stable (spec.md
// §4.2 item 1: "ties broken by any criterion").
//
// The choice between per-hit binary search and a single sweeping
// cursor follows the density test from
// original_source/src/align/load_hits.h: sweep when
// log2(totalSubjects)*len(hits) >= totalSubjects/densityThreshold,
// binary search otherwise.
func Load(hits []align.SeedHit, subjectOffsets []int64, prefixSums PrefixSums, buf *Buffers) Targets {
	buf.blockIDs = buf.blockIDs[:0]
	buf.hits = buf.hits[:0]
	buf.scores = buf.scores[:0]
	if len(hits) == 0 {
		return Targets{}
	}

	order := make([]int, len(hits))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return subjectOffsets[order[i]] < subjectOffsets[order[j]] })

	useBinarySearch := math.Log2(float64(prefixSums.TotalSubjects))*float64(len(hits)) < float64(prefixSums.TotalSubjects)/densityThreshold

	var sweepIdx int
	locate := func(offset int64) (uint32, int64) {
		if useBinarySearch {
			return prefixSums.locate(offset)
		}
		for sweepIdx+1 < len(prefixSums.Limits) && prefixSums.Limits[sweepIdx+1] <= offset {
			sweepIdx++
		}
		return uint32(sweepIdx), offset - prefixSums.Limits[sweepIdx]
	}

	var (
		curTarget uint32
		curScore  uint16
		haveCur   bool
	)
	flush := func() {
		if haveCur {
			buf.scores = append(buf.scores, align.TargetScore{
				Index: uint32(len(buf.blockIDs) - 1),
				Score: curScore,
			})
		}
	}

	for _, idx := range order {
		h := hits[idx]
		t, local := locate(subjectOffsets[idx])
		if !haveCur || t != curTarget {
			flush()
			buf.blockIDs = append(buf.blockIDs, t)
			buf.hits = append(buf.hits, nil)
			curTarget = t
			curScore = 0
			haveCur = true
		}
		i := len(buf.hits) - 1
		buf.hits[i] = append(buf.hits[i], align.LocalHit{
			QueryOffset:   h.QueryOffset,
			SubjectOffset: int(local),
			Score:         h.Score,
			Frame:         h.Frame,
		})
		if h.Score > curScore {
			curScore = h.Score
		}
	}
	flush()

	return Targets{BlockIDs: buf.blockIDs, Hits: buf.hits, Scores: buf.scores}
}
