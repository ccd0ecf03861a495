// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package align provides the data types and external-collaborator
// interfaces shared by the seed-hit-to-alignment extension pipeline:
// seed hit and target grouping, ungapped extension traits, aligned
// HSPs and the per-query memory that lets a chunked ranking run
// short-circuit.
package align

// SeedHit is a single seed-hit annotation produced by the (external)
// k-mer indexer: a query-offset/subject-offset pair carrying a
// precomputed ungapped score over a small window, together with the
// query's frame.
type SeedHit struct {
	// QueryOffset is the seed's offset into the query sequence for
	// the given Frame.
	QueryOffset int
	// SubjectOffset is the seed's offset into the subject (target)
	// sequence, relative to the start of the target the hit belongs
	// to once grouped by Loader.
	SubjectOffset int
	// Score is the precomputed ungapped score for the seed window.
	Score uint16
	// Frame is the query reading frame the hit was found in; for
	// protein queries this is always 0, for translated nucleotide
	// queries 0 <= Frame < QueryContexts.
	Frame int
}

// Diag returns the hit's diagonal index, QueryOffset-SubjectOffset,
// used to group and order hits for x-drop extension.
func (h SeedHit) Diag() int { return h.QueryOffset - h.SubjectOffset }

// LocalHit is a SeedHit that has been resolved to a specific target
// block: the seed-query-offset and seed-subject-offset are both
// relative to that target's TargetHits entry.
type LocalHit struct {
	QueryOffset   int
	SubjectOffset int
	Score         uint16
	Frame         int
}

// Diag returns the hit's diagonal index.
func (h LocalHit) Diag() int { return h.QueryOffset - h.SubjectOffset }

// TargetHits is the set of LocalHits belonging to one target block,
// together with the maximum score seen among them. It is built once
// per query by the loader (§4.2) and lives for the duration of that
// query's processing.
type TargetHits struct {
	// BlockID is the target's local integer identifier within the
	// current database chunk.
	BlockID uint32
	// Hits are the LocalHits belonging to this target, in whatever
	// order the loader produced them (unsorted until the extension
	// stage sorts them per frame).
	Hits []LocalHit
	// MaxScore is the maximum Score across Hits.
	MaxScore uint16
}

// TargetScore is a ranking key: an index into a TargetHits slice and
// the score used to order it. Ordering is by Score descending, ties
// broken by Index ascending so that sort is stable without requiring
// a stable sort algorithm.
type TargetScore struct {
	Index uint32
	Score uint16
}

// Less reports whether s should be ranked ahead of other: higher
// score first, lower index breaking ties.
func (s TargetScore) Less(other TargetScore) bool {
	if s.Score != other.Score {
		return s.Score > other.Score
	}
	return s.Index < other.Index
}

// DiagonalSegment is an ungapped alignment described by its diagonal
// index and the subject interval it covers.
type DiagonalSegment struct {
	Diag         int
	QueryBegin   int
	QueryEnd     int
	SubjectBegin int
	SubjectEnd   int
	Score        int
	Frame        int
}

// SubjectCovers reports whether the segment's subject interval already
// covers subject offset j, used by the extension stage to skip hits
// already explained by a previously extended diagonal segment.
func (d DiagonalSegment) SubjectCovers(j int) bool {
	return d.SubjectEnd >= j
}

// HspTraits summarizes a chained group of diagonal segments before the
// final banded Smith-Waterman pass anchors on it: a diagonal range and
// an accumulated chain score.
type HspTraits struct {
	Frame        int
	DiagBegin    int
	DiagEnd      int
	Score        int
	QueryRange   Range
	SubjectRange Range
}

// Range is an inclusive-exclusive [Begin, End) coordinate interval.
type Range struct {
	Begin, End int
}

// Len returns the length of the range.
func (r Range) Len() int { return r.End - r.Begin }

// Overlap reports the number of bases by which r and other overlap.
// A non-overlapping pair returns a value <= 0.
func (r Range) Overlap(other Range) int {
	lo := r.Begin
	if other.Begin > lo {
		lo = other.Begin
	}
	hi := r.End
	if other.End < hi {
		hi = other.End
	}
	return hi - lo
}

// WorkTarget is the per-(query,target) accumulator produced by the
// ungapped extension + chaining stage (§4.4): per-frame ungapped
// scores, diagonal segments and chained HSP traits, plus an optional
// composition-adjusted scoring matrix borrow when CBS is enabled.
type WorkTarget struct {
	BlockID uint32
	Subject Sequence

	// UngappedScore is indexed by frame.
	UngappedScore []uint16
	// Diagonals is indexed by frame.
	Diagonals [][]DiagonalSegment
	// Traits is indexed by frame, sorted by diagonal.
	Traits [][]HspTraits

	// Matrix, if non-nil, borrows a composition-adjusted scoring
	// matrix from the process-wide target matrix pool (see
	// internal/matrix). It is never owned by WorkTarget: the pool is
	// the sole owner, per spec.md §9's cycle-breaking guidance.
	Matrix ScoreMatrix
}

// Hsp is a single high-scoring pair: a scored local alignment with
// coordinates, optional identity/gap counts and an optional traceback
// transcript.
type Hsp struct {
	Frame int

	Score    int
	BitScore float64
	EValue   float64

	Query   Range
	Subject Range

	Length     int
	Identities int
	Mismatches int
	Gaps       int

	// Transcript is the alignment traceback, present only when
	// requested via HspValues.
	Transcript []byte
}

// IdentityPercent returns identities*100/length, the invariant
// asserted in spec.md §8.
func (h Hsp) IdentityPercent() float64 {
	if h.Length == 0 {
		return 0
	}
	return float64(h.Identities) * 100 / float64(h.Length)
}

// QueryCoverPercent returns the fraction of the original (untranslated)
// query sequence this HSP covers, as a percentage.
func (h Hsp) QueryCoverPercent(sourceQueryLen int) float64 {
	if sourceQueryLen == 0 {
		return 0
	}
	return float64(h.Query.Len()) * 100 / float64(sourceQueryLen)
}

// Target is a database sequence with its aligned HSPs from every
// frame in one unsorted list, produced by the banded Smith-Waterman
// aligner (§4.6) before culling.
type Target struct {
	BlockID uint32
	Hsps    []Hsp // across all frames, unsorted
}

// BestScore returns the maximum Hsp.Score across t's HSPs, or 0 if t
// has none.
func (t Target) BestScore() int {
	best := 0
	for _, h := range t.Hsps {
		if h.Score > best {
			best = h.Score
		}
	}
	return best
}

// Match is a culled, reportable alignment against one target: the
// target's block id and its HSP list. Per-HSP filter metrics
// (identity, coverage) are computed from the Hsp values on demand;
// Match stores no summary of them.
type Match struct {
	BlockID uint32
	Hsps    []Hsp
}

// BestScore returns the score of Hsps[0], the highest scoring HSP,
// assuming Hsps is sorted by score descending (the Match invariant).
func (m Match) BestScore() int {
	if len(m.Hsps) == 0 {
		return 0
	}
	return m.Hsps[0].Score
}

// QueryMemory is the per-query monotone state persisted across
// ranking chunks within one query (§3, §4.3): the lowest score seen,
// a non-decreasing rank-failure count and the score at which ranking
// last failed to find new hits.
type QueryMemory struct {
	LowScore      int
	RankFailCount int
	RankFailScore int
}
