// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package align

import "io"

// DatabaseBlock is the external collaborator providing the reference
// sequence set for one database chunk (spec.md §6). Reference
// sequences are exclusively owned by the implementation; every
// downstream stage holds only the read-only views this interface
// returns.
type DatabaseBlock interface {
	// Seq returns the (possibly masked) sequence for target block id.
	Seq(blockID uint32) Sequence
	// UnmaskedSeq returns the original, unmasked sequence for target
	// block id.
	UnmaskedSeq(blockID uint32) Sequence
	// ID returns the accession/identifier for target block id.
	ID(blockID uint32) string
	// Len returns the number of target sequences in the block.
	Len() int
	// Letters returns the total residue count across the block, used
	// by the adaptive ranker's chunk-size formula (§4.3).
	Letters() int64

	// FetchSeqIfUnmasked returns the sequence for blockID and true if
	// it has not yet been masked, enabling the race-free
	// check-then-mask protocol of §4.4 item 1.
	FetchSeqIfUnmasked(blockID uint32) (Sequence, bool)
	// WriteMaskedSeq installs a masked sequence for blockID. Callers
	// must only call this once FetchSeqIfUnmasked returned true for
	// blockID within the same masking attempt.
	WriteMaskedSeq(blockID uint32, seq Sequence)
}

// HitSource is the external collaborator streaming SeedHit batches
// spanning contiguous query ranges (spec.md §4.1, §6).
type HitSource interface {
	// Load prepares the next batch, bounded by maxBytes, for the
	// following Retrieve call. The internal/hitbuf implementations do
	// this synchronously in the calling goroutine: they do not
	// overlap the I/O of batch N+1 with processing of batch N.
	Load(maxBytes int64)
	// Retrieve returns the next batch and the query range
	// [queryBegin, queryEnd) it spans, or ok=false once the source is
	// exhausted. Successive calls cover disjoint, strictly increasing
	// query ranges.
	Retrieve() (hits []SeedHit, queryBegin, queryEnd int, ok bool)
}

// ScoreMatrix is the external collaborator (or, for the default
// matrix, an internal/matrix implementation) providing substitution
// scores and Karlin-Altschul statistics (spec.md §6).
type ScoreMatrix interface {
	// Score returns the substitution score for a pair of letters.
	Score(a, b byte) int
	// Bitscore converts a raw score to a bit score.
	Bitscore(score int) float64
	// Evalue converts a raw score and sequence lengths to an e-value.
	Evalue(score int, queryLen, targetLen int) float64
	// BackgroundFreqs returns the amino-acid background frequency
	// table used by composition-based statistics.
	BackgroundFreqs() [20]float64
}

// HspValues selects which of an Hsp's optional fields the aligner
// should compute, letting the first ranking round skip traceback and
// only what culling needs (SPEC_FULL.md "first_round_hspv").
type HspValues uint8

const (
	HspNone HspValues = 0
	HspIdentLength HspValues = 1 << iota
	HspQueryCoords
	HspTargetCoords
	HspGapsMismatches
	HspTranscript
)

// FirstRound returns the minimal HspValues the first ranking round
// needs to evaluate cfg's culling thresholds, deferring the rest
// (notably HspTranscript) to the final round. Grounded on
// original_source/src/align/extend.cpp: first_round_hspv.
func (cfg Config) FirstRound() HspValues {
	var v HspValues
	if cfg.MinID > 0 {
		v |= HspIdentLength
	}
	if cfg.QueryCover > 0 {
		v |= HspQueryCoords
	}
	if cfg.SubjectCover > 0 {
		v |= HspTargetCoords
	}
	return v
}

// OutputFormat is the opaque per-query output strategy (spec.md §6,
// §9 "Polymorphism over output formats"): a tagged capability set
// with no dynamic dispatch table required beyond Go's own interface
// dispatch.
type OutputFormat interface {
	PrintQueryIntro(w io.Writer, queryID int, queryTitle string, queryLen int, unaligned bool) error
	PrintMatch(w io.Writer, queryTitle string, m Match, db DatabaseBlock, sourceQueryLen int) error
	PrintQueryEpilog(w io.Writer, queryTitle string, unaligned bool) error
}
