// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gapped implements the cheap gapped filter of spec.md §4.5:
// a diagonal-banded DP cheaper than the full banded Smith-Waterman of
// internal/sw, run over every surviving target to discard those whose
// estimated gapped score cannot plausibly beat the configured e-value
// threshold.
//
// The filter's gate (gapped_filter_evalue > 0 and, for translated
// queries, length >= 85) is grounded on the call site in
// original_source/src/align/extend.cpp's two-argument extend
// overload; the DP body itself is written from spec.md §4.5's
// contract since the filter's DP (dp/scan_diagonals or similar) was
// not retrieved into the pack.
package gapped

import (
	"github.com/kortschak/protex/align"
)

// MinTranslatedQueryLen is the GAPPED_FILTER_MIN_QLEN constant from
// original_source/src/align/extend.cpp: translated queries shorter
// than this never run the filter.
const MinTranslatedQueryLen = 85

// ShouldRun reports whether the gapped filter applies for this query,
// per spec.md §4.5: evalue must be configured (>0), and translated
// queries must be at least MinTranslatedQueryLen residues.
func ShouldRun(evalue float64, translated bool, queryLen int) bool {
	if evalue <= 0 {
		return false
	}
	if translated && queryLen < MinTranslatedQueryLen {
		return false
	}
	return true
}

// band is the half-width of the diagonal band scanned around each
// target's best-scoring seed diagonal; wide enough to tolerate a
// handful of small indels without paying for a full DP matrix.
const band = 32

// Score estimates a cheap gapped alignment score for one (query,
// target) pair over a single frame by scanning a band of diagonals
// around centerDiag and taking the best run found by simple
// running-sum tracking (no traceback, no gap penalty beyond dropping
// the running sum when it turns negative) — a bounded-cost stand-in
// for a full Smith-Waterman, monotone by construction: widening the
// band or lowering the drop floor can only raise or hold the score,
// never lower it, since every additional diagonal scanned only adds
// candidate maxima to the same max-reduction.
func Score(query, target align.Sequence, centerDiag int, sm align.ScoreMatrix) int {
	best := 0
	for d := centerDiag - band; d <= centerDiag+band; d++ {
		best = max(best, scanDiagonal(query, target, d, sm))
	}
	return best
}

func scanDiagonal(query, target align.Sequence, diag int, sm align.ScoreMatrix) int {
	// diag follows align.SeedHit.Diag: query offset minus subject offset.
	i0, j0 := 0, 0
	if diag > 0 {
		i0 = diag
	} else {
		j0 = -diag
	}
	var running, best int
	for i, j := i0, j0; i < query.Len() && j < target.Len(); i, j = i+1, j+1 {
		running += sm.Score(byte(query.At(i)), byte(target.At(j)))
		if running < 0 {
			running = 0
		}
		if running > best {
			best = running
		}
	}
	return best
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Filter removes, in place, any target from blockIDs (and the
// parallel hits slice) whose estimated gapped score, converted to an
// e-value against queryLen, exceeds evalue. Order of the surviving
// entries is preserved, matching spec.md §4.5's "removes entries...
// in place, preserving order".
func Filter(query align.Sequence, queryLen int, blockIDs []uint32, hits [][]align.LocalHit, targets []align.Sequence, sm align.ScoreMatrix, evalue float64) ([]uint32, [][]align.LocalHit) {
	keepIDs := blockIDs[:0]
	keepHits := hits[:0]
	for i, bid := range blockIDs {
		target := targets[i]
		centerDiag := 0
		if len(hits[i]) > 0 {
			centerDiag = hits[i][0].Diag()
		}
		score := Score(query, target, centerDiag, sm)
		e := sm.Evalue(score, queryLen, target.Len())
		if e <= evalue {
			keepIDs = append(keepIDs, bid)
			keepHits = append(keepHits, hits[i])
		}
	}
	return keepIDs, keepHits
}
