// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sw implements the banded Smith-Waterman aligner and culling
// stage of spec.md §4.6: final gapped DP over each surviving target's
// HSP-trait anchors, 8-bit scoring with overflow retry in 16-bit, and
// the score/coverage/e-value/max-hsps/top-N/range culling rules that
// turn aligned Targets into reported Matches.
//
// The DP body is written directly from spec.md §4.6's contract: no
// SIMD DP kernel source was retrieved into the pack (dp/dp.h and its
// banded_sw translation units were not part of original_source), so
// protex substitutes scalar banded DP passes, one per anchor, for the
// source's packed-lane SIMD kernel. Align runs a single pass on the
// calling goroutine; this package runs no worker pool of its own.
//
// Culling is grounded on cmd/cull/main.go and cmd/ins/main.go's
// cullContained, which use github.com/biogo/store/interval's IntTree
// to drop GFF features wholly contained by a higher-scoring one;
// range-culling here applies the same containment-tree idiom to HSP
// query ranges.
package sw

import (
	"log"
	"math"
	"sort"

	"github.com/biogo/store/interval"

	"github.com/kortschak/protex/align"
)

// GapOpen and GapExtend are the default gap costs. The banded DP
// charges GapOpen for every gap position, a linear gap cost; it does
// not use GapExtend and does not score gaps affinely.
const (
	GapOpen   = 11
	GapExtend = 1
)

// int8Max and int16Max bound the 8-bit DP score range before overflow
// forces a retry at 16 bits, per spec.md §4.6: "Use 8-bit DP with
// overflow detection; on overflow, retry in 16-bit."
const (
	int8Max  = math.MaxInt8
	int16Max = math.MaxInt16
)

// Anchor is one HSP-trait anchor driving a banded DP pass: it pins the
// alignment to a diagonal range so the DP need only fill a band
// rather than the full matrix.
type Anchor struct {
	Frame        int
	DiagBegin    int
	DiagEnd      int
	QueryRange   align.Range
	SubjectRange align.Range
}

// bandWidth derives the half-width of the DP band from the anchor's
// diagonal spread, per spec.md §4.6: "Band width derives from the
// anchor set."
func bandWidth(a Anchor) int {
	w := a.DiagEnd - a.DiagBegin
	if w < 16 {
		w = 16
	}
	return w + 8
}

// Align runs the banded DP for one (query, target, anchor) triple and
// returns the resulting Hsp. It tries an 8-bit pass first; if any
// cell score exceeds the int8 range, it reruns the same band at full
// int precision. runBanded's boolean result carries the overflow
// between the two passes; no align.OverflowError is constructed.
func Align(query, target align.Sequence, anchor Anchor, sm align.ScoreMatrix, values align.HspValues) (align.Hsp, error) {
	hsp, overflowed := runBanded(query, target, anchor, sm, values, true)
	if overflowed {
		hsp, _ = runBanded(query, target, anchor, sm, values, false)
	}
	return hsp, nil
}

// dpOp records, per DP cell, which of the three candidate moves (or
// neither, "start") produced the cell's score, so the best-scoring
// cell can be traced back to a full alignment.
type dpOp byte

const (
	opStart dpOp = iota // score reset to 0: no part of any alignment
	opDiag              // match/mismatch: consumes one query and one subject residue
	opUp                // gap in subject: consumes one query residue only
	opLeft              // gap in query: consumes one subject residue only
)

// runBanded fills the banded DP matrix; use8bit selects whether cell
// scores are checked against the int8 range (setting the overflow
// flag; scores are not clamped) or computed at full int without the
// check (standing in for the source's 16-bit retry path). It keeps the full score/traceback grid
// (rather than the two-row rolling buffer a score-only pass could use)
// so that Identities/Mismatches/Gaps/Transcript can be recovered by
// walking the grid backward from the best-scoring cell, per
// align.HspValues.
func runBanded(query, target align.Sequence, anchor Anchor, sm align.ScoreMatrix, values align.HspValues, use8bit bool) (align.Hsp, bool) {
	band := bandWidth(anchor)
	qb, qe := anchor.QueryRange.Begin, anchor.QueryRange.End
	sb, se := anchor.SubjectRange.Begin, anchor.SubjectRange.End
	if qe <= qb {
		qe = qb + 1
	}
	if se <= sb {
		se = sb + 1
	}
	qb, qe = clamp(qb, 0, query.Len()), clamp(qe, 0, query.Len())
	sb, se = clamp(sb, 0, target.Len()), clamp(se, 0, target.Len())

	rows := qe - qb + 1
	cols := 2*band + 1
	const negInf = math.MinInt32 / 2

	score := make([][]int, rows)
	ops := make([][]dpOp, rows)
	for r := range score {
		score[r] = make([]int, cols)
		ops[r] = make([]dpOp, cols)
	}
	best, bestRow, bestCol := 0, 0, 0
	overflow := false

	for r := 0; r < rows; r++ {
		i := qb + r - 1
		for c := 0; c < cols; c++ {
			j := sb + (r - band + c)
			if r == 0 || j < sb || j >= se {
				score[r][c] = 0
				ops[r][c] = opStart
				continue
			}
			diagScore := score[r-1][c] + sm.Score(byte(query.At(i)), byte(target.At(j)))
			upScore := negInf
			if c+1 < cols {
				upScore = score[r-1][c+1] - GapOpen
			}
			leftScore := negInf
			if c-1 >= 0 {
				leftScore = score[r][c-1] - GapOpen
			}
			v, op := 0, opStart
			if diagScore > v {
				v, op = diagScore, opDiag
			}
			if upScore > v {
				v, op = upScore, opUp
			}
			if leftScore > v {
				v, op = leftScore, opLeft
			}
			if use8bit && v > int8Max {
				overflow = true
			}
			score[r][c] = v
			ops[r][c] = op
			if v > best {
				best, bestRow, bestCol = v, r, c
			}
		}
	}

	hsp := align.Hsp{Frame: anchor.Frame, Score: best}
	const needsTraceback = align.HspQueryCoords | align.HspTargetCoords | align.HspIdentLength | align.HspGapsMismatches | align.HspTranscript
	if values&needsTraceback != 0 {
		qEnd := clamp(qb+bestRow, qb, qe)
		sEnd := clamp(sb+(bestRow-band+bestCol), sb, se)

		var transcript []byte
		length, identities, mismatches, gaps := 0, 0, 0, 0
		qBegin, sBegin := qEnd, sEnd
		r, c := bestRow, bestCol
		for r > 0 && ops[r][c] != opStart {
			i := qb + r - 1
			j := sb + (r - band + c)
			switch ops[r][c] {
			case opDiag:
				length++
				if byte(query.At(i)) == byte(target.At(j)) {
					identities++
					transcript = append(transcript, 'M')
				} else {
					mismatches++
					transcript = append(transcript, 'X')
				}
				qBegin, sBegin = i, j
				r, c = r-1, c
			case opUp:
				length++
				gaps++
				transcript = append(transcript, 'I')
				qBegin = i
				r, c = r-1, c+1
			case opLeft:
				length++
				gaps++
				transcript = append(transcript, 'D')
				sBegin = j
				r, c = r, c-1
			}
		}

		if values&align.HspQueryCoords != 0 {
			hsp.Query = align.Range{Begin: clamp(qBegin, qb, qe), End: qEnd}
		}
		if values&align.HspTargetCoords != 0 {
			hsp.Subject = align.Range{Begin: clamp(sBegin, sb, se), End: sEnd}
		}
		if values&align.HspIdentLength != 0 {
			hsp.Length = length
			hsp.Identities = identities
		}
		if values&align.HspGapsMismatches != 0 {
			hsp.Mismatches = mismatches
			hsp.Gaps = gaps
		}
		if values&align.HspTranscript != 0 {
			for i, j := 0, len(transcript)-1; i < j; i, j = i+1, j-1 {
				transcript[i], transcript[j] = transcript[j], transcript[i]
			}
			hsp.Transcript = transcript
		}
	}
	return hsp, overflow
}

func max4(a, b, c, d int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	if d > m {
		m = d
	}
	return m
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Culling

// ApplyThresholds implements spec.md §4.6 culling item 1: drop HSPs
// failing any of the user's reporting thresholds.
func ApplyThresholds(hsps []align.Hsp, cfg align.Config, sourceQueryLen, subjectLen int) []align.Hsp {
	out := hsps[:0]
	for _, h := range hsps {
		if h.EValue > cfg.MaxEvalue {
			continue
		}
		if h.BitScore < cfg.MinBitScore {
			continue
		}
		if h.IdentityPercent() < cfg.MinID {
			continue
		}
		if h.QueryCoverPercent(sourceQueryLen) < cfg.QueryCover {
			continue
		}
		if subjectCoverPercent(h, subjectLen) < cfg.SubjectCover {
			continue
		}
		out = append(out, h)
	}
	return out
}

// subjectCoverPercent returns the fraction of the target sequence h's
// Subject range covers, as a percentage, the subject-side analogue of
// align.Hsp.QueryCoverPercent (spec.md §4.6 culling item 1's
// subject-coverage% threshold).
func subjectCoverPercent(h align.Hsp, subjectLen int) float64 {
	if subjectLen == 0 {
		return 0
	}
	return float64(h.Subject.Len()) * 100 / float64(subjectLen)
}

// CapPerTarget implements culling item 2: keep at most maxHsps per
// target, highest score first.
func CapPerTarget(hsps []align.Hsp, maxHsps int) []align.Hsp {
	sort.SliceStable(hsps, func(i, j int) bool { return hsps[i].Score > hsps[j].Score })
	if maxHsps > 0 && len(hsps) > maxHsps {
		hsps = hsps[:maxHsps]
	}
	return hsps
}

// CullTargets implements culling item 3 across a query's targets:
// either the top maxAlignments by best score, or — when topPercent <
// 100 — every target whose best score is within topPercent percent of
// the global best.
func CullTargets(targets []align.Target, maxAlignments int, topPercent float64) []align.Target {
	if len(targets) == 0 {
		return targets
	}
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].BestScore() > targets[j].BestScore() })
	if topPercent < 100 {
		global := float64(targets[0].BestScore())
		threshold := global * (1 - topPercent/100)
		cut := len(targets)
		for i, t := range targets {
			if float64(t.BestScore()) < threshold {
				cut = i
				break
			}
		}
		return targets[:cut]
	}
	if maxAlignments > 0 && len(targets) > maxAlignments {
		targets = targets[:maxAlignments]
	}
	return targets
}

// hspInterval adapts an Hsp's query range to biogo/store/interval's
// IntTree, following cmd/cull/main.go's subjectInterval pattern.
type hspInterval struct {
	uid uintptr
	h   *align.Hsp
}

func (iv hspInterval) Overlap(b interval.IntRange) bool {
	return b.Start < iv.h.Query.End && iv.h.Query.Begin < b.End
}
func (iv hspInterval) ID() uintptr { return iv.uid }
func (iv hspInterval) Range() interval.IntRange {
	return interval.IntRange{Start: iv.h.Query.Begin, End: iv.h.Query.End}
}

// RangeCull implements culling item 4 (frameshift mode): delete any
// HSP whose query range overlaps a higher-scoring HSP's query range
// by more than innerCullingOverlap (a fraction of the lower-scoring
// HSP's length).
func RangeCull(hsps []align.Hsp, innerCullingOverlap float64) []align.Hsp {
	if len(hsps) == 0 {
		return hsps
	}
	var tree interval.IntTree
	for i := range hsps {
		if err := tree.Insert(hspInterval{uid: uintptr(i), h: &hsps[i]}, true); err != nil {
			log.Printf("sw: range cull: insert: %v", err)
		}
	}
	tree.AdjustRanges()

	var kept []align.Hsp
outer:
	for i := range hsps {
		h := &hsps[i]
		hits := tree.Get(hspInterval{h: h})
		for _, o := range hits {
			other := o.(hspInterval)
			if other.h == h {
				continue
			}
			if other.h.Score <= h.Score {
				continue
			}
			overlap := overlapLen(h.Query, other.h.Query)
			if float64(overlap) > innerCullingOverlap*float64(h.Query.Len()) {
				continue outer
			}
		}
		kept = append(kept, *h)
	}
	return kept
}

func overlapLen(a, b align.Range) int {
	begin := a.Begin
	if b.Begin > begin {
		begin = b.Begin
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	if end <= begin {
		return 0
	}
	return end - begin
}

// SortMatches implements spec.md §4.6's final sort: by score desc,
// then by e-value asc when top-percent culling is active.
func SortMatches(matches []align.Match, topPercentActive bool) {
	sort.SliceStable(matches, func(i, j int) bool {
		bi, bj := matches[i].BestScore(), matches[j].BestScore()
		if bi != bj {
			return bi > bj
		}
		if !topPercentActive {
			return false
		}
		return bestEvalue(matches[i]) < bestEvalue(matches[j])
	})
}

func bestEvalue(m align.Match) float64 {
	best := math.Inf(1)
	for _, h := range m.Hsps {
		if h.EValue < best {
			best = h.EValue
		}
	}
	return best
}
