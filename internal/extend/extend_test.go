// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package extend

import (
	"context"
	"testing"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"

	"github.com/kortschak/protex/align"
	"github.com/kortschak/protex/internal/matrix"
)

func seqOf(id, s string) align.Sequence {
	return align.NewSequence(linear.NewSeq(id, alphabet.BytesToLetters([]byte(s)), alphabet.Protein))
}

func TestXdropExtendExactMatch(t *testing.T) {
	q := seqOf("q", "MAKVLISPKQ")
	s := seqOf("s", "MAKVLISPKQ")
	seg, ok := xdropExtend(q, s, 0, 0, 10, matrix.Default)
	if !ok {
		t.Fatal("xdropExtend: expected a positive-score segment for an identical sequence")
	}
	if seg.QueryBegin != 0 || seg.QueryEnd != q.Len() {
		t.Errorf("segment range = [%d,%d), want [0,%d)", seg.QueryBegin, seg.QueryEnd, q.Len())
	}
	if seg.Score == 0 {
		t.Error("segment score = 0, want > 0 for an identical match")
	}
}

func TestXdropExtendNoSignal(t *testing.T) {
	// Two sequences with nothing but mismatches at the anchor and no
	// favorable extension in either direction should fail to extend.
	q := seqOf("q", "WWWWWWWWWW")
	s := seqOf("s", "DDDDDDDDDD")
	_, ok := xdropExtend(q, s, 5, 5, 0, matrix.Default)
	if ok {
		t.Error("xdropExtend: expected no segment for an all-mismatch anchor with zero x-drop tolerance")
	}
}

func TestChainPrefersNonOverlapping(t *testing.T) {
	segs := []align.DiagonalSegment{
		{Diag: 0, QueryBegin: 0, QueryEnd: 10, SubjectBegin: 0, SubjectEnd: 10, Score: 20},
		{Diag: 0, QueryBegin: 15, QueryEnd: 25, SubjectBegin: 15, SubjectEnd: 25, Score: 20},
		{Diag: 0, QueryBegin: 5, QueryEnd: 30, SubjectBegin: 5, SubjectEnd: 30, Score: 15}, // overlaps both, lower combined value
	}
	out := chain(segs, 10, 1)
	var total int
	for _, h := range out {
		total += h.Score
	}
	if total < 40 {
		t.Errorf("chain total score = %d, want >= 40 (both non-overlapping segments chained)", total)
	}
}

func TestChainEmpty(t *testing.T) {
	if out := chain(nil, 10, 1); out != nil {
		t.Errorf("chain(nil) = %v, want nil", out)
	}
}

func TestBuildWorkTargetFullMode(t *testing.T) {
	q := []align.Sequence{seqOf("q", "MAKVLISPKQ")}
	target := seqOf("t", "MAKVLISPKQ")
	hits := []align.LocalHit{
		{QueryOffset: 0, SubjectOffset: 0, Score: 50, Frame: 0},
		{QueryOffset: 2, SubjectOffset: 2, Score: 30, Frame: 0},
	}
	wt := BuildWorkTarget(1, target, q, hits, align.Full, nil, matrix.Default.BackgroundFreqs(), matrix.Composition{}, Params{XDrop: 10})
	if wt.UngappedScore[0] != 50 {
		t.Errorf("UngappedScore[0] = %d, want 50 (max over hits)", wt.UngappedScore[0])
	}
	if len(wt.Traits) != 0 {
		t.Errorf("Full mode should not populate Traits, got %v", wt.Traits)
	}
}

func TestBuildWorkTargetBandedMode(t *testing.T) {
	q := []align.Sequence{seqOf("q", "MAKVLISPKQMAKVLISPKQ")}
	target := seqOf("t", "MAKVLISPKQMAKVLISPKQ")
	hits := []align.LocalHit{
		{QueryOffset: 0, SubjectOffset: 0, Score: 50, Frame: 0},
	}
	wt := BuildWorkTarget(1, target, q, hits, align.BandedFast, nil, matrix.Default.BackgroundFreqs(), matrix.Composition{}, Params{XDrop: 10, ChainingMaxGap: 16, SpacePenalty: 1})
	if len(wt.Traits) == 0 || len(wt.Traits[0]) == 0 {
		t.Fatal("BandedFast mode should produce at least one HSP trait for an exact self-match")
	}
}

func TestBuildWorkTargetSingleHitTranslatedShortcut(t *testing.T) {
	q := []align.Sequence{seqOf("q", "MAKVLISPKQMAKVLISPKQ")}
	target := seqOf("t", "MAKVLISPKQMAKVLISPKQ")
	hits := []align.LocalHit{
		{QueryOffset: 4, SubjectOffset: 6, Score: 42, Frame: 0},
	}
	wt := BuildWorkTarget(1, target, q, hits, align.BandedFast, nil, matrix.Default.BackgroundFreqs(), matrix.Composition{}, Params{XDrop: 10, ChainingMaxGap: 16, SpacePenalty: 1, Translated: true})
	if wt.UngappedScore[0] != 42 {
		t.Errorf("UngappedScore[0] = %d, want 42 (seed score, not x-drop extended)", wt.UngappedScore[0])
	}
	if len(wt.Traits) == 0 || len(wt.Traits[0]) != 1 {
		t.Fatalf("translated single-hit shortcut should emit exactly one HSP trait, got %v", wt.Traits)
	}
	trait := wt.Traits[0][0]
	wantDiag := hits[0].Diag()
	if trait.DiagBegin != wantDiag || trait.DiagEnd != wantDiag {
		t.Errorf("trait diag = [%d,%d], want [%d,%d]", trait.DiagBegin, trait.DiagEnd, wantDiag, wantDiag)
	}
	if trait.Score != 42 {
		t.Errorf("trait score = %d, want 42 (seed score, not chained/extended)", trait.Score)
	}
	if len(wt.Diagonals) != 0 {
		t.Errorf("translated single-hit shortcut should not populate Diagonals, got %v", wt.Diagonals)
	}
}

func TestBuildWorkTargetMultiHitTranslatedRunsNormalPath(t *testing.T) {
	q := []align.Sequence{seqOf("q", "MAKVLISPKQMAKVLISPKQ")}
	target := seqOf("t", "MAKVLISPKQMAKVLISPKQ")
	hits := []align.LocalHit{
		{QueryOffset: 0, SubjectOffset: 0, Score: 50, Frame: 0},
		{QueryOffset: 10, SubjectOffset: 10, Score: 30, Frame: 0},
	}
	wt := BuildWorkTarget(1, target, q, hits, align.BandedFast, nil, matrix.Default.BackgroundFreqs(), matrix.Composition{}, Params{XDrop: 10, ChainingMaxGap: 16, SpacePenalty: 1, Translated: true})
	if len(wt.Diagonals) == 0 || len(wt.Diagonals[0]) == 0 {
		t.Fatal("two hits on a translated query should still run the normal x-drop/chaining path, not the single-hit shortcut")
	}
}

func TestBuildAllParallelMatchesSerial(t *testing.T) {
	q := []align.Sequence{seqOf("q", "MAKVLISPKQMAKVLISPKQ")}
	jobs := []TargetJob{
		{BlockID: 1, Unmasked: seqOf("t1", "MAKVLISPKQMAKVLISPKQ"), Hits: []align.LocalHit{{QueryOffset: 0, SubjectOffset: 0, Score: 50}}},
		{BlockID: 2, Unmasked: seqOf("t2", "MAKVLISPKQMAKVLISPKQ"), Hits: []align.LocalHit{{QueryOffset: 0, SubjectOffset: 0, Score: 40}}},
	}
	p := Params{XDrop: 10, ChainingMaxGap: 16, SpacePenalty: 1}
	serial, err := BuildAll(context.Background(), jobs, q, align.BandedFast, nil, matrix.Default.BackgroundFreqs(), matrix.Composition{}, p, false, 1)
	if err != nil {
		t.Fatalf("BuildAll serial: %v", err)
	}
	parallel, err := BuildAll(context.Background(), jobs, q, align.BandedFast, nil, matrix.Default.BackgroundFreqs(), matrix.Composition{}, p, true, 4)
	if err != nil {
		t.Fatalf("BuildAll parallel: %v", err)
	}
	if len(serial) != len(parallel) {
		t.Fatalf("serial produced %d targets, parallel produced %d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i].BlockID != parallel[i].BlockID {
			t.Errorf("target %d: serial BlockID=%d, parallel BlockID=%d", i, serial[i].BlockID, parallel[i].BlockID)
		}
	}
}
