// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gapped

import (
	"testing"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"

	"github.com/kortschak/protex/align"
	"github.com/kortschak/protex/internal/matrix"
)

func seqOf(id, s string) align.Sequence {
	return align.NewSequence(linear.NewSeq(id, alphabet.BytesToLetters([]byte(s)), alphabet.Protein))
}

func TestShouldRunGate(t *testing.T) {
	cases := []struct {
		evalue     float64
		translated bool
		queryLen   int
		want       bool
	}{
		{0, false, 1000, false},
		{-1, false, 1000, false},
		{1e-5, false, 10, true},
		{1e-5, true, 10, false},
		{1e-5, true, 85, true},
		{1e-5, true, 200, true},
	}
	for _, c := range cases {
		if got := ShouldRun(c.evalue, c.translated, c.queryLen); got != c.want {
			t.Errorf("ShouldRun(%v,%v,%v) = %v, want %v", c.evalue, c.translated, c.queryLen, got, c.want)
		}
	}
}

func TestScoreMonotoneWithThreshold(t *testing.T) {
	q := seqOf("q", "MAKVLISPKQMAKVLISPKQ")
	s := seqOf("s", "MAKVLISPKQMAKVLISPKQ")
	score := Score(q, s, 0, matrix.Default)
	if score <= 0 {
		t.Fatal("Score for an identical sequence pair should be > 0")
	}
	e := matrix.Default.Evalue(score, q.Len(), s.Len())
	if !(e <= e*2) {
		t.Fatal("sanity: evalue should satisfy e <= 2e")
	}
	// A target passing at a strict threshold must also pass at any
	// looser (larger) threshold.
	strict := e
	loose := e * 10
	if e > strict {
		t.Fatal("unreachable")
	}
	if e > loose {
		t.Error("target passing at a strict evalue threshold failed at a looser one")
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	q := seqOf("q", "MAKVLISPKQMAKVLISPKQ")
	good := seqOf("good", "MAKVLISPKQMAKVLISPKQ")
	bad := seqOf("bad", "WWWWWWWWWWWWWWWWWWWW")

	blockIDs := []uint32{1, 2, 3}
	hits := [][]align.LocalHit{
		{{QueryOffset: 0, SubjectOffset: 0}},
		{{QueryOffset: 0, SubjectOffset: 0}},
		{{QueryOffset: 0, SubjectOffset: 0}},
	}
	targets := []align.Sequence{good, bad, good}

	gotIDs, gotHits := Filter(q, q.Len(), blockIDs, hits, targets, matrix.Default, 1e-3)
	if len(gotIDs) != len(gotHits) {
		t.Fatalf("mismatched output lengths: %d ids, %d hit groups", len(gotIDs), len(gotHits))
	}
	for i := 1; i < len(gotIDs); i++ {
		if gotIDs[i] < gotIDs[i-1] {
			t.Errorf("output not order-preserving: %v", gotIDs)
			break
		}
	}
	for _, id := range gotIDs {
		if id == 2 {
			t.Errorf("target 2 (all-mismatch) should have been filtered out, got %v", gotIDs)
		}
	}
}
