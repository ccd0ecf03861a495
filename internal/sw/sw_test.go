// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sw

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

func TestAlignExactMatch(t *testing.T) {
	q := seqOf("q", "MAKVLISPKQMAKVLISPKQ")
	s := seqOf("s", "MAKVLISPKQMAKVLISPKQ")
	anchor := Anchor{
		QueryRange:   align.Range{Begin: 0, End: q.Len()},
		SubjectRange: align.Range{Begin: 0, End: s.Len()},
	}
	hsp, err := Align(q, s, anchor, matrix.Default, align.HspQueryCoords|align.HspTargetCoords)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if hsp.Score <= 0 {
		t.Fatalf("Align score = %d, want > 0 for identical sequences", hsp.Score)
	}
}

func TestAlignMismatchScoresLower(t *testing.T) {
	q := seqOf("q", "MAKVLISPKQMAKVLISPKQ")
	s := seqOf("s", "MAKVLISPKQMAKVLISPKQ")
	mismatch := seqOf("m", "WWWWWWWWWWWWWWWWWWWW")
	anchor := Anchor{
		QueryRange:   align.Range{Begin: 0, End: q.Len()},
		SubjectRange: align.Range{Begin: 0, End: s.Len()},
	}
	good, err := Align(q, s, anchor, matrix.Default, align.HspNone)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	bad, err := Align(q, mismatch, anchor, matrix.Default, align.HspNone)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if bad.Score >= good.Score {
		t.Errorf("mismatched-sequence score %d should be lower than matched score %d", bad.Score, good.Score)
	}
}

func TestAlignComputesIdentityFieldsForExactMatch(t *testing.T) {
	q := seqOf("q", "MAKVLISPKQMAKVLISPKQ")
	s := seqOf("s", "MAKVLISPKQMAKVLISPKQ")
	anchor := Anchor{
		QueryRange:   align.Range{Begin: 0, End: q.Len()},
		SubjectRange: align.Range{Begin: 0, End: s.Len()},
	}
	values := align.HspQueryCoords | align.HspTargetCoords | align.HspIdentLength | align.HspGapsMismatches | align.HspTranscript
	hsp, err := Align(q, s, anchor, matrix.Default, values)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if hsp.Length != q.Len() {
		t.Errorf("Length = %d, want %d", hsp.Length, q.Len())
	}
	if hsp.Identities != q.Len() {
		t.Errorf("Identities = %d, want %d", hsp.Identities, q.Len())
	}
	if hsp.Mismatches != 0 || hsp.Gaps != 0 {
		t.Errorf("Mismatches/Gaps = %d/%d, want 0/0 for an identical match", hsp.Mismatches, hsp.Gaps)
	}
	if pct := hsp.IdentityPercent(); pct != 100 {
		t.Errorf("IdentityPercent = %v, want 100", pct)
	}
	if len(hsp.Transcript) != hsp.Length {
		t.Fatalf("Transcript length = %d, want %d", len(hsp.Transcript), hsp.Length)
	}
	for i, op := range hsp.Transcript {
		if op != 'M' {
			t.Errorf("Transcript[%d] = %q, want 'M' for an identical match", i, op)
		}
	}
}

func TestAlignComputesIdentityFieldsForOneMismatch(t *testing.T) {
	q := seqOf("q", "MAKVLISPKQMAKVLISPKQ")
	s := seqOf("s", "MAKVLISPKQDAKVLISPKQ") // position 10: M -> D
	anchor := Anchor{
		QueryRange:   align.Range{Begin: 0, End: q.Len()},
		SubjectRange: align.Range{Begin: 0, End: s.Len()},
	}
	values := align.HspQueryCoords | align.HspTargetCoords | align.HspIdentLength | align.HspGapsMismatches | align.HspTranscript
	hsp, err := Align(q, s, anchor, matrix.Default, values)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if hsp.Length != q.Len() {
		t.Fatalf("Length = %d, want %d", hsp.Length, q.Len())
	}
	if hsp.Mismatches != 1 {
		t.Errorf("Mismatches = %d, want 1", hsp.Mismatches)
	}
	if hsp.Identities != q.Len()-1 {
		t.Errorf("Identities = %d, want %d", hsp.Identities, q.Len()-1)
	}
	if hsp.Gaps != 0 {
		t.Errorf("Gaps = %d, want 0 (pure substitution, no indel)", hsp.Gaps)
	}
	if hsp.Query.Begin != 0 || hsp.Query.End != q.Len() {
		t.Errorf("Query range = %v, want [0,%d)", hsp.Query, q.Len())
	}
	if len(hsp.Transcript) != hsp.Length || hsp.Transcript[10] != 'X' {
		t.Fatalf("Transcript = %q, want a mismatch ('X') at offset 10", hsp.Transcript)
	}
}

func TestAlignOmitsFieldsNotRequested(t *testing.T) {
	q := seqOf("q", "MAKVLISPKQMAKVLISPKQ")
	s := seqOf("s", "MAKVLISPKQDAKVLISPKQ")
	anchor := Anchor{
		QueryRange:   align.Range{Begin: 0, End: q.Len()},
		SubjectRange: align.Range{Begin: 0, End: s.Len()},
	}
	hsp, err := Align(q, s, anchor, matrix.Default, align.HspQueryCoords|align.HspTargetCoords)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if hsp.Length != 0 || hsp.Identities != 0 || hsp.Mismatches != 0 || hsp.Gaps != 0 || hsp.Transcript != nil {
		t.Errorf("Align without HspIdentLength/HspGapsMismatches/HspTranscript should leave those fields zero, got %+v", hsp)
	}
}

func TestApplyThresholdsDropsFailures(t *testing.T) {
	cfg := align.NewConfig()
	cfg.MaxEvalue = 1e-5
	cfg.MinBitScore = 50
	cfg.MinID = 90
	cfg.QueryCover = 80
	hsps := []align.Hsp{
		{Score: 100, BitScore: 60, EValue: 1e-10, Identities: 95, Length: 100, Query: align.Range{Begin: 0, End: 90}},
		{Score: 10, BitScore: 5, EValue: 1, Identities: 5, Length: 100, Query: align.Range{Begin: 0, End: 5}},
	}
	out := ApplyThresholds(hsps, cfg, 100, 100)
	if len(out) != 1 {
		t.Fatalf("ApplyThresholds: got %d survivors, want 1", len(out))
	}
	if out[0].Score != 100 {
		t.Errorf("survivor score = %d, want 100", out[0].Score)
	}
}

func TestCapPerTargetKeepsHighestFirst(t *testing.T) {
	hsps := []align.Hsp{
		{Score: 10}, {Score: 90}, {Score: 50},
	}
	out := CapPerTarget(hsps, 2)
	if len(out) != 2 {
		t.Fatalf("CapPerTarget: got %d, want 2", len(out))
	}
	if out[0].Score != 90 || out[1].Score != 50 {
		t.Errorf("CapPerTarget order = %v, want [90 50]", out)
	}
}

func TestCapPerTargetUnlimited(t *testing.T) {
	hsps := []align.Hsp{{Score: 1}, {Score: 2}, {Score: 3}}
	out := CapPerTarget(hsps, 0)
	if len(out) != 3 {
		t.Errorf("CapPerTarget(0) should not cap, got %d", len(out))
	}
}

func TestCullTargetsMaxAlignments(t *testing.T) {
	targets := []align.Target{
		{BlockID: 1, Hsps: []align.Hsp{{Score: 10}}},
		{BlockID: 2, Hsps: []align.Hsp{{Score: 90}}},
		{BlockID: 3, Hsps: []align.Hsp{{Score: 50}}},
	}
	out := CullTargets(targets, 2, 100)
	if len(out) != 2 {
		t.Fatalf("CullTargets: got %d, want 2", len(out))
	}
	if out[0].BlockID != 2 || out[1].BlockID != 3 {
		t.Errorf("CullTargets order = %v, want [2 3]", out)
	}
}

func TestCullTargetsTopPercent(t *testing.T) {
	targets := []align.Target{
		{BlockID: 1, Hsps: []align.Hsp{{Score: 100}}},
		{BlockID: 2, Hsps: []align.Hsp{{Score: 95}}},
		{BlockID: 3, Hsps: []align.Hsp{{Score: 10}}},
	}
	out := CullTargets(targets, 0, 10)
	if len(out) != 2 {
		t.Fatalf("CullTargets(topPercent=10): got %d targets, want 2 (within 10%% of best)", len(out))
	}
}

func TestRangeCullDropsContained(t *testing.T) {
	hsps := []align.Hsp{
		{Score: 100, Query: align.Range{Begin: 0, End: 100}},
		{Score: 10, Query: align.Range{Begin: 10, End: 20}}, // fully inside the first, lower score
		{Score: 80, Query: align.Range{Begin: 200, End: 300}},
	}
	out := RangeCull(hsps, 0.5)
	if len(out) != 2 {
		t.Fatalf("RangeCull: got %d survivors, want 2, got %v", len(out), out)
	}
	for _, h := range out {
		if h.Score == 10 {
			t.Errorf("RangeCull should have dropped the contained low-score HSP, got %v", out)
		}
	}
}

func TestRangeCullKeepsDisjoint(t *testing.T) {
	hsps := []align.Hsp{
		{Score: 50, Query: align.Range{Begin: 0, End: 10}},
		{Score: 60, Query: align.Range{Begin: 100, End: 110}},
	}
	out := RangeCull(hsps, 0.5)
	if len(out) != 2 {
		t.Errorf("RangeCull should keep disjoint HSPs, got %d", len(out))
	}
}

func TestSortMatchesByScore(t *testing.T) {
	matches := []align.Match{
		{BlockID: 1, Hsps: []align.Hsp{{Score: 10, EValue: 1e-3}}},
		{BlockID: 2, Hsps: []align.Hsp{{Score: 90, EValue: 1e-9}}},
	}
	SortMatches(matches, false)
	if matches[0].BlockID != 2 {
		t.Errorf("SortMatches: first match BlockID = %d, want 2 (highest score)", matches[0].BlockID)
	}
}

func TestSortMatchesTieBreakByEvalue(t *testing.T) {
	matches := []align.Match{
		{BlockID: 1, Hsps: []align.Hsp{{Score: 50, EValue: 1e-3}}},
		{BlockID: 2, Hsps: []align.Hsp{{Score: 50, EValue: 1e-9}}},
	}
	SortMatches(matches, true)
	if matches[0].BlockID != 2 {
		t.Errorf("SortMatches(topPercent=true): first match BlockID = %d, want 2 (lower evalue tiebreak)", matches[0].BlockID)
	}
}
