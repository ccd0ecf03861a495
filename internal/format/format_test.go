// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package format

import (
	"bytes"
	"testing"

	"github.com/kortschak/protex/align"
)

func TestUnalignedQuery(t *testing.T) {
	fields, err := ParseFields("qseqid,sseqid")
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}
	tab := NewTabular(fields, true)

	var buf bytes.Buffer
	if err := tab.PrintQueryEpilog(&buf, "q0", true); err != nil {
		t.Fatalf("PrintQueryEpilog: %v", err)
	}
	want := "q0\t*\n"
	if buf.String() != want {
		t.Errorf("PrintQueryEpilog output = %q, want %q", buf.String(), want)
	}
}

func TestUnalignedQuerySuppressedByDefault(t *testing.T) {
	tab := NewTabular(DefaultFields, false)
	var buf bytes.Buffer
	if err := tab.PrintQueryEpilog(&buf, "q0", true); err != nil {
		t.Fatalf("PrintQueryEpilog: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("PrintQueryEpilog with ReportUnaligned=false wrote %q, want empty", buf.String())
	}
}

type fixedDB struct {
	id  string
	len int
}

func (d fixedDB) Seq(uint32) align.Sequence              { return align.Sequence{} }
func (d fixedDB) UnmaskedSeq(uint32) align.Sequence       { return align.Sequence{} }
func (d fixedDB) ID(uint32) string                        { return d.id }
func (d fixedDB) Len() int                                 { return 1 }
func (d fixedDB) Letters() int64                           { return int64(d.len) }
func (d fixedDB) FetchSeqIfUnmasked(uint32) (align.Sequence, bool) { return align.Sequence{}, true }
func (d fixedDB) WriteMaskedSeq(uint32, align.Sequence)   {}

func TestPerfectMatchRow(t *testing.T) {
	tab := NewTabular(DefaultFields, false)
	m := align.Match{
		BlockID: 0,
		Hsps: []align.Hsp{
			{
				Score: 521, BitScore: 199.5, EValue: 1e-60,
				Query:      align.Range{Begin: 0, End: 100},
				Subject:    align.Range{Begin: 0, End: 100},
				Length:     100,
				Identities: 100,
			},
		},
	}
	var buf bytes.Buffer
	if err := tab.PrintMatch(&buf, "query1", m, fixedDB{id: "subject1", len: 100}, 100); err != nil {
		t.Fatalf("PrintMatch: %v", err)
	}
	want := "query1\tsubject1\t100.00\t100\t0\t0\t1\t100\t1\t100\t1e-60\t199.5\n"
	if buf.String() != want {
		t.Errorf("PrintMatch output =\n%q\nwant\n%q", buf.String(), want)
	}
}
