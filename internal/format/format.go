// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package format implements the opaque output-format strategy named in
// spec.md §6 ("Outputs emitted... content format is chosen by an
// output-format strategy... This spec treats the format as opaque;
// only the ordering and completeness invariants are core") and §9
// ("Polymorphism over output formats... a tagged variant of format
// kinds with a uniform print_query_intro/print_match/print_query_epilog
// capability set").
//
// Only the BLAST-tabular variant is given a body here, since it is the
// minimal concrete sink the testable properties of spec.md §8 need to
// assert against (scenarios 1 and 2); XML/SAM/pairwise/binary-archive
// formats remain external collaborators per spec.md §1's "Out of
// scope" list. Adapted in reverse from the teacher's blast.ParseTabular
// (blast/blast.go), which reads this column layout; protex writes it
// instead.
package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kortschak/protex/align"
)

// Field identifies one column of the BLAST-tabular output, named after
// the field names used by NCBI BLAST's outfmt 6/-fields flag (spec.md
// §6: "BLAST tabular with a configurable field list").
type Field int

const (
	QSeqID Field = iota
	SSeqID
	PIdent
	Length
	Mismatch
	GapOpen
	QStart
	QEnd
	SStart
	SEnd
	EValue
	BitScore
)

var fieldNames = [...]string{
	QSeqID:   "qseqid",
	SSeqID:   "sseqid",
	PIdent:   "pident",
	Length:   "length",
	Mismatch: "mismatch",
	GapOpen:  "gapopen",
	QStart:   "qstart",
	QEnd:     "qend",
	SStart:   "sstart",
	SEnd:     "send",
	EValue:   "evalue",
	BitScore: "bitscore",
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, len(fieldNames))
	for f, name := range fieldNames {
		m[name] = Field(f)
	}
	return m
}()

// DefaultFields mirrors NCBI BLAST's default outfmt 6 column set.
var DefaultFields = []Field{QSeqID, SSeqID, PIdent, Length, Mismatch, GapOpen, QStart, QEnd, SStart, SEnd, EValue, BitScore}

// ParseFields resolves a comma-separated field-name list (as passed on
// the protex-align -fields flag) into a Field slice, rejecting unknown
// names.
func ParseFields(spec string) ([]Field, error) {
	if spec == "" {
		return DefaultFields, nil
	}
	names := strings.Split(spec, ",")
	fields := make([]Field, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		f, ok := fieldsByName[n]
		if !ok {
			return nil, fmt.Errorf("format: unknown field %q", n)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Tabular is a BLAST-tabular align.OutputFormat: one line per HSP,
// tab-separated, columns selected by Fields. When ReportUnaligned is
// set, a query with no surviving Match gets a single placeholder line
// (the qseqid, with "*" in every other configured field) instead
// of no output at all, matching spec.md §8 scenario 1.
type Tabular struct {
	Fields          []Field
	ReportUnaligned bool
}

// NewTabular returns a Tabular formatter over fields, defaulting to
// DefaultFields when fields is empty.
func NewTabular(fields []Field, reportUnaligned bool) Tabular {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return Tabular{Fields: fields, ReportUnaligned: reportUnaligned}
}

// PrintQueryIntro implements align.OutputFormat. Tabular output has no
// per-query header.
func (t Tabular) PrintQueryIntro(w io.Writer, queryID int, queryTitle string, queryLen int, unaligned bool) error {
	return nil
}

// PrintMatch implements align.OutputFormat: one tab-separated line per
// Hsp in m, in m's existing order (already score/e-value sorted by
// internal/sw.SortMatches).
func (t Tabular) PrintMatch(w io.Writer, queryTitle string, m align.Match, db align.DatabaseBlock, sourceQueryLen int) error {
	subjectID := queryTitle
	var subjectLen int
	if db != nil {
		subjectID = db.ID(m.BlockID)
		subjectLen = db.Seq(m.BlockID).Len()
	}
	for _, h := range m.Hsps {
		row := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			row[i] = t.renderField(f, queryTitle, subjectID, h, sourceQueryLen, subjectLen)
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return fmt.Errorf("format: write match row: %w", err)
		}
	}
	return nil
}

func (t Tabular) renderField(f Field, queryTitle, subjectID string, h align.Hsp, sourceQueryLen, subjectLen int) string {
	switch f {
	case QSeqID:
		return queryTitle
	case SSeqID:
		return subjectID
	case PIdent:
		return strconv.FormatFloat(h.IdentityPercent(), 'f', 2, 64)
	case Length:
		return strconv.Itoa(h.Length)
	case Mismatch:
		return strconv.Itoa(h.Mismatches)
	case GapOpen:
		return strconv.Itoa(h.Gaps)
	case QStart:
		return strconv.Itoa(h.Query.Begin + 1)
	case QEnd:
		return strconv.Itoa(h.Query.End)
	case SStart:
		return strconv.Itoa(h.Subject.Begin + 1)
	case SEnd:
		return strconv.Itoa(h.Subject.End)
	case EValue:
		return strconv.FormatFloat(h.EValue, 'g', -1, 64)
	case BitScore:
		return strconv.FormatFloat(h.BitScore, 'f', 1, 64)
	default:
		return ""
	}
}

// PrintQueryEpilog implements align.OutputFormat: when unaligned and
// ReportUnaligned is set, emits spec.md §8 scenario 1's placeholder
// row (queryTitle, then "*" for every other field, matching the
// "qseqid\tsseqid" example's "q0\t*" output). When unaligned and
// ReportUnaligned is false, emits nothing.
func (t Tabular) PrintQueryEpilog(w io.Writer, queryTitle string, unaligned bool) error {
	if !unaligned || !t.ReportUnaligned {
		return nil
	}
	row := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		if f == QSeqID {
			row[i] = queryTitle
		} else {
			row[i] = "*"
		}
	}
	_, err := fmt.Fprintln(w, strings.Join(row, "\t"))
	if err != nil {
		return fmt.Errorf("format: write unaligned row: %w", err)
	}
	return nil
}
