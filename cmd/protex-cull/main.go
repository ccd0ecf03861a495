// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// protex-cull discards BLAST-tabular rows whose subject range is
// completely contained within a higher-scoring row against the same
// subject, reading from stdin and writing the surviving rows to
// stdout in their original order.
//
// usage: protex-cull < hits.tsv > culled.tsv
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/store/interval"
)

func main() {
	flag.Usage = func() {
		fmt.Println(`usage: protex-cull < hits.tsv > culled.tsv`)
		os.Exit(0)
	}
	flag.Parse()

	rows, err := readRows(os.Stdin)
	if err != nil {
		log.Fatal(err)
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, r := range cullContained(rows) {
		if _, err := fmt.Fprintln(w, r.line); err != nil {
			log.Fatal(err)
		}
	}
}

// row is one parsed BLAST-tabular record, keeping the original line
// verbatim so culling never has to re-render a field set it didn't
// parse.
type row struct {
	line       string
	subject    string
	start, end int
	bitScore   float64
}

// readRows parses the minimal column set protex-cull needs
// (sseqid, sstart, send, bitscore) out of a BLAST-tabular stream
// matching internal/format.DefaultFields' column order, skipping
// malformed or placeholder ("*") rows rather than failing the run.
func readRows(r *os.File) ([]row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var rows []row
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Split(line, "\t")
		if len(fields) < 12 || fields[1] == "*" {
			continue
		}
		start, err1 := strconv.Atoi(fields[8])
		end, err2 := strconv.Atoi(fields[9])
		bitScore, err3 := strconv.ParseFloat(fields[11], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		if start > end {
			start, end = end, start
		}
		rows = append(rows, row{line: line, subject: fields[1], start: start, end: end, bitScore: bitScore})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("protex-cull: scan: %w", err)
	}
	return rows, nil
}

// cullContained removes, per subject, every row whose [start,end]
// range is completely contained within a higher-bitscore row's range
// against the same subject, following cmd/cull/main.go's
// interval.IntTree containment idiom (there applied to GFF features,
// here to subject coordinate ranges).
func cullContained(rows []row) []row {
	trees := make(map[string]*interval.IntTree)
	for i, r := range rows {
		t, ok := trees[r.subject]
		if !ok {
			t = &interval.IntTree{}
			trees[r.subject] = t
		}
		if err := t.Insert(rowInterval{uid: uintptr(i), row: r}, true); err != nil {
			log.Fatal(err)
		}
	}
	for _, t := range trees {
		t.AdjustRanges()
	}

	var culled []row
outer:
	for _, r := range rows {
		t := trees[r.subject]
		for _, h := range t.Get(rowInterval{row: r}) {
			other := h.(rowInterval).row
			if other.line == r.line {
				continue
			}
			if other.bitScore > r.bitScore {
				continue outer
			}
		}
		culled = append(culled, r)
	}
	return culled
}

type rowInterval struct {
	uid uintptr
	row row
}

// Overlap reports whether b completely contains i's range.
func (i rowInterval) Overlap(b interval.IntRange) bool {
	return b.Start <= i.row.start && i.row.end <= b.End
}
func (i rowInterval) ID() uintptr { return i.uid }
func (i rowInterval) Range() interval.IntRange {
	return interval.IntRange{Start: i.row.start, End: i.row.end}
}
