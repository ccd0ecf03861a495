// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package align_test

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/fai"

	"github.com/kortschak/protex/align"
)

// fastaDB is a minimal align.DatabaseBlock backed by an in-memory
// FASTA file read through biogo/hts/fai's random-access index, the
// same collaborator the teacher's cmd/ins/main.go uses for its
// query/library sequence lookups (fai.NewIndex/fai.NewFile/SeqRange).
// It stands in for the external database-block collaborator of
// spec.md §6 well enough to exercise the masking lifecycle's
// check-then-mask-once contract (spec.md §4.4 item 1).
type fastaDB struct {
	file *fai.File
	ids  []string
	lens []int

	mu     sync.Mutex
	masked map[uint32]align.Sequence
}

func newFastaDB(t *testing.T, fasta string, ids []string, lens []int) *fastaDB {
	t.Helper()
	data := []byte(fasta)
	idx, err := fai.NewIndex(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("fai.NewIndex: %v", err)
	}
	return &fastaDB{
		file:   fai.NewFile(bytes.NewReader(data), idx),
		ids:    ids,
		lens:   lens,
		masked: make(map[uint32]align.Sequence),
	}
}

func (d *fastaDB) fetch(blockID uint32) align.Sequence {
	r, err := d.file.SeqRange(d.ids[blockID], 0, d.lens[blockID])
	if err != nil {
		panic(err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		panic(err)
	}
	return align.NewSequence(linear.NewSeq(d.ids[blockID], alphabet.BytesToLetters(b), alphabet.Protein))
}

func (d *fastaDB) Seq(blockID uint32) align.Sequence {
	d.mu.Lock()
	if s, ok := d.masked[blockID]; ok {
		d.mu.Unlock()
		return s
	}
	d.mu.Unlock()
	return d.fetch(blockID)
}

func (d *fastaDB) UnmaskedSeq(blockID uint32) align.Sequence { return d.fetch(blockID) }
func (d *fastaDB) ID(blockID uint32) string                  { return d.ids[blockID] }
func (d *fastaDB) Len() int                                  { return len(d.ids) }

func (d *fastaDB) Letters() int64 {
	var n int64
	for _, l := range d.lens {
		n += int64(l)
	}
	return n
}

func (d *fastaDB) FetchSeqIfUnmasked(blockID uint32) (align.Sequence, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.masked[blockID]; ok {
		return align.Sequence{}, false
	}
	return d.fetch(blockID), true
}

func (d *fastaDB) WriteMaskedSeq(blockID uint32, seq align.Sequence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.masked[blockID] = seq
}

var _ align.DatabaseBlock = (*fastaDB)(nil)

func TestFastaDBRoundTrip(t *testing.T) {
	const fasta = ">subject1\nMKTAYIAKQRQISFVKSHFSRQLEERLGLIEV\n>subject2\nAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA\n"
	db := newFastaDB(t, fasta, []string{"subject1", "subject2"}, []int{32, 32})

	if got, want := db.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got, want := db.Letters(), int64(64); got != want {
		t.Fatalf("Letters() = %d, want %d", got, want)
	}
	seq := db.UnmaskedSeq(0)
	if got, want := seq.Len(), 32; got != want {
		t.Fatalf("UnmaskedSeq(0).Len() = %d, want %d", got, want)
	}
	if got, want := string(seq.Bytes()[:3]), "MKT"; got != want {
		t.Fatalf("UnmaskedSeq(0).Bytes()[:3] = %q, want %q", got, want)
	}
}

func TestFastaDBMaskOnce(t *testing.T) {
	const fasta = ">subject1\nMKTAYIAKQRQISFVKSHFSRQLEERLGLIEV\n"
	db := newFastaDB(t, fasta, []string{"subject1"}, []int{32})

	seq, ok := db.FetchSeqIfUnmasked(0)
	if !ok {
		t.Fatal("FetchSeqIfUnmasked(0) = false on first call, want true")
	}
	masked := align.NewSequence(linear.NewSeq("subject1", alphabet.BytesToLetters(bytes.Repeat([]byte{'X'}, seq.Len())), alphabet.Protein))
	db.WriteMaskedSeq(0, masked)

	if _, ok := db.FetchSeqIfUnmasked(0); ok {
		t.Fatal("FetchSeqIfUnmasked(0) = true after WriteMaskedSeq, want false")
	}
	if got := db.Seq(0).Bytes()[0]; got != 'X' {
		t.Fatalf("Seq(0) after masking = %q, want masked form", got)
	}
}
