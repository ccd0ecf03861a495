// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/fai"

	"github.com/kortschak/protex/align"
	"github.com/kortschak/protex/internal/loader"
)

// fastaDB is the reference implementation of align.DatabaseBlock used
// by protex-align: a FASTA file read through biogo/hts/fai's
// random-access index, the same collaborator the teacher's
// cmd/ins/main.go uses for its sequence lookups. The whole file is
// read into memory when it is opened, and each fetch extracts the
// sequence from it again; extracted sequences are not cached. Masking
// installs a
// replacement via WriteMaskedSeq under the race-free check-then-mask
// protocol of spec.md §4.4 item 1.
type fastaDB struct {
	file *fai.File
	ids  []string
	lens []int64

	mu     sync.Mutex
	masked map[uint32]align.Sequence
}

// openFastaDB indexes and opens the FASTA file at path. Target block
// ids follow the accessions sorted alphabetically; the fai index is a
// map and carries no order of its own.
func openFastaDB(path string) (*fastaDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("protex-align: open db %s: %w", path, err)
	}
	defer f.Close()
	idx, err := fai.NewIndex(f)
	if err != nil {
		return nil, fmt.Errorf("protex-align: index db %s: %w", path, err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("protex-align: read db %s: %w", path, err)
	}
	file := fai.NewFile(bytes.NewReader(b), idx)

	var ids []string
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lens := make([]int64, len(ids))
	for i, id := range ids {
		lens[i] = int64(idx[id].Length)
	}

	return &fastaDB{file: file, ids: ids, lens: lens, masked: make(map[uint32]align.Sequence)}, nil
}

// PrefixSums builds the internal/loader.PrefixSums table over the
// database's target lengths, used to resolve a flattened subject byte
// offset to (target block id, in-target offset) per spec.md §4.2.
func (d *fastaDB) PrefixSums() loader.PrefixSums { return loader.NewPrefixSums(d.lens) }

func (d *fastaDB) fetch(blockID uint32) align.Sequence {
	r, err := d.file.SeqRange(d.ids[blockID], 0, int(d.lens[blockID]))
	if err != nil {
		panic(fmt.Sprintf("protex-align: fetch %s: %v", d.ids[blockID], err))
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		panic(fmt.Sprintf("protex-align: read %s: %v", d.ids[blockID], err))
	}
	return align.NewSequence(linear.NewSeq(d.ids[blockID], alphabet.BytesToLetters(raw), alphabet.Protein))
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
		n += l
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

// loadQueries reads every record of a FASTA file into memory as
// single-frame (protein) query sequences. protex-align's reference
// wiring only exercises frame 0 of the library's multi-frame
// machinery; translated-nucleotide 6-frame queries are a library
// capability (align.Config.FrameShift, internal/extend, internal/sw)
// that this CLI does not itself drive, matching the database-block
// and FASTA-parsing "out of scope" boundary of spec.md §1.
func loadQueries(path string) ([]align.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("protex-align: open query %s: %w", path, err)
	}
	defer f.Close()
	idx, err := fai.NewIndex(f)
	if err != nil {
		return nil, fmt.Errorf("protex-align: index query %s: %w", path, err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("protex-align: read query %s: %w", path, err)
	}
	file := fai.NewFile(bytes.NewReader(b), idx)

	var ids []string
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seqs := make([]align.Sequence, len(ids))
	for i, id := range ids {
		r, err := file.SeqRange(id, 0, int(idx[id].Length))
		if err != nil {
			return nil, fmt.Errorf("protex-align: fetch query %s: %w", id, err)
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("protex-align: read query %s: %w", id, err)
		}
		seqs[i] = align.NewSequence(linear.NewSeq(id, alphabet.BytesToLetters(raw), alphabet.Protein))
	}
	return seqs, nil
}
