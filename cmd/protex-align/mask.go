// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"

	"github.com/kortschak/protex/align"
	"github.com/kortschak/protex/internal/mask"
)

// newMaskerFunc returns the internal/extend.Params.Masker callback for
// cfg's configured masking mode, invoking the seg/tantan external
// command once per target block and caching the result across the
// whole run via internal/mask.Masker's build-once protocol. Returns
// nil when masking is disabled, matching internal/extend's own
// "nil means leave unmasked" contract.
func newMaskerFunc(cfg align.Config, tmpDir string, logger io.Writer) func(uint32, align.Sequence) (align.Sequence, bool) {
	if cfg.Masking == align.NoMasking {
		return nil
	}
	m := mask.NewMasker(cfg)
	return func(blockID uint32, unmasked align.Sequence) (align.Sequence, bool) {
		masked, err := m.Mask(blockID, unmasked, func() (align.Sequence, error) {
			return runMask(cfg, unmasked, tmpDir, logger)
		})
		if err != nil {
			log.Printf("protex-align: mask block %d: %v", blockID, err)
			return align.Sequence{}, false
		}
		return masked, true
	}
}

// runMask writes seq to a temporary FASTA file, runs the seg/tantan
// command internal/mask.CommandFor selects for cfg, and parses the
// single-record masked FASTA it writes to stdout back into a
// align.Sequence.
func runMask(cfg align.Config, seq align.Sequence, tmpDir string, logger io.Writer) (align.Sequence, error) {
	in, err := os.CreateTemp(tmpDir, "protex-mask-in-*.fasta")
	if err != nil {
		return align.Sequence{}, fmt.Errorf("mask: create input: %w", err)
	}
	defer os.Remove(in.Name())
	if _, err := fmt.Fprintf(in, ">%s\n%s\n", seq.ID(), seq.Bytes()); err != nil {
		in.Close()
		return align.Sequence{}, fmt.Errorf("mask: write input: %w", err)
	}
	if err := in.Close(); err != nil {
		return align.Sequence{}, fmt.Errorf("mask: close input: %w", err)
	}

	cmd, err := mask.CommandFor(cfg, in.Name())
	if err != nil {
		return align.Sequence{}, err
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	if logger != nil {
		cmd.Stderr = logger
	} else {
		cmd.Stderr = io.Discard
	}
	if err := cmd.Run(); err != nil {
		return align.Sequence{}, fmt.Errorf("mask: run %s: %w", cmd.Path, err)
	}

	body, err := parseFastaBody(&out)
	if err != nil {
		return align.Sequence{}, fmt.Errorf("mask: parse output: %w", err)
	}
	return align.NewSequence(linear.NewSeq(seq.ID(), alphabet.BytesToLetters(body), alphabet.Protein)), nil
}

// parseFastaBody concatenates every non-header line of a single-record
// FASTA stream into one byte slice.
func parseFastaBody(r io.Reader) ([]byte, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var body []byte
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || line[0] == '>' {
			continue
		}
		body = append(body, line...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return body, nil
}
