// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mask wraps the seg and tantan low-complexity region maskers
// named in spec.md §6 (Masking/TantanMinMaskProb config knobs) as
// external commands, built with github.com/biogo/external's
// struct-tag argument builder.
//
// Adapted from blast.MakeDB and blast.Nucleic in this module's
// ancestor, which used the same struct-tag/BuildCommand pattern to
// wrap makeblastdb and blastn; mask replaces those BLAST wrappers
// with the two maskers a composition- and seed-based aligner actually
// needs upstream of indexing.
package mask

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/biogo/external"

	"github.com/kortschak/protex/align"
)

// Seg wraps the `seg` low-complexity protein masker.
//
// Usage: seg <file> -x
type Seg struct {
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}seg{{end}}"` // seg

	File string `buildarg:"{{.}}"`             // <s>
	Mask bool   `buildarg:"{{if .}}-x{{end}}"` // -x: replace, don't annotate

	// ExtraFlags will be passed through to seg as flags.
	ExtraFlags string
}

func (s Seg) BuildCommand() (*exec.Cmd, error) {
	if s.File == "" {
		return nil, fmt.Errorf("mask: seg: missing input file")
	}
	cl := external.Must(external.Build(s))
	return exec.Command(cl[0], cl[1:]...), nil
}

// Tantan wraps the `tantan` low-complexity masker, used for the
// TantanMinMaskProb-driven masking pass (spec.md §6, default enabled
// per original_source/src/basic/config.cpp's masking=tantan).
//
// Usage: tantan -x N -p <file>
type Tantan struct {
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}tantan{{end}}"` // tantan

	Protein  bool    `buildarg:"{{if .}}-p{{end}}"`                 // -p: protein alphabet
	MaskChar string  `buildarg:"{{with .}}-x{{split}}{{.}}{{end}}"` // -x <c>
	MinProb  float64 `buildarg:"{{if .}}-c{{split}}{{.}}{{end}}"`   // -c <f>: minimum mask probability
	File     string  `buildarg:"{{.}}"`                             // <s>

	// ExtraFlags will be passed through to tantan as flags.
	ExtraFlags string
}

func (t Tantan) BuildCommand() (*exec.Cmd, error) {
	if t.File == "" {
		return nil, fmt.Errorf("mask: tantan: missing input file")
	}
	cl := external.Must(external.Build(t))
	return exec.Command(cl[0], cl[1:]...), nil
}

// CommandFor builds the exec.Cmd appropriate for cfg's configured
// masking mode over the sequence file at path.
func CommandFor(cfg align.Config, path string) (*exec.Cmd, error) {
	switch cfg.Masking {
	case align.Seg:
		return Seg{File: path, Mask: true}.BuildCommand()
	case align.Tantan:
		return Tantan{File: path, Protein: true, MinProb: cfg.TantanMinMaskProb, MaskChar: "X"}.BuildCommand()
	default:
		return nil, fmt.Errorf("mask: unsupported masking mode %v", cfg.Masking)
	}
}

// Masker produces a masked form of a DatabaseBlock sequence at most
// once per block id, sharing the result across every concurrent
// caller that asks for the same block. This is the same "build once,
// share" shape as internal/matrix's composition-adjustment Pool,
// applied here to masked sequences: the actual seg/tantan invocation
// and FASTA round-trip is supplied by the caller as build, since the
// filesystem/DatabaseBlock plumbing that produces the input file and
// consumes the output lives with the database backend, not here.
type Masker struct {
	cfg align.Config

	mu    sync.Mutex
	once  map[uint32]*sync.Once
	ready map[uint32]align.Sequence
	err   map[uint32]error
}

// NewMasker returns a Masker configured per cfg.Masking.
func NewMasker(cfg align.Config) *Masker {
	return &Masker{
		cfg:   cfg,
		once:  make(map[uint32]*sync.Once),
		ready: make(map[uint32]align.Sequence),
		err:   make(map[uint32]error),
	}
}

// Mask returns the masked sequence for blockID, invoking build at most
// once across all concurrent callers. If cfg.Masking is
// align.NoMasking, build is never called and seq is returned
// unchanged.
func (m *Masker) Mask(blockID uint32, seq align.Sequence, build func() (align.Sequence, error)) (align.Sequence, error) {
	if m.cfg.Masking == align.NoMasking {
		return seq, nil
	}

	m.mu.Lock()
	once, ok := m.once[blockID]
	if !ok {
		once = new(sync.Once)
		m.once[blockID] = once
	}
	m.mu.Unlock()

	once.Do(func() {
		masked, err := build()
		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			m.err[blockID] = err
			return
		}
		m.ready[blockID] = masked
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.err[blockID]; ok {
		return align.Sequence{}, err
	}
	return m.ready[blockID], nil
}
