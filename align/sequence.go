// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package align

import (
	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"
)

// Sequence is a read-only view of a query or subject sequence, shared
// by every pipeline stage. It wraps biogo's linear.Seq rather than a
// bare []byte so that masking, alphabet translation and frame
// extraction can all reuse biogo's alphabet machinery the way the
// teacher's fragment splitting and masking code does.
type Sequence struct {
	seq *linear.Seq
}

// NewSequence wraps a linear.Seq as a Sequence.
func NewSequence(s *linear.Seq) Sequence { return Sequence{seq: s} }

// Len returns the sequence length.
func (s Sequence) Len() int {
	if s.seq == nil {
		return 0
	}
	return s.seq.Len()
}

// At returns the letter at zero-based position i.
func (s Sequence) At(i int) alphabet.Letter { return s.seq.Seq[i] }

// Bytes returns the raw letters backing the sequence. Callers must
// not mutate the result unless they hold the one license to mask it
// (see internal/mask).
func (s Sequence) Bytes() []byte {
	b := make([]byte, len(s.seq.Seq))
	for i, l := range s.seq.Seq {
		b[i] = byte(l)
	}
	return b
}

// ID returns the sequence identifier.
func (s Sequence) ID() string { return s.seq.ID }

// Raw exposes the underlying linear.Seq for stages (masking, frame
// translation) that need biogo's own sequence API.
func (s Sequence) Raw() *linear.Seq { return s.seq }
