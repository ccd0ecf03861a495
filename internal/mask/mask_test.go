// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mask

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kortschak/protex/align"
)

func TestCommandForTantan(t *testing.T) {
	cfg := align.NewConfig()
	cfg.Masking = align.Tantan
	cfg.TantanMinMaskProb = 0.9
	cmd, err := CommandFor(cfg, "db.fasta")
	if err != nil {
		t.Fatalf("CommandFor: %v", err)
	}
	s := strings.Join(cmd.Args, " ")
	if !strings.Contains(s, "tantan") || !strings.Contains(s, "db.fasta") {
		t.Errorf("tantan command args = %q, missing expected tokens", s)
	}
}

func TestCommandForUnsupported(t *testing.T) {
	cfg := align.NewConfig()
	cfg.Masking = align.NoMasking
	if _, err := CommandFor(cfg, "db.fasta"); err == nil {
		t.Error("CommandFor with NoMasking: want error, got nil")
	}
}

func TestMaskerBuildsOnce(t *testing.T) {
	cfg := align.NewConfig()
	cfg.Masking = align.Tantan
	m := NewMasker(cfg)

	var calls int32
	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Mask(3, align.Sequence{}, func() (align.Sequence, error) {
				atomic.AddInt32(&calls, 1)
				return align.Sequence{}, nil
			})
			if err != nil {
				t.Errorf("Mask: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("build called %d times, want 1", calls)
	}
}

func TestMaskerSkipsWhenDisabled(t *testing.T) {
	cfg := align.NewConfig()
	cfg.Masking = align.NoMasking
	m := NewMasker(cfg)

	var called bool
	seq, err := m.Mask(1, align.Sequence{}, func() (align.Sequence, error) {
		called = true
		return align.Sequence{}, nil
	})
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if called {
		t.Error("build was called despite NoMasking")
	}
	_ = seq
}
