// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matrix

import (
	"sync"
	"testing"

	"github.com/kortschak/protex/align"
)

func TestDefaultScoreSymmetric(t *testing.T) {
	for _, a := range []byte(aaOrder) {
		for _, b := range []byte(aaOrder) {
			if Default.Score(a, b) != Default.Score(b, a) {
				t.Errorf("Score(%c,%c)=%d != Score(%c,%c)=%d", a, b, Default.Score(a, b), b, a, Default.Score(b, a))
			}
		}
	}
}

func TestDefaultScoreUnknown(t *testing.T) {
	if got := Default.Score('X', 'A'); got != -4 {
		t.Errorf("Score('X','A') = %d, want -4", got)
	}
}

func TestBitscoreMonotone(t *testing.T) {
	prev := Default.Bitscore(0)
	for s := 10; s <= 200; s += 10 {
		b := Default.Bitscore(s)
		if b <= prev {
			t.Fatalf("Bitscore not monotone at score %d: %v <= %v", s, b, prev)
		}
		prev = b
	}
}

func TestEvalueDecreasesWithScore(t *testing.T) {
	prev := Default.Evalue(10, 300, 300)
	for s := 20; s <= 200; s += 10 {
		e := Default.Evalue(s, 300, 300)
		if e >= prev {
			t.Fatalf("Evalue not decreasing at score %d: %v >= %v", s, e, prev)
		}
		prev = e
	}
}

func TestEvalueDegenerateLengths(t *testing.T) {
	if got := Default.Evalue(50, 0, 100); got != 1 {
		t.Errorf("Evalue with zero query length = %v, want 1", got)
	}
}

func TestPoolBuildsOnce(t *testing.T) {
	pool := NewPool(1)
	const n = 50
	var wg sync.WaitGroup
	results := make([]*ScaledMatrix, n)
	var calls int32
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = pool.GetOrBuild(7, func() *ScaledMatrix {
				mu.Lock()
				calls++
				mu.Unlock()
				return AdjustedMatrix(Composition{}, backgroundFreqs)
			})
		}(i)
	}
	wg.Wait()

	if pool.BuiltCount() != 1 {
		t.Errorf("BuiltCount() = %d, want 1", pool.BuiltCount())
	}
	first := results[0]
	for i, r := range results {
		if r != first {
			t.Errorf("result %d installed a different matrix pointer than result 0", i)
		}
	}
}

func TestComposeOfUniform(t *testing.T) {
	// The composition of an empty sequence should be all zero, never NaN.
	c := ComposeOf(align.Sequence{})
	for i, f := range c {
		if f != 0 {
			t.Errorf("zero Composition[%d] = %v, want 0", i, f)
		}
	}
}

func TestShouldAdjustDegenerateLength(t *testing.T) {
	if ShouldAdjust(0, 100, Composition{}, Composition{}, backgroundFreqs) {
		t.Error("ShouldAdjust with zero query length = true, want false")
	}
}
