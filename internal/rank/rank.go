// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rank implements the adaptive target ranker of spec.md §4.3:
// it decides how many of a query's score-sorted targets to extend in
// each round, expanding the window when a round finds new hits and
// stopping once the marginal round stops paying off or a persisted
// per-query memory says it isn't worth trying.
//
// Grounded directly on original_source/src/align/extend.cpp's
// ranking_chunk_size and the chunked while loop in its
// vector<Match> extend(...) overload.
package rank

import (
	"math"
	"sort"

	"github.com/kortschak/protex/align"
)

// MaxChunkSize and MinChunkSize are the clamps on the ranking chunk
// size named in extend.cpp's MAX_CHUNK_SIZE/MIN_CHUNK_SIZE.
const (
	MaxChunkSize = 400
	MinChunkSize = 128
)

// ChunkSize computes the number of targets to extend per ranking
// round, following original_source/src/align/extend.cpp's
// ranking_chunk_size: a sensitivity-dependent "default letters"
// constant sets a block multiplier against the reference database
// size, and either the top-percent or max-alignments branch picks the
// base chunk before the multiplier is applied.
func ChunkSize(cfg align.Config, targetCount int, refLetters int64) int {
	if cfg.NoRanking {
		return targetCount
	}
	if cfg.ExtChunkSize > 0 {
		return cfg.ExtChunkSize
	}
	defaultLetters := 2e9
	if cfg.Sensitivity >= align.VerySensitive {
		defaultLetters = 800e6
	}
	blockMult := int(math.Round(float64(refLetters) / defaultLetters))
	if blockMult < 1 {
		blockMult = 1
	}
	if cfg.TopPercent < 100 {
		return MinChunkSize * blockMult
	}
	base := makeMultiple(cfg.MaxAlignments, 32)
	if base > MaxChunkSize {
		base = MaxChunkSize
	}
	if base < MinChunkSize {
		base = MinChunkSize
	}
	return base * blockMult
}

func makeMultiple(n, m int) int {
	if n%m == 0 {
		return n
	}
	return (n/m + 1) * m
}

// ChunkSizeMultiplier implements the "chunk_size_multiplier" knob
// supplemented from original_source/src/align/extend.cpp's
// chunk_size_multiplier: when the seed hit density (hits * query
// length / total hit bytes) falls below the configured density
// threshold, it returns cfg.ChunkSizeMultiplier instead of 1. Extend
// does not call it, so the multiplier does not widen any round.
func ChunkSizeMultiplier(cfg align.Config, hitCount, hitBytes int64, queryLen int) int {
	if hitBytes == 0 {
		return 1
	}
	density := float64(hitCount) * float64(queryLen) / float64(hitBytes)
	if density < cfg.SeedHitDensity {
		return cfg.ChunkSizeMultiplier
	}
	return 1
}

// unifiedTargetLen is the UNIFIED_TARGET_LEN constant from
// extend.cpp, used to fast-skip the top-percent==100 scan ahead by 16
// scores at a time rather than testing every candidate individually.
const unifiedTargetLen = 50

// Round spans one chunk of the ranking window: its score-sorted
// TargetScore slice and the block ids/hits it covers.
type Round struct {
	Scores   []align.TargetScore
	BlockIDs []uint32
	Hits     [][]align.LocalHit
}

// Stage is the extension pipeline invoked once per ranking round: it
// takes this round's targets and returns the Targets that produced at
// least one surviving Hsp. Supplied by the caller (internal/extend +
// internal/gapped + internal/sw composed together) so rank stays
// decoupled from the DP machinery.
type Stage func(round Round) ([]align.Target, error)

// Memory is the persisted per-query ranking state of spec.md §4.3
// (backed by internal/store's QueryMemory encoding over
// modernc.org/kv in production; an in-memory map suffices for tests
// and small runs).
type Memory interface {
	LowScore(query uint32) int
	RankFailCount(query uint32) int
	RankFailScore(query uint32) int
	UpdateFailedCount(query uint32, count, score int)
	Update(query uint32, best int)
}

// appendHits merges add into existing, keeping only the capN
// best-scoring targets (BestScore descending), and reports whether
// any element of add survived the cap — the "new_hits" test
// extend.cpp's append_hits makes to decide whether a round was
// productive.
func appendHits(existing, add []align.Target, capN int) (merged []align.Target, newHits bool) {
	merged = make([]align.Target, 0, len(existing)+len(add))
	merged = append(merged, existing...)
	merged = append(merged, add...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].BestScore() > merged[j].BestScore() })
	if len(merged) > capN {
		merged = merged[:capN]
	}
	added := make(map[uint32]bool, len(add))
	for _, t := range add {
		added[t.BlockID] = true
	}
	for _, t := range merged {
		if added[t.BlockID] {
			newHits = true
			break
		}
	}
	return merged, newHits
}

// Extend runs the chunked ranking loop of spec.md §4.3 over a query's
// full score-sorted target list, invoking stage once per round and
// widening the window until a round is unproductive, the ranking
// score has dropped too far below the round's tail score, the tail
// bitscore falls under the configured cutoff, or persisted per-query
// memory says this query has failed to rank further before.
//
// The early-exit test below compares against the bitscore of the
// round just completed (all.Scores[i1-1], the last element of the
// current chunk), matching original_source/src/align/extend.cpp's
// literal behavior of testing the completed chunk's tail rather than
// the next chunk's leading candidate; see SPEC_FULL.md's "Open
// Questions — decisions" item 1 for why this is kept rather than
// "corrected".
func Extend(queryID uint32, cfg align.Config, refLetters int64, queryLen int, all Round, mem Memory, matrix align.ScoreMatrix, stage Stage) ([]align.Target, error) {
	targetCount := len(all.Scores)
	if targetCount == 0 {
		return nil, nil
	}
	chunkSize := ChunkSize(cfg, targetCount, refLetters)

	i0, i1 := 0, min(chunkSize, targetCount)
	if cfg.TopPercent == 100 && cfg.MinBitScore == 0 {
		for i1 < targetCount && matrix.Evalue(int(all.Scores[i1].Score), queryLen, unifiedTargetLen) <= cfg.MaxEvalue {
			i1 = min(i1+16, targetCount)
		}
	}

	var tailScore int
	var aligned []align.Target
	for i0 < targetCount {
		currentChunkSize := i1 - i0
		multiChunk := currentChunkSize < targetCount
		if cfg.QueryMemory && mem != nil && mem.RankFailCount(queryID) >= chunkSize && mem.RankFailScore(queryID) >= int(all.Scores[i0].Score) {
			break
		}

		round := Round{Scores: all.Scores[i0:i1]}
		if multiChunk {
			round.BlockIDs = make([]uint32, currentChunkSize)
			round.Hits = make([][]align.LocalHit, currentChunkSize)
			for k, ts := range all.Scores[i0:i1] {
				round.BlockIDs[k] = all.BlockIDs[ts.Index]
				round.Hits[k] = all.Hits[ts.Index]
			}
		} else {
			round.BlockIDs = all.BlockIDs
			round.Hits = all.Hits
		}

		v, err := stage(round)
		if err != nil {
			return nil, err
		}

		var newHits bool
		if multiChunk {
			aligned, newHits = appendHits(aligned, v, chunkSize)
		} else {
			aligned = v
			newHits = len(v) > 0
		}

		if len(v) == 0 || !newHits {
			if cfg.QueryMemory && mem != nil && currentChunkSize >= chunkSize {
				mem.UpdateFailedCount(queryID, currentChunkSize, int(all.Scores[i1-1].Score))
			}
			tailBitScore := matrix.Bitscore(int(all.Scores[i1-1].Score))
			if tailScore == 0 || float64(all.Scores[i1-1].Score)/float64(tailScore) <= cfg.RankingScoreDropFactor || tailBitScore < cfg.RankingCutoffBitscore {
				break
			}
		} else {
			tailScore = int(all.Scores[i1-1].Score)
		}

		i0 = i1
		step := min(chunkSize, MaxChunkSize)
		i1 = min(i1+step, targetCount)
	}
	return aligned, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
