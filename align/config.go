// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package align

// Sensitivity selects the default extension mode and composition
// statistics treatment, mirroring the teacher's named search-mode
// table (cmd/ins/main.go: blastnModes).
type Sensitivity int

const (
	Fast Sensitivity = iota
	Default
	MidSensitive
	Sensitive
	MoreSensitive
	VerySensitive
	UltraSensitive
)

// ExtensionMode selects how the ungapped+chaining stage treats a
// target: a full ungapped-only pass, a banded DP pass in one of two
// cost profiles, or a global (end-to-end) alignment.
type ExtensionMode int

const (
	BandedFast ExtensionMode = iota
	BandedSlow
	Full
	Global
)

// defaultExtMode mirrors original_source/src/align/extend.cpp's
// default_ext_mode table.
var defaultExtMode = map[Sensitivity]ExtensionMode{
	Fast:          BandedFast,
	Default:       BandedFast,
	MidSensitive:  BandedFast,
	Sensitive:     BandedFast,
	MoreSensitive: BandedSlow,
	VerySensitive: BandedSlow,
	UltraSensitive: BandedSlow,
}

// DefaultExtensionMode returns the extension mode associated with s.
func DefaultExtensionMode(s Sensitivity) ExtensionMode { return defaultExtMode[s] }

// CompBasedStats selects the composition-based scoring treatment
// (spec.md §6, values 0..4).
type CompBasedStats int

const (
	CBSNone CompBasedStats = iota
	CBSHauser
	CBSMatrixAdjust
	CBSHauserAndAvgMatrixAdjust
	CBSCompBasedStatsAndMatrixAdjust
)

// Hauser reports whether s applies the Hauser per-query bias
// correction.
func (s CompBasedStats) Hauser() bool {
	return s == CBSHauser || s == CBSHauserAndAvgMatrixAdjust
}

// MatrixAdjust reports whether s computes a query composition vector
// for matrix rescaling.
func (s CompBasedStats) MatrixAdjust() bool {
	return s == CBSMatrixAdjust || s == CBSHauserAndAvgMatrixAdjust || s == CBSCompBasedStatsAndMatrixAdjust
}

// AvgMatrix reports whether s uses the averaged, per-target-cached
// 16-bit adjusted matrix path (§4.4 item 2, §3 Lifecycles).
func (s CompBasedStats) AvgMatrix() bool {
	return s == CBSHauserAndAvgMatrixAdjust
}

// LoadBalancing selects the scheduling axis for one query's hit
// range (§4.7, §5).
type LoadBalancing int

const (
	QueryParallel LoadBalancing = iota
	TargetParallel
)

// Masking selects the lazy-masking algorithm applied to a target
// before extension (§4.4 item 1).
type Masking int

const (
	NoMasking Masking = iota
	Seg
	Tantan
)

// Config enumerates the knobs named in spec.md §6. Field names follow
// the spec's knob names in CamelCase; defaults are assigned by
// NewConfig, mirroring original_source/src/basic/config.cpp's option
// table defaults.
type Config struct {
	Sensitivity    Sensitivity
	ExtensionMode  ExtensionMode
	CompBasedStats CompBasedStats
	FrameShift     int

	MaxEvalue    float64
	MinBitScore  float64
	MinID        float64
	QueryCover   float64
	SubjectCover float64
	MaxAlignments int
	TopPercent    float64
	MaxHsps       int

	RankingScoreDropFactor float64
	RankingCutoffBitscore  float64
	ExtChunkSize           int
	NoRanking              bool

	// SeedHitDensity and ChunkSizeMultiplier implement the
	// chunk_size_multiplier heuristic from
	// original_source/src/align/extend.cpp, dropped from spec.md's
	// prose but restored per SPEC_FULL.md's supplemented features.
	// SeedHitDensity defaults to zero, which keeps the heuristic off
	// (no density is below zero), matching the source where the call
	// site is present but commented out; NewConfig sets
	// ChunkSizeMultiplier to 4, the factor returned once a density
	// threshold is set.
	SeedHitDensity     float64
	ChunkSizeMultiplier int

	Masking           Masking
	TantanMinMaskProb float64

	Threads             int
	ThreadsAlign         int
	LoadBalancing        LoadBalancing
	QueryParallelLimit   int

	GappedFilterEvalue float64

	InnerCullingOverlap float64

	// QueryMemory enables persisted per-query ranking memory (§4.3).
	QueryMemory bool

	// ChunkSize is the database block size in billions of letters
	// ("block-size" in the source), used by the seed-hit buffer's
	// max_bytes formula (§4.1).
	ChunkSize float64
	// IndexChunks is the number of index chunks the database was
	// split into, also feeding the max_bytes formula.
	IndexChunks int
	// TracePtFetchSize is an absolute byte ceiling on one seed-hit
	// batch.
	TracePtFetchSize int64
	// MemoryLimit, in gigabytes, when non-zero overrides max_bytes
	// with a floor derived from it (§4.1).
	MemoryLimit float64

	ReportUnaligned bool
}

// NewConfig returns a Config populated with the defaults named in
// spec.md §4.3/§6 and original_source/src/basic/config.cpp.
func NewConfig() Config {
	return Config{
		Sensitivity:    Default,
		ExtensionMode:  DefaultExtensionMode(Default),
		CompBasedStats: CBSHauser,

		MaxEvalue:     10,
		MaxAlignments: 25,
		TopPercent:    100,
		MaxHsps:       1,

		RankingScoreDropFactor: 0.95,
		RankingCutoffBitscore:  25.0,

		ChunkSizeMultiplier: 4,

		Masking:           Tantan,
		TantanMinMaskProb: 0.9,

		LoadBalancing:      QueryParallel,
		QueryParallelLimit: 3_000_000,

		GappedFilterEvalue: -1.0,

		InnerCullingOverlap: 0.5,

		ChunkSize:        2.0,
		IndexChunks:      1,
		TracePtFetchSize: 1 << 32,
	}
}
