// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package matrix provides the default substitution scoring matrix,
// Karlin-Altschul bitscore/e-value statistics and the
// composition-based scoring (CBS) matrix-adjustment machinery of
// spec.md §4.4 item 2.
//
// The matrix table shape (a square table over the 20 standard amino
// acids plus ambiguity/stop codes) is grounded on
// original_source/src/stats/matrices/blosum80.cpp; protex uses the
// standard BLOSUM62 values (the field's default matrix) rather than
// that file's BLOSUM80 table.
package matrix

import "math"

// aaOrder is the residue order backing the BLOSUM62 table below:
// A R N D C Q E G H I L K M F P S T W Y V.
const aaOrder = "ARNDCQEGHILKMFPSTWYV"

// blosum62 is the standard BLOSUM62 substitution matrix, indexed in
// aaOrder order.
var blosum62 = [20][20]int8{
	{4, -1, -2, -2, 0, -1, -1, 0, -2, -1, -1, -1, -1, -2, -1, 1, 0, -3, -2, 0},
	{-1, 5, 0, -2, -3, 1, 0, -2, 0, -3, -2, 2, -1, -3, -2, -1, -1, -3, -2, -3},
	{-2, 0, 6, 1, -3, 0, 0, 0, 1, -3, -3, 0, -2, -3, -2, 1, 0, -4, -2, -3},
	{-2, -2, 1, 6, -3, 0, 2, -1, -1, -3, -4, -1, -3, -3, -1, 0, -1, -4, -3, -3},
	{0, -3, -3, -3, 9, -3, -4, -3, -3, -1, -1, -3, -1, -2, -3, -1, -1, -2, -2, -1},
	{-1, 1, 0, 0, -3, 5, 2, -2, 0, -3, -2, 1, 0, -3, -1, 0, -1, -2, -1, -2},
	{-1, 0, 0, 2, -4, 2, 5, -2, 0, -3, -3, 1, -2, -3, -1, 0, -1, -3, -2, -2},
	{0, -2, 0, -1, -3, -2, -2, 6, -2, -4, -4, -2, -3, -3, -2, 0, -2, -2, -3, -3},
	{-2, 0, 1, -1, -3, 0, 0, -2, 8, -3, -3, -1, -2, -1, -2, -1, -2, -2, 2, -3},
	{-1, -3, -3, -3, -1, -3, -3, -4, -3, 4, 2, -3, 1, 0, -3, -2, -1, -3, -1, 3},
	{-1, -2, -3, -4, -1, -2, -3, -4, -3, 2, 4, -2, 2, 0, -3, -2, -1, -2, -1, 1},
	{-1, 2, 0, -1, -3, 1, 1, -2, -1, -3, -2, 5, -1, -3, -1, 0, -1, -3, -2, -2},
	{-1, -1, -2, -3, -1, 0, -2, -3, -2, 1, 2, -1, 5, 0, -2, -1, -1, -1, -1, 1},
	{-2, -3, -3, -3, -2, -3, -3, -3, -1, 0, 0, -3, 0, 6, -4, -2, -2, 1, 3, -1},
	{-1, -2, -2, -1, -3, -1, -1, -2, -2, -3, -3, -1, -2, -4, 7, -1, -1, -4, -3, -2},
	{1, -1, 1, 0, -1, 0, 0, 0, -1, -2, -2, 0, -1, -2, -1, 4, 1, -3, -2, -2},
	{0, -1, 0, -1, -1, -1, -1, -2, -2, -1, -1, -1, -1, -2, -1, 1, 5, -2, -2, 0},
	{-3, -3, -4, -4, -2, -2, -3, -2, -2, -3, -2, -3, -1, 1, -4, -3, -2, 11, 2, -3},
	{-2, -2, -2, -3, -2, -1, -2, -3, 2, -1, -1, -2, -1, 3, -3, -2, -2, 2, 7, -1},
	{0, -3, -3, -3, -1, -2, -2, -3, -3, 3, 1, -2, 1, -1, -2, -2, 0, -3, -1, 4},
}

// backgroundFreqs is the amino-acid background frequency table, in
// aaOrder order, used by composition-based
// statistics (spec.md §6 ScoreMatrix.background_freqs).
var backgroundFreqs = [20]float64{
	0.0783, 0.0551, 0.0406, 0.0546, 0.0139, 0.0393, 0.0676, 0.0708,
	0.0227, 0.0591, 0.0965, 0.0584, 0.0241, 0.0386, 0.0474, 0.0660,
	0.0535, 0.0110, 0.0292, 0.0687,
}

// Karlin-Altschul parameters for ungapped BLOSUM62, used by Bitscore
// and Evalue (standard published constants: lambda=0.3176, K=0.134).
const (
	lambda = 0.3176
	kParam = 0.134
	ln2    = 0.69314718055994530942
)

var aaIndex [256]int8

func init() {
	for i := range aaIndex {
		aaIndex[i] = -1
	}
	for i, c := range []byte(aaOrder) {
		aaIndex[c] = int8(i)
	}
}

// Default is the package's singleton BLOSUM62 ScoreMatrix,
// implementing align.ScoreMatrix.
var Default = &Matrix{}

// Matrix implements align.ScoreMatrix over the standard BLOSUM62
// table and ungapped Karlin-Altschul statistics.
type Matrix struct{}

// Score returns the BLOSUM62 substitution score for a, b. Unknown
// letters score as the minimum table entry, matching BLAST's
// treatment of ambiguity codes as maximally penalized.
func (m *Matrix) Score(a, b byte) int {
	ia, ib := aaIndex[a], aaIndex[b]
	if ia < 0 || ib < 0 {
		return -4
	}
	return int(blosum62[ia][ib])
}

var lnK = math.Log(kParam)

// Bitscore converts a raw ungapped score to a bit score:
// (lambda*score - ln(K)) / ln(2).
func (m *Matrix) Bitscore(score int) float64 {
	return (lambda*float64(score) - lnK) / ln2
}

// Evalue converts a raw score and sequence lengths to an e-value
// using the ungapped Karlin-Altschul formula E = K*m*n*exp(-lambda*S).
func (m *Matrix) Evalue(score, queryLen, targetLen int) float64 {
	if queryLen <= 0 || targetLen <= 0 {
		return 1
	}
	return kParam * float64(queryLen) * float64(targetLen) * math.Exp(-lambda*float64(score))
}

// BackgroundFreqs returns the amino-acid background frequency table.
func (m *Matrix) BackgroundFreqs() [20]float64 { return backgroundFreqs }
