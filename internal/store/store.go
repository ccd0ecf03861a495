// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store provides byte-key encodings and modernc.org/kv
// ordering functions for the on-disk stores used by internal/hitbuf's
// seed-hit buffer and internal/rank's persisted query memory.
//
// Adapted from the teacher's key-marshalling idiom
// (github.com/kortschak/ins/internal/store), which encoded BLAST hit
// records for an ordered on-disk store keyed by strand/query/subject
// position. protex needs a different ordering (by query index then
// subject offset, for seed hits; by query id, for memory) but the
// same big-endian fixed-width encoding approach.
package store

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/kortschak/protex/align"
)

var order = binary.BigEndian

// ByQuerySubject is a kv compare function ordering seed-hit keys by
// query index ascending, then subject offset ascending. This is the
// order internal/hitbuf's DiskBuffer relies on to hand back
// contiguous, strictly increasing query ranges (spec.md §4.1).
func ByQuerySubject(x, y []byte) int {
	if bytes.Equal(x, y) {
		return 0
	}
	kx := UnmarshalHitKey(x)
	ky := UnmarshalHitKey(y)
	switch {
	case kx.Query < ky.Query:
		return -1
	case kx.Query > ky.Query:
		return 1
	}
	switch {
	case kx.Subject < ky.Subject:
		return -1
	case kx.Subject > ky.Subject:
		return 1
	}
	switch {
	case kx.Seq < ky.Seq:
		return -1
	case kx.Seq > ky.Seq:
		return 1
	}
	return 0
}

// HitKey identifies a single persisted seed hit within the on-disk
// buffer: the query it belongs to, its subject offset (the primary
// sort key for the loader, §4.2) and a disambiguating sequence
// number for hits sharing query and subject offset.
type HitKey struct {
	Query   uint32
	Subject uint64
	Seq     uint32
}

// MarshalHitKey encodes k in the big-endian, fixed-width form used as
// a modernc.org/kv key.
func MarshalHitKey(k HitKey) []byte {
	buf := make([]byte, 4+8+4)
	order.PutUint32(buf[0:4], k.Query)
	order.PutUint64(buf[4:12], k.Subject)
	order.PutUint32(buf[12:16], k.Seq)
	return buf
}

// UnmarshalHitKey decodes a key produced by MarshalHitKey.
func UnmarshalHitKey(data []byte) HitKey {
	return HitKey{
		Query:   order.Uint32(data[0:4]),
		Subject: order.Uint64(data[4:12]),
		Seq:     order.Uint32(data[12:16]),
	}
}

// MarshalHitValue encodes a SeedHit's non-key fields (query offset,
// score, frame) for storage alongside a HitKey.
func MarshalHitValue(h align.SeedHit) []byte {
	buf := make([]byte, 8+2+4)
	order.PutUint64(buf[0:8], uint64(int64(h.QueryOffset)))
	order.PutUint16(buf[8:10], h.Score)
	order.PutUint32(buf[10:14], uint32(h.Frame))
	return buf
}

// UnmarshalHitValue decodes a value produced by MarshalHitValue,
// combining it with key to reconstruct the full SeedHit (with
// SubjectOffset taken from key.Subject).
func UnmarshalHitValue(key HitKey, data []byte) align.SeedHit {
	return align.SeedHit{
		QueryOffset:   int(int64(order.Uint64(data[0:8]))),
		SubjectOffset: int(key.Subject),
		Score:         order.Uint16(data[8:10]),
		Frame:         int(order.Uint32(data[10:14])),
	}
}

// MarshalQueryID encodes a query index as a fixed-width big-endian
// key for the persisted QueryMemory store (§4.3).
func MarshalQueryID(query uint32) []byte {
	buf := make([]byte, 4)
	order.PutUint32(buf, query)
	return buf
}

// UnmarshalQueryID decodes a key produced by MarshalQueryID.
func UnmarshalQueryID(data []byte) uint32 { return order.Uint32(data) }

// ByQueryID orders QueryMemory keys by query index ascending.
func ByQueryID(x, y []byte) int {
	a, b := order.Uint32(x), order.Uint32(y)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MarshalQueryMemory encodes a QueryMemory record.
func MarshalQueryMemory(m align.QueryMemory) []byte {
	buf := make([]byte, 8+8+8)
	order.PutUint64(buf[0:8], uint64(int64(m.LowScore)))
	order.PutUint64(buf[8:16], uint64(int64(m.RankFailCount)))
	order.PutUint64(buf[16:24], uint64(int64(m.RankFailScore)))
	return buf
}

// UnmarshalQueryMemory decodes a record produced by
// MarshalQueryMemory.
func UnmarshalQueryMemory(data []byte) align.QueryMemory {
	return align.QueryMemory{
		LowScore:      int(int64(order.Uint64(data[0:8]))),
		RankFailCount: int(int64(order.Uint64(data[8:16]))),
		RankFailScore: int(int64(order.Uint64(data[16:24]))),
	}
}

// MarshalFloat64 encodes a float64 for use as a kv value; used by
// callers that need a single scalar stored alongside ordered keys.
func MarshalFloat64(f float64) []byte {
	buf := make([]byte, 8)
	order.PutUint64(buf, math.Float64bits(f))
	return buf
}

// UnmarshalFloat64 decodes a value produced by MarshalFloat64.
func UnmarshalFloat64(data []byte) float64 {
	return math.Float64frombits(order.Uint64(data))
}
