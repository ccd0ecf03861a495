// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The protex-audit command lets the on-disk stores protex-align
// builds during a run be inspected after the fact. There are two
// persisted stores, found in the working directory protex-align logs
// at startup and kept around when it is given the -work flag:
//
//   - hits.db — the seed-hit buffer (internal/hitbuf.DiskBuffer),
//     keyed by query then subject offset.
//   - memory.db — persisted per-query ranking memory
//     (internal/rank.Memory), keyed by query index, present only when
//     protex-align was run with -query-memory.
//
// Each db file must be named as described here for protex-audit to
// pick the right key/value decoder. Output is a JSON stream on
// stdout, one record per line.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"

	"modernc.org/kv"

	"github.com/kortschak/protex/internal/store"
)

func main() {
	path := flag.String("db", "", "specify db file to audit (base must be 'hits.db' or 'memory.db')")
	flag.Parse()
	base := filepath.Base(*path)

	orderFor := map[string]func(x, y []byte) int{
		"hits.db":   store.ByQuerySubject,
		"memory.db": store.ByQueryID,
	}
	compare, ok := orderFor[base]
	if !ok {
		flag.Usage()
		os.Exit(2)
	}

	opts := &kv.Options{Compare: compare}
	db, err := kv.Open(*path, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	enc := json.NewEncoder(os.Stdout)
	it, err := db.SeekFirst()
	if err != nil {
		if err == io.EOF {
			return
		}
		log.Fatal(err)
	}
	for {
		k, v, err := it.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Fatal(err)
		}
		switch base {
		case "hits.db":
			key := store.UnmarshalHitKey(k)
			hit := store.UnmarshalHitValue(key, v)
			if err := enc.Encode(hitRecord{
				Query:         key.Query,
				SubjectOffset: key.Subject,
				QueryOffset:   hit.QueryOffset,
				Score:         hit.Score,
				Frame:         hit.Frame,
			}); err != nil {
				log.Fatal(err)
			}
		case "memory.db":
			query := store.UnmarshalQueryID(k)
			mem := store.UnmarshalQueryMemory(v)
			if err := enc.Encode(memoryRecord{
				Query:         query,
				LowScore:      mem.LowScore,
				RankFailCount: mem.RankFailCount,
				RankFailScore: mem.RankFailScore,
			}); err != nil {
				log.Fatal(err)
			}
		default:
			panic("unreachable")
		}
	}
}

type hitRecord struct {
	Query         uint32
	SubjectOffset uint64
	QueryOffset   int
	Score         uint16
	Frame         int
}

type memoryRecord struct {
	Query         uint32
	LowScore      int
	RankFailCount int
	RankFailScore int
}
