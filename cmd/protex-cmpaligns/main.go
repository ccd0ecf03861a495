// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// protex-cmpaligns compares the per-base subject assignment implied by
// two BLAST-tabular result files for the same query set — typically
// one run with query-parallel scheduling and one with target-parallel
// scheduling, to check that internal/dispatch's two modes agree on
// which subject covers which part of each query.
//
// For every query, each input's rows are reduced to the single
// highest-bitscore subject covering each query base. The output on
// stdout is a JSON object giving, in bases, the amount of agreement
// between the two inputs, the amount covered by only one input, and
// the amount where both cover a base but disagree on the subject.
//
// If a -dot prefix is given, the mismatching subject pairs are also
// written as a DOT graph, with edge weights equal to the number of
// mismatched bases between each pair of subjects.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/store/step"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

func main() {
	aFile := flag.String("a", "", "specify the input file a name (required)")
	bFile := flag.String("b", "", "specify the input file b name (required)")
	out := flag.String("dot", "", "specify prefix for DOT files describing disagreements")
	none := flag.String("none", "none", "specify label for 'no alignment'")

	flag.Parse()
	if *aFile == "" || *bFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	queries := make(map[string]bool)
	subjects := make(map[string]*step.Vector)
	err := rows(*aFile, func(r row) error {
		queries[r.query] = true
		v, ok := subjects[r.query]
		if !ok {
			var err error
			v, err = step.New(0, 1, pair{})
			if err != nil {
				return err
			}
			v.Relaxed = true
			subjects[r.query] = v
		}
		return v.ApplyRange(r.start, r.end, func(e step.Equaler) step.Equaler {
			p := e.(pair)
			if r.bitScore > p.aScore {
				p.a = r.subject
				p.aScore = r.bitScore
			}
			return p
		})
	})
	if err != nil {
		log.Fatal(err)
	}
	err = rows(*bFile, func(r row) error {
		queries[r.query] = true
		v, ok := subjects[r.query]
		if !ok {
			var err error
			v, err = step.New(0, 1, pair{})
			if err != nil {
				return err
			}
			v.Relaxed = true
			subjects[r.query] = v
		}
		return v.ApplyRange(r.start, r.end, func(e step.Equaler) step.Equaler {
			p := e.(pair)
			if r.bitScore > p.bScore {
				p.b = r.subject
				p.bScore = r.bitScore
			}
			return p
		})
	})
	if err != nil {
		log.Fatal(err)
	}

	var names []string
	for q := range queries {
		names = append(names, q)
	}
	sort.Strings(names)

	var (
		agree      int
		aMissing   int
		bMissing   int
		mismatch   int
		mismatches = make(map[subjectPair]int)
	)
	for _, q := range names {
		subjects[q].Do(func(start, end int, e step.Equaler) {
			p := e.(pair)
			if p.isZero() {
				return
			}
			n := end - start
			switch {
			case p.a == p.b:
				agree += n
			case p.a == "":
				aMissing += n
				mismatches[subjectPair{a: "", b: p.b}] += n
			case p.b == "":
				bMissing += n
				mismatches[subjectPair{a: p.a, b: ""}] += n
			default:
				mismatch += n
				mismatches[p.subjectPair] += n
			}
		})
	}

	type report struct {
		Agree    int `json:"agree"`
		AMissing int `json:"a-missing"`
		BMissing int `json:"b-missing"`
		Mismatch int `json:"mismatch"`
	}
	m, err := json.Marshal(report{Agree: agree, AMissing: aMissing, BMissing: bMissing, Mismatch: mismatch})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", m)

	if *out != "" {
		if err := dotOut(*out+".subject.dot", *aFile, *bFile, mismatches, *none); err != nil {
			log.Fatal(err)
		}
	}
}

// row is the subset of a BLAST-tabular record cmpaligns needs: the
// query, the subject bitscore-assigned to it, and the query-coordinate
// range the hit covers.
type row struct {
	query      string
	subject    string
	start, end int
	bitScore   float64
}

// rows scans a BLAST-tabular stream matching
// internal/format.DefaultFields' column order and calls fn for every
// well-formed row, skipping placeholder ("*") no-hit rows.
func rows(path string, fn func(row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < 12 || fields[1] == "*" {
			continue
		}
		start, err1 := strconv.Atoi(fields[6])
		end, err2 := strconv.Atoi(fields[7])
		bitScore, err3 := strconv.ParseFloat(fields[11], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		if start > end {
			start, end = end, start
		}
		if err := fn(row{query: fields[0], subject: fields[1], start: start, end: end, bitScore: bitScore}); err != nil {
			return err
		}
	}
	return sc.Err()
}

// pair is a step.Vector element holding each input's best subject
// assignment (and the bitscore that earned it) for one query base.
type pair struct {
	subjectPair

	aScore float64
	bScore float64
}

type subjectPair struct {
	a, b string
}

func (p pair) isZero() bool { return p.subjectPair == subjectPair{} }

func (p pair) Equal(e step.Equaler) bool {
	return p.subjectPair == e.(pair).subjectPair
}

func dotOut(path, aFile, bFile string, edges map[subjectPair]int, none string) error {
	g := newNameGraph(none)
	for p, w := range edges {
		e := edge{
			f: g.nodeFor(aFile, p.a),
			t: g.nodeFor(bFile, p.b),
			w: float64(w),
		}
		g.SetWeightedEdge(e)
	}
	b, err := dot.Marshal(g, "discord", "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o664)
}

type nameGraph struct {
	*simple.WeightedUndirectedGraph
	idFor map[string]int64
	none  string
}

func newNameGraph(none string) nameGraph {
	return nameGraph{
		WeightedUndirectedGraph: simple.NewWeightedUndirectedGraph(0, 0),
		idFor:                   make(map[string]int64),
		none:                    none,
	}
}

func (g nameGraph) nodeFor(file, s string) graph.Node {
	if s == "" {
		s = g.none
	}
	s = file + ":" + s
	id, ok := g.idFor[s]
	if ok {
		return g.Node(id)
	}
	id = g.WeightedUndirectedGraph.NewNode().ID()
	g.idFor[s] = id
	n := node{id: id, name: s}
	g.AddNode(n)
	return n
}

type node struct {
	id   int64
	name string
}

func (n node) ID() int64     { return n.id }
func (n node) DOTID() string { return n.name }

type edge struct {
	f, t graph.Node
	w    float64
}

func (e edge) From() graph.Node         { return e.f }
func (e edge) To() graph.Node           { return e.t }
func (e edge) ReversedEdge() graph.Edge { return edge{f: e.t, t: e.f, w: e.w} }
func (e edge) Weight() float64          { return e.w }
func (e edge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "weight", Value: fmt.Sprint(e.w)}}
}
