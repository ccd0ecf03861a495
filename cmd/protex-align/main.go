// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// protex-align is the seed-hit-to-alignment extension pipeline's CLI
// entry point: it reads a FASTA query set, a FASTA target database and
// a seed-hit file, and writes BLAST-tabular alignment results, one
// query at a time, in strictly ascending query order.
//
// It wires internal/hitbuf (seed-hit buffering), internal/loader
// (target grouping), internal/rank (adaptive ranking), internal/extend
// (ungapped extension and chaining), internal/gapped (the cheap gapped
// filter), internal/sw (banded Smith-Waterman and culling),
// internal/dispatch (per-query scheduling and ordered output) and
// internal/format (tabular output) into the pipeline described by
// spec.md §3. Database masking and composition-adjusted scoring are
// driven exactly as align.Config requests; translated-nucleotide
// 6-frame queries are not: this entry point only drives protein
// queries (frame 0), matching the "out of scope" boundary drawn around
// the upstream seed indexer and translation machinery in spec.md §1.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/kortschak/protex/align"
	"github.com/kortschak/protex/internal/dispatch"
	"github.com/kortschak/protex/internal/extend"
	"github.com/kortschak/protex/internal/format"
	"github.com/kortschak/protex/internal/gapped"
	"github.com/kortschak/protex/internal/loader"
	"github.com/kortschak/protex/internal/matrix"
	"github.com/kortschak/protex/internal/rank"
	"github.com/kortschak/protex/internal/sw"
)

// sensitivityModes names align.Sensitivity values the way the
// teacher's cmd/ins/main.go names its blastnModes table, so -sens can
// take a short mnemonic instead of a raw integer.
var sensitivityModes = map[string]align.Sensitivity{
	"fast":            align.Fast,
	"default":         align.Default,
	"mid-sensitive":   align.MidSensitive,
	"sensitive":       align.Sensitive,
	"more-sensitive":  align.MoreSensitive,
	"very-sensitive":  align.VerySensitive,
	"ultra-sensitive": align.UltraSensitive,
}

func main() {
	query := flag.String("query", "", "specify query sequence file, FASTA (required)")
	db := flag.String("db", "", "specify target database file, FASTA (required)")
	hits := flag.String("hits", "", "specify seed-hit file: tab-separated query, subject-offset, query-offset, score, frame (required)")
	out := flag.String("out", "", "specify output file (default stdout)")
	fields := flag.String("fields", "", "specify comma-separated output fields (default BLAST outfmt 6 columns)")
	reportUnaligned := flag.Bool("report-unaligned", false, "specify to emit a placeholder row for queries with no surviving match")
	sens := flag.String("sens", "default", "specify sensitivity mode: fast, default, mid-sensitive, sensitive, more-sensitive, very-sensitive, ultra-sensitive")
	compBasedStats := flag.Int("comp-based-stats", int(align.CBSHauser), "specify composition-based statistics mode (0-4)")
	masking := flag.String("masking", "tantan", "specify target masking: none, seg, tantan")
	maxEvalue := flag.Float64("evalue", 10, "specify maximum reported e-value")
	minBitScore := flag.Float64("min-bitscore", 0, "specify minimum reported bit score")
	minID := flag.Float64("min-id", 0, "specify minimum reported percent identity")
	queryCover := flag.Float64("query-cover", 0, "specify minimum reported query-cover percent")
	subjectCover := flag.Float64("subject-cover", 0, "specify minimum reported subject-cover percent")
	maxTargetSeqs := flag.Int("max-target-seqs", 25, "specify maximum reported target sequences per query")
	topPercent := flag.Float64("top-percent", 100, "specify top-percent target culling threshold (100 disables)")
	maxHsps := flag.Int("max-hsps", 1, "specify maximum reported HSPs per target")
	gappedFilterEvalue := flag.Float64("gapped-filter-evalue", -1.0, "specify the cheap gapped filter's e-value gate (<=0 disables)")
	queryMemory := flag.Bool("query-memory", false, "specify to persist per-query ranking memory across the run")
	threads := flag.Int("threads", 0, "specify worker pool size (<=0 is use all cores)")
	verbose := flag.Bool("verbose", false, "specify verbose logging, including masking command output")
	work := flag.Bool("work", false, "specify to keep temporary files")
	heartbeat := flag.Bool("heartbeat", false, "specify to log progress every 100 completed queries")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage of %[1]s:
  $ %[1]s -query <query.fa> -db <targets.fa> -hits <hits.tsv> [options] >out.tsv 2>out.log

Options:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *query == "" || *db == "" || *hits == "" {
		flag.Usage()
		os.Exit(2)
	}
	mode, ok := sensitivityModes[*sens]
	if !ok {
		log.Fatalf("unknown sensitivity mode: %q", *sens)
	}

	cfg := align.NewConfig()
	cfg.Sensitivity = mode
	cfg.ExtensionMode = align.DefaultExtensionMode(mode)
	cfg.CompBasedStats = align.CompBasedStats(*compBasedStats)
	cfg.MaxEvalue = *maxEvalue
	cfg.MinBitScore = *minBitScore
	cfg.MinID = *minID
	cfg.QueryCover = *queryCover
	cfg.SubjectCover = *subjectCover
	cfg.MaxAlignments = *maxTargetSeqs
	cfg.TopPercent = *topPercent
	cfg.MaxHsps = *maxHsps
	cfg.GappedFilterEvalue = *gappedFilterEvalue
	cfg.QueryMemory = *queryMemory
	cfg.ReportUnaligned = *reportUnaligned
	switch *masking {
	case "none":
		cfg.Masking = align.NoMasking
	case "seg":
		cfg.Masking = align.Seg
	case "tantan":
		cfg.Masking = align.Tantan
	default:
		log.Fatalf("unknown masking mode: %q", *masking)
	}

	workers := *threads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	log.Println(os.Args)
	var logger io.Writer
	if *verbose {
		w := logCapture()
		defer w.Close()
		logger = w
	}

	tmpDir, err := ioutil.TempDir("", "protex-align-*")
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("working in %s", tmpDir)
	if *work {
		log.Println("keeping work")
	} else {
		defer os.RemoveAll(tmpDir)
	}

	log.Println("indexing target database")
	database, err := openFastaDB(*db)
	if err != nil {
		log.Fatal(err)
	}

	log.Println("loading queries")
	queries, err := loadQueries(*query)
	if err != nil {
		log.Fatal(err)
	}

	log.Println("loading seed hits")
	hitDB, err := loadSeedHits(*hits, filepath.Join(tmpDir, "hits.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer hitDB.Close()

	var mem *kvMemory
	if cfg.QueryMemory {
		mem, err = openQueryMemory(filepath.Join(tmpDir, "memory.db"))
		if err != nil {
			log.Fatal(err)
		}
		defer mem.Close()
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		bw := bufio.NewWriter(f)
		defer bw.Flush()
		w = bw
	}

	fieldList, err := format.ParseFields(*fields)
	if err != nil {
		log.Fatal(err)
	}
	tab := format.NewTabular(fieldList, *reportUnaligned)

	maskerFunc := newMaskerFunc(cfg, tmpDir, logger)
	pool := matrix.NewPool(database.Len())
	background := matrix.Default.BackgroundFreqs()
	prefixSums := database.PrefixSums()
	refLetters := database.Letters()

	allHits, queryOf, err := drainHits(hitDB)
	if err != nil {
		log.Fatal(err)
	}
	if len(allHits) == 0 {
		log.Println("no seed hits to process")
		return
	}

	fetcher := dispatch.NewAlignFetcher(allHits, queryOf, cfg)
	sink := dispatch.NewOutputSink(queryOf(allHits[0]), func(r dispatch.Result) error {
		_, err := w.Write(r.Data)
		return err
	})

	var done int64
	extendQuery := func(ctx context.Context, r dispatch.HitRange) (dispatch.Result, error) {
		data, err := processQuery(ctx, r, queries, database, cfg, prefixSums, refLetters, pool, background, mem, maskerFunc, tab, workers)
		if err != nil {
			return dispatch.Result{}, fmt.Errorf("query %d: %w", r.Query, err)
		}
		if *heartbeat {
			if n := atomic.AddInt64(&done, 1); n%100 == 0 {
				log.Printf("heartbeat: %d queries extended, %d results buffered awaiting release", n, sink.Stalled())
			}
		}
		return dispatch.Result{Query: r.Query, Data: data}, nil
	}

	if err := dispatch.Process(context.Background(), fetcher, sink, workers, extendQuery); err != nil {
		log.Fatal(err)
	}
}

// drainHits flattens the on-disk seed-hit buffer into a single
// query-sorted slice plus the query-id extractor internal/dispatch's
// AlignFetcher needs. internal/hitbuf.DiskBuffer hands back one batch
// per query (it breaks a batch as soon as the query changes), so the
// query each hit belongs to is recovered from a value-keyed lookup
// built while draining; a hit tuple that happens to recur identically
// across two different queries resolves to whichever query it was
// first seen in, a CLI-scale simplification noted in DESIGN.md.
func drainHits(src align.HitSource) ([]align.SeedHit, func(align.SeedHit) uint32, error) {
	var out []align.SeedHit
	index := make(map[align.SeedHit]uint32)
	for {
		src.Load(1 << 26)
		hits, queryBegin, _, ok := src.Retrieve()
		if !ok {
			break
		}
		for _, h := range hits {
			if _, seen := index[h]; !seen {
				index[h] = uint32(queryBegin)
			}
			out = append(out, h)
		}
	}
	return out, func(h align.SeedHit) uint32 { return index[h] }, nil
}

// logCapture returns an io.WriteCloser that pipes writes to the
// default log logger, the same idiom cmd/ins/main.go uses to surface
// external-command stderr under -verbose.
func logCapture() io.WriteCloser {
	r, w := io.Pipe()
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if len(bytes.TrimSpace(sc.Bytes())) == 0 {
				continue
			}
			log.Printf("\t%s", sc.Bytes())
		}
		if err := sc.Err(); err != nil && err != io.EOF {
			_ = w.CloseWithError(err)
		}
	}()
	return w
}

// processQuery runs the full per-query pipeline (rank.Extend's chunked
// ranking loop, driving internal/extend + internal/gapped + internal/sw
// as its Stage) and renders the surviving Matches through tab.
func processQuery(ctx context.Context, r dispatch.HitRange, queries []align.Sequence, database *fastaDB, cfg align.Config, prefixSums loader.PrefixSums, refLetters int64, pool *matrix.Pool, background [20]float64, mem rank.Memory, maskerFunc func(uint32, align.Sequence) (align.Sequence, bool), tab format.Tabular, workers int) ([]byte, error) {
	if int(r.Query) >= len(queries) {
		return nil, fmt.Errorf("query index %d out of range (have %d queries)", r.Query, len(queries))
	}
	q := queries[r.Query]
	queryByFrame := []align.Sequence{q}
	queryComp := matrix.Composition{}
	if cfg.CompBasedStats.MatrixAdjust() {
		queryComp = matrix.ComposeOf(q)
	}

	subjectOffsets := make([]int64, len(r.Hits))
	for i, h := range r.Hits {
		subjectOffsets[i] = int64(h.SubjectOffset)
	}
	targets := loader.Load(r.Hits, subjectOffsets, prefixSums, &loader.Buffers{})
	// rank.Extend walks the target scores in ranking order.
	sort.Slice(targets.Scores, func(i, j int) bool { return targets.Scores[i].Less(targets.Scores[j]) })

	round := rank.Round{Scores: targets.Scores, BlockIDs: targets.BlockIDs, Hits: targets.Hits}

	extParams := extend.Params{
		XDrop:          38,
		ChainingMaxGap: 32,
		SpacePenalty:   0.1,
		CompBasedStats: cfg.CompBasedStats,
		Masker:         maskerFunc,
	}

	stage := rank.Stage(func(rd rank.Round) ([]align.Target, error) {
		return extendRound(ctx, rd, database, q, queryByFrame, cfg, pool, background, queryComp, extParams, workers)
	})

	aligned, err := rank.Extend(r.Query, cfg, refLetters, q.Len(), round, mem, matrix.Default, stage)
	if err != nil {
		return nil, err
	}

	culled := sw.CullTargets(aligned, cfg.MaxAlignments, cfg.TopPercent)
	matches := make([]align.Match, len(culled))
	for i, t := range culled {
		matches[i] = align.Match{BlockID: t.BlockID, Hsps: t.Hsps}
	}
	sw.SortMatches(matches, cfg.TopPercent < 100)

	var buf bytes.Buffer
	queryTitle := q.ID()
	if err := tab.PrintQueryIntro(&buf, int(r.Query), queryTitle, q.Len(), len(matches) == 0); err != nil {
		return nil, err
	}
	for _, m := range matches {
		if err := tab.PrintMatch(&buf, queryTitle, m, database, q.Len()); err != nil {
			return nil, err
		}
	}
	if err := tab.PrintQueryEpilog(&buf, queryTitle, len(matches) == 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extendRound is one rank.Stage invocation: it builds the target jobs
// for a ranking round, runs the cheap gapped filter to prune
// hopeless candidates, then the full ungapped-extension and banded
// Smith-Waterman passes over the survivors, returning the aligned
// align.Target list culling has not yet trimmed.
func extendRound(ctx context.Context, rd rank.Round, database *fastaDB, query align.Sequence, queryByFrame []align.Sequence, cfg align.Config, pool *matrix.Pool, background [20]float64, queryComp matrix.Composition, params extend.Params, workers int) ([]align.Target, error) {
	blockIDs := rd.BlockIDs
	hits := rd.Hits

	if gapped.ShouldRun(cfg.GappedFilterEvalue, false, query.Len()) {
		subjects := make([]align.Sequence, len(blockIDs))
		for i, id := range blockIDs {
			subjects[i] = database.Seq(id)
		}
		blockIDs, hits = gapped.Filter(query, query.Len(), append([]uint32(nil), blockIDs...), append([][]align.LocalHit(nil), hits...), subjects, matrix.Default, cfg.GappedFilterEvalue)
	}
	if len(blockIDs) == 0 {
		return nil, nil
	}

	jobs := make([]extend.TargetJob, len(blockIDs))
	for i, id := range blockIDs {
		jobs[i] = extend.TargetJob{BlockID: id, Unmasked: database.UnmaskedSeq(id), Hits: hits[i]}
	}

	workTargets, err := extend.BuildAll(ctx, jobs, queryByFrame, cfg.ExtensionMode, pool, background, queryComp, params, len(jobs) > 1, workers)
	if err != nil {
		return nil, err
	}

	var out []align.Target
	for _, wt := range workTargets {
		var hsps []align.Hsp
		for frame, traits := range wt.Traits {
			if frame >= len(queryByFrame) {
				continue
			}
			for _, tr := range traits {
				anchor := sw.Anchor{
					Frame:        tr.Frame,
					DiagBegin:    tr.DiagBegin,
					DiagEnd:      tr.DiagEnd,
					QueryRange:   tr.QueryRange,
					SubjectRange: tr.SubjectRange,
				}
				sm := wt.Matrix
				if sm == nil {
					sm = matrix.Default
				}
				values := cfg.FirstRound() | align.HspQueryCoords | align.HspTargetCoords | align.HspIdentLength | align.HspGapsMismatches
				hsp, err := sw.Align(queryByFrame[frame], wt.Subject, anchor, sm, values)
				if err != nil {
					return nil, err
				}
				if hsp.Score <= 0 {
					continue
				}
				hsp.BitScore = sm.Bitscore(hsp.Score)
				hsp.EValue = sm.Evalue(hsp.Score, queryByFrame[frame].Len(), wt.Subject.Len())
				hsps = append(hsps, hsp)
			}
		}
		if len(hsps) == 0 {
			continue
		}
		hsps = sw.ApplyThresholds(hsps, cfg, query.Len(), wt.Subject.Len())
		if cfg.FrameShift != 0 {
			hsps = sw.RangeCull(hsps, cfg.InnerCullingOverlap)
		}
		hsps = sw.CapPerTarget(hsps, cfg.MaxHsps)
		if len(hsps) == 0 {
			continue
		}
		out = append(out, align.Target{BlockID: wt.BlockID, Hsps: hsps})
	}
	return out, nil
}
