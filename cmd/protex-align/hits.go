// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kortschak/protex/align"
	"github.com/kortschak/protex/internal/hitbuf"
)

// loadSeedHits reads the upstream k-mer indexer's seed-hit stream, one
// hit per line as tab-separated "query subjectOffset queryOffset score
// frame" fields, and persists it into an internal/hitbuf.DiskBuffer at
// dbPath, sorted for contiguous per-query retrieval. The hit file
// itself is out of this module's scope (spec.md §1 names the seed
// indexer as an external collaborator); this is the minimal loader a
// CLI needs to drive the pipeline from a fixture.
func loadSeedHits(path, dbPath string) (*hitbuf.DiskBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("protex-align: open hits %s: %w", path, err)
	}
	defer f.Close()

	buf, err := hitbuf.NewDiskBuffer(dbPath)
	if err != nil {
		return nil, err
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var curQuery uint32
	var curHits []align.SeedHit
	haveQuery := false
	flush := func() error {
		if !haveQuery || len(curHits) == 0 {
			return nil
		}
		return buf.Put(curQuery, curHits)
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("protex-align: malformed hit line %q: want 5 fields, got %d", line, len(fields))
		}
		query, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("protex-align: hit query field %q: %w", fields[0], err)
		}
		subjectOffset, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("protex-align: hit subject-offset field %q: %w", fields[1], err)
		}
		queryOffset, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("protex-align: hit query-offset field %q: %w", fields[2], err)
		}
		score, err := strconv.ParseUint(fields[3], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("protex-align: hit score field %q: %w", fields[3], err)
		}
		frame, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("protex-align: hit frame field %q: %w", fields[4], err)
		}

		q := uint32(query)
		if haveQuery && q != curQuery {
			if err := flush(); err != nil {
				return nil, err
			}
			curHits = curHits[:0]
		}
		curQuery, haveQuery = q, true
		curHits = append(curHits, align.SeedHit{
			QueryOffset:   queryOffset,
			SubjectOffset: int(subjectOffset),
			Score:         uint16(score),
			Frame:         frame,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("protex-align: scan hits: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return buf, nil
}
