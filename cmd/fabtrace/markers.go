package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/uluyol/fabtrace/cache"
	"github.com/uluyol/fabtrace/capture"
	"github.com/uluyol/fabtrace/fault"
	"golang.org/x/sync/errgroup"
)

type markerResult struct {
	path    string
	size    int64
	markers capture.Markers
	stats   *capture.Stats // nil when the markers came from the cache
	err     error          // truncation; the markers are still usable
}

func (r *markerResult) stem() string {
	base := filepath.Base(r.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (r *markerResult) source() string {
	switch {
	case r.err != nil:
		return "capture (truncated)"
	case r.stats == nil:
		return "cache"
	}
	return "capture"
}

type pipeline struct {
	log    *logrus.Entry
	cache  *cache.Cache
	ex     *capture.Extractor
	harden bool
	jobs   int
}

func newPipeline(cfg *cmdConfig, log *logrus.Entry, jobs int) (*pipeline, error) {
	filter, err := cfg.filter()
	if err != nil {
		return nil, err
	}
	period, err := cfg.progressPeriod()
	if err != nil {
		return nil, err
	}
	c, err := cache.Open(nil, cfg.Cache.Dir, log)
	if err != nil {
		return nil, err
	}
	if jobs <= 0 {
		jobs = 1
	}
	return &pipeline{
		log:   log,
		cache: c,
		ex: &capture.Extractor{
			Filter:         filter,
			Log:            log,
			ProgressPeriod: period,
		},
		harden: cfg.Cache.Fingerprint,
		jobs:   jobs,
	}, nil
}

// load returns the markers of every capture in paths, in the same order.
// Up to p.jobs captures are extracted at once.
func (p *pipeline) load(ctx context.Context, paths []string) ([]markerResult, error) {
	res := make([]markerResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.jobs)
	for i := range paths {
		i := i
		g.Go(func() error {
			r, err := p.loadOne(ctx, paths[i])
			res[i] = r
			return err
		})
	}
	return res, g.Wait()
}

func (p *pipeline) loadOne(ctx context.Context, path string) (markerResult, error) {
	r := markerResult{path: path}
	if fi, err := os.Stat(path); err == nil {
		r.size = fi.Size()
	}
	key, err := cache.KeyFor(nil, path, p.ex.Filter, p.harden)
	if err != nil {
		return r, err
	}
	r.markers, err = p.cache.Load(ctx, key, func(ctx context.Context) (capture.Markers, error) {
		m, st, err := p.ex.Extract(ctx, path)
		r.stats = &st
		return m, err
	})
	if fault.Is(err, fault.TruncatedInput) {
		r.err = err
		return r, nil
	}
	return r, err
}

func writeMarkerTable(w io.Writer, res []markerResult) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Capture", "Size", "Markers", "Packets", "Undecodable", "Source"})
	var total int64
	var markers int
	for i := range res {
		r := &res[i]
		packets, skipped := "-", "-"
		if r.stats != nil {
			packets = strconv.FormatInt(r.stats.Packets, 10)
			skipped = strconv.FormatInt(r.stats.Skipped, 10)
		}
		tbl.Append([]string{
			r.path,
			datasize.ByteSize(r.size).HumanReadable(),
			strconv.Itoa(len(r.markers)),
			packets,
			skipped,
			r.source(),
		})
		total += r.size
		markers += len(r.markers)
	}
	if len(res) > 1 {
		tbl.SetFooter([]string{"Total", datasize.ByteSize(total).HumanReadable(), strconv.Itoa(markers), "", "", ""})
	}
	tbl.Render()
}

func markersOf(res []markerResult) [][]uint64 {
	sets := make([][]uint64, len(res))
	for i := range res {
		sets[i] = res[i].markers
	}
	return sets
}

func describe(r *markerResult) string {
	s := fmt.Sprintf("%s (%d markers, from %s)", r.path, len(r.markers), r.source())
	if r.err != nil {
		s += ": " + r.err.Error()
	}
	return s
}
