// Package cache persists extracted marker sequences, one file per capture
// and filter, so that repeated analyses skip the packet pass.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/uluyol/fabtrace/bench"
	"github.com/uluyol/fabtrace/capture"
	"github.com/uluyol/fabtrace/fault"
	"github.com/uluyol/fabtrace/internal/fnv"
	"github.com/uluyol/fabtrace/readers"
	"github.com/uluyol/fabtrace/recorders"
)

const fileSuffix = "_mac.mkr"

// Key identifies a cache entry.
//
// Without a Fingerprint, a capture that is replaced by another file with
// the same name maps to the old entry.
type Key struct {
	Stem        string
	SrcIP       string
	SrcPort     string
	Layer       string
	Fingerprint string
}

// KeyFor builds the key for extracting path with filter. If harden is
// set, the key also covers the size and modification time of the file.
func KeyFor(fs afero.Fs, path string, filter capture.Filter, harden bool) (Key, error) {
	base := filepath.Base(path)
	k := Key{
		Stem:    strings.TrimSuffix(base, filepath.Ext(base)),
		SrcIP:   "any",
		SrcPort: "any",
		Layer:   filter.Layer.String(),
	}
	if filter.SrcIP.IsValid() {
		k.SrcIP = filter.SrcIP.String()
	}
	if filter.SrcPort != 0 {
		k.SrcPort = strconv.Itoa(int(filter.SrcPort))
	}
	if harden {
		if fs == nil {
			fs = afero.NewOsFs()
		}
		fi, err := fs.Stat(path)
		if err != nil {
			return k, fault.New(fault.SourceUnreadable, path, err)
		}
		h := fnv.Hash64(uint64(fi.Size()), uint64(fi.ModTime().UnixNano()))
		k.Fingerprint = strconv.FormatUint(h, 16)
	}
	return k, nil
}

func (k Key) String() string {
	parts := []string{k.Stem, k.SrcIP, k.SrcPort, k.Layer}
	if k.Fingerprint != "" {
		parts = append(parts, k.Fingerprint)
	}
	return strings.Join(parts, "_")
}

// FileName is the base name of the entry for k.
func (k Key) FileName() string {
	return strings.NewReplacer("/", "-", ":", "-").Replace(k.String()) + fileSuffix
}

type Cache struct {
	Fs  afero.Fs
	Dir string
	Log bench.Logger
}

// Open returns a cache rooted at dir, creating it if needed.
func Open(fs afero.Fs, dir string, log bench.Logger) (*Cache, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("unable to create cache dir: %v", err)
	}
	return &Cache{Fs: fs, Dir: dir, Log: log}, nil
}

func (c *Cache) path(k Key) string { return filepath.Join(c.Dir, k.FileName()) }

// Get returns the stored markers for k. A missing entry is reported with
// ok == false and a nil error.
func (c *Cache) Get(k Key) (m capture.Markers, ok bool, err error) {
	p := c.path(k)
	f, err := c.Fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fault.New(fault.CacheCorrupt, p, err)
	}
	defer f.Close()

	stored, markers, err := readers.ReadMarkers(f)
	if err != nil {
		return nil, false, fault.New(fault.CacheCorrupt, p, err)
	}
	if stored != k.String() {
		return nil, false, fault.Newf(fault.CacheCorrupt, p, "entry belongs to %s", stored)
	}
	return markers, true, nil
}

// Put stores m under k, replacing any existing entry.
func (c *Cache) Put(k Key, m capture.Markers) error {
	return recorders.WriteFileAtomic(c.Fs, c.path(k), func(w io.Writer) error {
		return recorders.WriteMarkers(w, k.String(), m)
	})
}

// Load returns the markers for k, calling extract and storing its result
// on a miss.
//
// A truncated extraction is stored and its error returned along with the
// markers. Other extraction errors are returned without storing anything.
func (c *Cache) Load(ctx context.Context, k Key, extract func(context.Context) (capture.Markers, error)) (capture.Markers, error) {
	log := bench.OrNop(c.Log)

	m, ok, err := c.Get(k)
	switch {
	case err != nil:
		log.Warnf("ignoring cache entry: %v", err)
	case ok:
		log.Printf("%s: using %d cached markers", k, len(m))
		return m, nil
	}

	m, extractErr := extract(ctx)
	if extractErr != nil && !fault.Is(extractErr, fault.TruncatedInput) {
		return m, extractErr
	}
	if err := ctx.Err(); err != nil {
		return m, err
	}
	if err := c.Put(k, m); err != nil {
		log.Warnf("%s: unable to store markers: %v", k, err)
	} else {
		log.Printf("%s: stored %d markers", k, len(m))
	}
	return m, extractErr
}
