package recorders

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// WriteFileAtomic writes the output of fn to path so that readers only ever see
// the old contents or the complete new contents. The data is staged in a
// temporary file next to path and renamed into place once it is synced.
//
// Paths ending in .gz are gzip compressed.
func WriteFileAtomic(fs afero.Fs, path string, fn func(io.Writer) error) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(fs, dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			fs.Remove(tmpName)
		}
	}()

	if err := writeTo(tmp, strings.HasSuffix(path, ".gz"), fn); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return fs.Rename(tmpName, path)
}

func writeTo(f afero.File, gz bool, fn func(io.Writer) error) error {
	bw := bufio.NewWriter(f)
	if !gz {
		if err := fn(bw); err != nil {
			return err
		}
		return bw.Flush()
	}
	gw, err := gzip.NewWriterLevel(bw, gzip.BestSpeed)
	if err != nil {
		return err
	}
	if err := fn(gw); err != nil {
		return multierr.Append(err, gw.Close())
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

// MultiWriter writes several files under one directory. Once a write
// fails, later writes return the same error without touching the disk.
type MultiWriter struct {
	fs  afero.Fs
	dir string
	err error
}

func NewMultiWriter(fs afero.Fs, dir string) *MultiWriter {
	return &MultiWriter{fs: fs, dir: dir}
}

// Write creates dir if needed and writes the named file.
func (mw *MultiWriter) Write(name string, fn func(io.Writer) error) error {
	if mw.err != nil {
		return mw.err
	}
	if err := mw.fs.MkdirAll(mw.dir, 0777); err != nil && !os.IsExist(err) {
		mw.err = err
		return mw.err
	}
	if err := WriteFileAtomic(mw.fs, filepath.Join(mw.dir, name), fn); err != nil {
		mw.err = err
		return mw.err
	}
	return nil
}

func (mw *MultiWriter) Err() error { return mw.err }
