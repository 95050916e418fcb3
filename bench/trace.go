package bench

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

// Observation is one message or flow from a benchmark log.
type Observation struct {
	Size          uint64
	SendTimeNanos uint64
}

func (o Observation) String() string {
	return fmt.Sprintf("%d,%d", o.Size, o.SendTimeNanos)
}

func isSep(c rune) bool {
	return c == ',' || unicode.IsSpace(c)
}

// parseCount accepts integers and floats, since benchmark tools print either.
func parseCount(f string) (uint64, error) {
	if u, err := strconv.ParseUint(f, 10, 64); err == nil {
		return u, nil
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s is not a non-negative number", f)
	}
	return uint64(v), nil
}

func parseObservation(data string, obs *Observation) (ok bool, err error) {
	fields := strings.FieldsFunc(data, isSep)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return false, nil
	}
	if len(fields) < 2 {
		return false, fmt.Errorf("want at least 2 fields, got %d", len(fields))
	}
	if obs.Size, err = parseCount(fields[0]); err != nil {
		return false, fmt.Errorf("invalid size: %v", err)
	}
	if obs.SendTimeNanos, err = parseCount(fields[1]); err != nil {
		return false, fmt.Errorf("invalid send time: %v", err)
	}
	return true, nil
}

// ParseObservations reads one observation per line: size in bytes, then
// send time in nanoseconds, separated by commas or whitespace. Extra
// columns are ignored. Blank lines and lines starting with # are skipped.
func ParseObservations(r io.Reader) ([]Observation, error) {
	s := bufio.NewScanner(r)
	var obs []Observation
	lineno := 0

	for s.Scan() {
		lineno++
		var o Observation
		ok, err := parseObservation(s.Text(), &o)
		if err != nil {
			return nil, fmt.Errorf("%d: %v", lineno, err)
		}
		if ok {
			obs = append(obs, o)
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return obs, nil
}

func PrintObservations(w io.Writer, obs []Observation) (n int, err error) {
	for i := range obs {
		m, err := fmt.Fprintln(w, obs[i])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// LoadObservations parses the log at path. Logs ending in .gz are
// decompressed first.
func LoadObservations(fs afero.Fs, path string) ([]Observation, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		defer gr.Close()
		r = gr
	}

	obs, err := ParseObservations(r)
	if err != nil {
		return nil, fmt.Errorf("%s:%v", path, err)
	}
	return obs, nil
}
