// Package capture extracts marker sequences from packet capture files.
//
// A marker is the 48-bit source hardware address of a packet. The
// benchmark senders write a sequence counter or timestamp into that
// field, so the ordered markers of one sender stand in for its send
// times.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/afero"
	"github.com/uluyol/fabtrace/bench"
	"github.com/uluyol/fabtrace/fault"
)

const pcapngMagic = 0x0A0D0D0A

type Stats struct {
	Packets    int64
	Matched    int64
	Skipped    int64
	BytesRead  int64
	TotalBytes int64
	Truncated  bool
}

func (s *Stats) pctDone() float64 {
	if s.TotalBytes <= 0 {
		return 100
	}
	return 100 * float64(s.BytesRead) / float64(s.TotalBytes)
}

type Extractor struct {
	_      struct{}
	Fs     afero.Fs
	Filter Filter
	Log    bench.Logger

	// ProgressPeriod is the interval between progress messages.
	// Zero disables them.
	ProgressPeriod time.Duration
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

const (
	pcapFileHeaderLen   = 24
	pcapRecordHeaderLen = 16
)

// pcapSource accounts for the bytes of whole records, so that a file that
// ends right after a record header is not mistaken for a clean end.
type pcapSource struct {
	*pcapgo.Reader
	off int64
}

func (s *pcapSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.Reader.ReadPacketData()
	if err == nil {
		s.off += pcapRecordHeaderLen + int64(len(data))
	}
	return data, ci, err
}

// countingReader tracks consumed bytes for progress reporting.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	atomic.AddInt64(&c.n, int64(n))
	return n, err
}

func (c *countingReader) count() int64 { return atomic.LoadInt64(&c.n) }

const (
	ngByteOrderMagic = 0x1A2B3C4D
	ngMinBlockLen    = 12
)

// ngFramer follows the block framing of a pcapng stream as it is read, so
// that an end of file inside a block can be told apart from a clean end.
// NgReader buffers its input, so the framer sits below it.
type ngFramer struct {
	r     io.Reader
	order binary.ByteOrder
	head  [ngMinBlockLen]byte
	nhead int
	left  int64 // bytes of the current block past its head
	bad   bool
}

func (f *ngFramer) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	f.feed(p[:n])
	return n, err
}

func (f *ngFramer) feed(b []byte) {
	for len(b) > 0 && !f.bad {
		if f.left > 0 {
			k := int64(len(b))
			if k > f.left {
				k = f.left
			}
			f.left -= k
			b = b[k:]
			continue
		}
		k := copy(f.head[f.nhead:], b)
		f.nhead += k
		b = b[k:]
		if f.nhead < ngMinBlockLen {
			continue
		}
		f.nhead = 0
		if binary.BigEndian.Uint32(f.head[:4]) == pcapngMagic {
			switch {
			case binary.LittleEndian.Uint32(f.head[8:]) == ngByteOrderMagic:
				f.order = binary.LittleEndian
			case binary.BigEndian.Uint32(f.head[8:]) == ngByteOrderMagic:
				f.order = binary.BigEndian
			default:
				f.bad = true
				return
			}
		}
		if f.order == nil {
			f.bad = true
			return
		}
		blen := f.order.Uint32(f.head[4:8])
		if blen < ngMinBlockLen || blen%4 != 0 {
			f.bad = true
			return
		}
		f.left = int64(blen) - ngMinBlockLen
	}
}

// complete reports whether every byte seen so far belongs to a whole
// block.
func (f *ngFramer) complete() bool {
	return !f.bad && f.nhead == 0 && f.left == 0
}

type ngSource struct {
	*pcapgo.NgReader
	fr *ngFramer
}

func openSource(r io.Reader) (packetSource, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("unable to read file header: %v", err)
	}
	if binary.BigEndian.Uint32(head) == pcapngMagic {
		fr := &ngFramer{r: br}
		ng, err := pcapgo.NewNgReader(fr, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		return &ngSource{NgReader: ng, fr: fr}, nil
	}
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, err
	}
	return &pcapSource{Reader: pr, off: pcapFileHeaderLen}, nil
}

// isTruncation reports whether a read error marks a short or damaged
// record, as opposed to the clean end of a file of size total.
func isTruncation(src packetSource, err error, total int64) bool {
	if !errors.Is(err, io.EOF) {
		return true
	}
	switch s := src.(type) {
	case *pcapSource:
		return s.off < total
	case *ngSource:
		return !s.fr.complete()
	}
	return false
}

// Extract reads the capture at path and returns the markers of packets
// that match e.Filter, in file order.
//
// If the file ends in the middle of a record, Extract returns the markers
// read so far together with a fault.TruncatedInput error.
func (e *Extractor) Extract(ctx context.Context, path string) (Markers, Stats, error) {
	log := bench.OrNop(e.Log)
	var st Stats

	fs := e.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, st, fault.New(fault.SourceUnreadable, path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, st, fault.New(fault.SourceUnreadable, path, err)
	}
	st.TotalBytes = fi.Size()

	cr := &countingReader{r: f}
	src, err := openSource(cr)
	if err != nil {
		return nil, st, fault.New(fault.SourceUnreadable, path, err)
	}
	if lt := src.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, st, fault.Newf(fault.SourceUnreadable, path, "unsupported link type %v", lt)
	}

	var packets, matched int64
	msgLogger := bench.OpenPeriodicLogger(e.Log, e.ProgressPeriod, func(l bench.Logger) {
		cur := Stats{BytesRead: cr.count(), TotalBytes: st.TotalBytes}
		l.Printf("%s: %d/%d bytes (%.0f%%), %d packets, %d matched",
			path, cur.BytesRead, cur.TotalBytes, cur.pctDone(),
			atomic.LoadInt64(&packets), atomic.LoadInt64(&matched))
	})

	var markers Markers
	dec := newFrameDecoder()
	var retErr error
	for {
		if err := ctx.Err(); err != nil {
			retErr = err
			break
		}
		data, _, err := src.ReadPacketData()
		if err != nil {
			if isTruncation(src, err, st.TotalBytes) {
				st.Truncated = true
				retErr = fault.New(fault.TruncatedInput, path, err)
			}
			break
		}
		atomic.AddInt64(&packets, 1)
		rec, err := dec.decode(data)
		if err != nil {
			st.Skipped++
			continue
		}
		if e.Filter.Match(rec) {
			markers = append(markers, rec.SourceAddress48())
			atomic.AddInt64(&matched, 1)
		}
	}
	msgLogger.Close()

	st.Packets = atomic.LoadInt64(&packets)
	st.Matched = atomic.LoadInt64(&matched)
	st.BytesRead = cr.count()
	if st.Truncated {
		log.Warnf("%s: stopped at damaged record after %d packets (%d of %d bytes): %v",
			path, st.Packets, st.BytesRead, st.TotalBytes, retErr)
	}
	log.Printf("%s: finished %d packets, %d matched %v, %d undecodable",
		path, st.Packets, st.Matched, e.Filter, st.Skipped)
	return markers, st, retErr
}
