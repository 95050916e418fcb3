package readers

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldKey    protowire.Number = 1
	fieldCount  protowire.Number = 2
	fieldDeltas protowire.Number = 3
)

// maxEntry bounds the decompressed size of a cache entry.
const maxEntry = 1 << 34

// ReadMarkers reads a cache entry written by recorders.WriteMarkers.
func ReadMarkers(r io.Reader) (key string, markers []uint64, err error) {
	var buf [3]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", nil, fmt.Errorf("unable to read header: %v", err)
	}

	if buf[0] != 0x99 || buf[1] != 0x4d {
		return "", nil, errors.New("format is incorrect: wrong magic")
	}

	if buf[2] != 0 {
		return "", nil, errors.New("cannot handle format versions > 0")
	}

	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxEntry))
	if err != nil {
		return "", nil, err
	}
	defer zr.Close()

	msg, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, err
	}

	var count uint64
	var deltas []byte
	var haveCount bool
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		msg = msg[n:]
		switch {
		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(msg)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			key, msg = v, msg[n:]
		case num == fieldCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			count, haveCount, msg = v, true, msg[n:]
		case num == fieldDeltas && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			deltas, msg = v, msg[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			msg = msg[n:]
		}
	}

	if !haveCount {
		return "", nil, errors.New("missing marker count")
	}
	if count > uint64(len(deltas)) {
		return "", nil, fmt.Errorf("%d markers cannot fit in %d bytes", count, len(deltas))
	}

	markers = make([]uint64, 0, count)
	var prev uint64
	for len(deltas) > 0 {
		v, n := protowire.ConsumeVarint(deltas)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		deltas = deltas[n:]
		prev += uint64(protowire.DecodeZigZag(v))
		markers = append(markers, prev)
	}
	if uint64(len(markers)) != count {
		return "", nil, fmt.Errorf("want %d markers, found %d", count, len(markers))
	}
	return key, markers, nil
}
