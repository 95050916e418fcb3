package recorders

import (
	"bufio"
	"io"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the marker message.
const (
	fieldKey    protowire.Number = 1
	fieldCount  protowire.Number = 2
	fieldDeltas protowire.Number = 3
)

// WriteMarkers writes one cache entry: a 3 byte header followed by a zstd
// stream holding the key, the marker count, and the markers as packed
// zigzag deltas.
func WriteMarkers(w io.Writer, key string, markers []uint64) error {
	bw := bufio.NewWriter(w)

	hdr := [3]byte{
		0x99, // magic
		0x4d, // magic
		0x00, // version number
	}
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	var deltas []byte
	var prev uint64
	for _, m := range markers {
		deltas = protowire.AppendVarint(deltas, protowire.EncodeZigZag(int64(m-prev)))
		prev = m
	}

	msg := protowire.AppendTag(nil, fieldKey, protowire.BytesType)
	msg = protowire.AppendString(msg, key)
	msg = protowire.AppendTag(msg, fieldCount, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(len(markers)))
	msg = protowire.AppendTag(msg, fieldDeltas, protowire.BytesType)
	msg = protowire.AppendBytes(msg, deltas)

	zw, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	if _, err := zw.Write(msg); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}
