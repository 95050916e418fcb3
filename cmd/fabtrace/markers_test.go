package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uluyol/fabtrace/capture"
	"github.com/uluyol/fabtrace/fault"
)

func TestMarkerResultSource(t *testing.T) {
	truncErr := fault.New(fault.TruncatedInput, "/caps/b.pcap", errors.New("unexpected EOF"))
	res := []markerResult{
		{path: "/caps/a.pcap", size: 2048, markers: capture.Markers{1, 2, 3}, stats: &capture.Stats{Packets: 3}},
		{path: "/caps/b.pcap", size: 1024, markers: capture.Markers{1}, stats: &capture.Stats{Packets: 1, Truncated: true}, err: truncErr},
		{path: "/caps/c.pcap", markers: capture.Markers{4, 5}},
	}

	tests := []struct {
		source string
		desc   string
	}{
		{"capture", "/caps/a.pcap (3 markers, from capture)"},
		{"capture (truncated)", "/caps/b.pcap (1 markers, from capture (truncated)): " + truncErr.Error()},
		{"cache", "/caps/c.pcap (2 markers, from cache)"},
	}

	for i, test := range tests {
		if got := res[i].source(); got != test.source {
			t.Errorf("case %d: source() = %q, want %q", i, got, test.source)
		}
		if got := describe(&res[i]); got != test.desc {
			t.Errorf("case %d: describe() = %q, want %q", i, got, test.desc)
		}
	}

	var buf bytes.Buffer
	writeMarkerTable(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "capture (truncated)")
	assert.Contains(t, out, "/caps/c.pcap")
}
