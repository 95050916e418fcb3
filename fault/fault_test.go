package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindThroughWrapping(t *testing.T) {
	base := New(TruncatedInput, "run.pcap", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("extract: %w", base)

	assert.True(t, Is(wrapped, TruncatedInput))
	assert.False(t, Is(wrapped, CacheCorrupt))
	assert.True(t, errors.Is(wrapped, io.ErrUnexpectedEOF))
	assert.Equal(t, "run.pcap: truncated input: unexpected EOF", base.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Other, KindOf(errors.New("boom")))
	assert.Equal(t, Other, KindOf(nil))
	assert.False(t, Is(nil, Other))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{New(EmptyInput, "", nil), "empty input"},
		{New(EmptyInput, "cdf", nil), "cdf: empty input"},
		{Newf(DivideByZero, "", "no time elapsed"), "divide by zero: no time elapsed"},
	}
	for i, test := range tests {
		if got := test.err.Error(); got != test.want {
			t.Errorf("case %d: want %q got %q", i, test.want, got)
		}
	}
}
