package errs

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesSentinel(t *testing.T) {
	err := Wrap(ErrLibraryNotFound, "opening /tmp/libnope.so")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLibraryNotFound))
	assert.Contains(t, err.Error(), "libnope")
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "nothing"))
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"library not found", ErrLibraryNotFound, true},
		{"output path conflict", ErrOutputPathConflict, true},
		{"wrapped fatal", Wrap(ErrOutputPathConflict, "batch"), true},
		{"debug info unavailable", ErrDebugInfoUnavailable, false},
		{"malformed entry", ErrMalformedDebugEntry, false},
		{"header unreadable", ErrHeaderUnreadable, false},
		{"name collision", ErrNameCollision, false},
		{"unrelated", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("close failed") }

func TestDeferClose(t *testing.T) {
	// Must tolerate nil closers and failing closers without panicking.
	DeferClose(zerolog.Nop(), nil, "nil closer")
	DeferClose(zerolog.Nop(), failingCloser{}, "failing closer")
}
