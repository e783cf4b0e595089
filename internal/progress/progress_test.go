package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNop_Tolerated(t *testing.T) {
	var s Sink = Nop{}
	s.Begin(100)
	s.Advance(50)
	s.Advance(50)
	s.End()
}

func TestLogSink_EmitsAtInterval(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	s := &LogSink{Logger: logger, Interval: 10}
	s.Begin(25)
	for i := 0; i < 25; i++ {
		s.Advance(1)
	}
	s.End()

	out := buf.String()
	assert.Contains(t, out, "Walking compilation units")
	assert.Contains(t, out, "Compilation unit walk complete")
	// 25 units at interval 10 -> two intermediate progress events.
	assert.Equal(t, 2, strings.Count(out, `"Progress"`))
}
