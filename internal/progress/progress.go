// Package progress defines the unit-of-work reporting sink consumed by
// the type collector. Implementations must tolerate being a no-op.
package progress

import (
	"github.com/rs/zerolog"
)

// Sink receives unit-of-work counts while compilation units are walked.
type Sink interface {
	// Begin announces the total number of units, when known (0 if not).
	Begin(total int)
	// Advance reports n additional units completed.
	Advance(n int)
	// End marks the work finished.
	End()
}

// Nop is a Sink that discards everything. The default in tests and when
// progress reporting is disabled.
type Nop struct{}

func (Nop) Begin(int)   {}
func (Nop) Advance(int) {}
func (Nop) End()        {}

// LogSink reports progress through a zerolog logger at debug level,
// emitting an event every Interval units (default 100).
type LogSink struct {
	Logger   zerolog.Logger
	Interval int

	total int
	done  int
	since int
}

// Begin implements Sink.
func (s *LogSink) Begin(total int) {
	s.total = total
	s.done = 0
	s.since = 0
	s.Logger.Debug().Int("total_units", total).Msg("Walking compilation units")
}

// Advance implements Sink.
func (s *LogSink) Advance(n int) {
	s.done += n
	s.since += n
	interval := s.Interval
	if interval <= 0 {
		interval = 100
	}
	if s.since >= interval {
		s.since = 0
		s.Logger.Debug().Int("units_done", s.done).Int("total_units", s.total).Msg("Progress")
	}
}

// End implements Sink.
func (s *LogSink) End() {
	s.Logger.Debug().Int("units_done", s.done).Msg("Compilation unit walk complete")
}
