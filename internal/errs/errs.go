// Package errs defines the error taxonomy shared by the binding pipeline.
//
// Entry-level and file-level problems are absorbed and logged where they
// occur; only configuration contradictions (an unreadable library image,
// an ambiguous multi-library destination) propagate to the caller.
package errs

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

var (
	// ErrLibraryNotFound reports an image that could not be opened or
	// parsed as ELF. Fatal for that library.
	ErrLibraryNotFound = errors.New("library not found or not a valid ELF image")

	// ErrDebugInfoUnavailable reports that no debug data could be located
	// anywhere. The pipeline degrades to exported symbols only.
	ErrDebugInfoUnavailable = errors.New("no debug information available")

	// ErrMalformedDebugEntry reports a single unparsable DWARF entry.
	// The walk skips it and continues.
	ErrMalformedDebugEntry = errors.New("malformed debug entry")

	// ErrHeaderUnreadable reports a header that could not be read or
	// tokenized. The remaining headers are still processed.
	ErrHeaderUnreadable = errors.New("header unreadable")

	// ErrOutputPathConflict reports a multi-library run targeting a
	// non-directory destination. Fatal for the whole batch.
	ErrOutputPathConflict = errors.New("output path conflict: multiple libraries need a directory destination")

	// ErrNameCollision reports two distinct inputs sanitizing to the same
	// identifier. Resolved by deterministic suffixing, surfaced as a warning.
	ErrNameCollision = errors.New("sanitized name collision")
)

// Wrap annotates err with a context message, preserving errors.Is matching.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// DeferClose properly closes an io.Closer with logging.
// Use in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// IsFatal reports whether err terminates its library's pipeline rather
// than degrading it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLibraryNotFound) || errors.Is(err, ErrOutputPathConflict)
}
