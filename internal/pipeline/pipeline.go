// Package pipeline orchestrates the full binding run for one or more
// libraries: resolve debug data, collect types, preprocess headers, and
// emit artifacts.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dwarfbind/dwarfbind/internal/config"
	"github.com/dwarfbind/dwarfbind/internal/debuginfo"
	"github.com/dwarfbind/dwarfbind/internal/errs"
	"github.com/dwarfbind/dwarfbind/internal/preprocess"
	"github.com/dwarfbind/dwarfbind/internal/progress"
	"github.com/dwarfbind/dwarfbind/internal/pygen"
)

// Options controls one pipeline invocation.
type Options struct {
	// Output is the destination: empty for the current directory, a
	// directory for derived artifact names, or (single-library runs
	// only) an explicit file path.
	Output string
	// Headers are C header files mined for constants and
	// function-pointer typedef names.
	Headers []string
	// IncludePaths are extra include directories for header expansion,
	// searched before the configured ones.
	IncludePaths []string
	// Modules are importable module names whose top-level constants
	// resolve otherwise-undefined macro references.
	Modules []string
	// SkipTypedefs suppresses typedef emission in artifacts.
	SkipTypedefs bool
	// SkipProgress suppresses per-unit progress reporting.
	SkipProgress bool
	// Jobs bounds batch concurrency. Values below 1 mean 1.
	Jobs int
}

// Outcome is the per-library result of a run.
type Outcome struct {
	LibraryPath string
	JobID       string
	// ArtifactPath is set when an artifact was written.
	ArtifactPath string
	// Usage is the synthesized usage example for reporting.
	Usage string
	// Warnings records the degradations applied to this library.
	Warnings []string
	Err      error
}

// Pipeline wires the resolver, collector, preprocessor and generator.
type Pipeline struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// New creates a pipeline.
func New(cfg *config.Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger.With().Str("component", "pipeline").Logger()}
}

// Run processes a single library and writes its artifact.
func (p *Pipeline) Run(ctx context.Context, libraryPath string, opts Options) Outcome {
	constants := p.moduleConstants(opts)
	return p.run(ctx, libraryPath, opts, constants)
}

// moduleConstants loads the read-only constant set from referenced
// modules. Built once per batch and shared, never mutated.
func (p *Pipeline) moduleConstants(opts Options) map[string]string {
	pre := preprocess.New(p.includePaths(opts), p.logger)
	return pre.LoadModuleConstants(opts.Modules, moduleSearchDirs(opts))
}

func (p *Pipeline) includePaths(opts Options) []string {
	return append(append([]string{}, opts.IncludePaths...), p.cfg.IncludePaths...)
}

func (p *Pipeline) run(ctx context.Context, libraryPath string, opts Options, moduleConstants map[string]string) Outcome {
	out := Outcome{LibraryPath: libraryPath, JobID: uuid.NewString()}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	logger := p.logger.With().
		Str("library", libraryPath).
		Str("job_id", out.JobID).
		Logger()

	resolver := debuginfo.NewResolver(p.cfg, logger)
	lib, err := resolver.Resolve(libraryPath)
	if err != nil {
		out.Err = err
		return out
	}

	if lib.Files.Empty() {
		logger.Warn().
			Err(errs.ErrDebugInfoUnavailable).
			Msg("No debug data found; emitting symbols-only bindings")
		out.Warnings = append(out.Warnings, errs.ErrDebugInfoUnavailable.Error())
	}

	var sink progress.Sink = progress.Nop{}
	if !opts.SkipProgress {
		sink = &progress.LogSink{Logger: logger}
	}
	collector := debuginfo.NewCollector(p.cfg, logger, sink)
	collected := collector.Collect(lib.Files, lib.Exported)

	pre := preprocess.New(p.includePaths(opts), logger)
	macros := pre.ProcessHeaders(opts.Headers, moduleConstants)

	typedefs := collected.Typedefs
	if opts.SkipTypedefs {
		typedefs = nil
	} else {
		p.mergeHeaderFunctionPointers(pre, opts.Headers, typedefs)
	}

	gen := pygen.New(logger)
	artifactPath := resolveOutputPath(opts.Output, lib)
	usage, err := gen.Generate(pygen.Input{
		LibraryName: lib.Name,
		LibraryPath: lib.Path,
		BuildID:     lib.BuildID,
		JobID:       out.JobID,
		Structures:  collected.Structures,
		Typedefs:    typedefs,
		Signatures:  collected.Signatures,
		Exported:    lib.Exported,
		Macros:      macros,
	}, artifactPath)
	if err != nil {
		out.Err = err
		return out
	}

	out.ArtifactPath = artifactPath
	out.Usage = usage
	return out
}

// mergeHeaderFunctionPointers adds function-pointer typedef names
// recovered from header text when debug data produced nothing for them.
// Header recovery is a fallback, so a debug-derived entry always wins.
func (p *Pipeline) mergeHeaderFunctionPointers(pre *preprocess.Preprocessor, headers []string, typedefs map[string]debuginfo.TypedefInfo) {
	for _, name := range pre.FunctionPointerTypedefs(headers) {
		if _, seen := typedefs[name]; seen {
			continue
		}
		typedefs[name] = debuginfo.TypedefInfo{
			Representation: debuginfo.OpaqueFallback,
			Description:    "pointer to function type (header scan)",
			Score: debuginfo.QualityScore{
				Base: p.cfg.Scoring.FunctionPointer,
				Size: p.cfg.Scoring.SizeKnown,
			},
		}
	}
}

// RunBatch processes libraries concurrently with a bounded worker pool.
// With more than one library the destination must be usable as a
// directory; a conflicting destination fails the whole batch before any
// artifact is written. Cancelling ctx stops unstarted libraries; the
// one in flight finishes.
func (p *Pipeline) RunBatch(ctx context.Context, libraryPaths []string, opts Options) ([]Outcome, error) {
	if len(libraryPaths) > 1 && opts.Output != "" {
		if info, err := os.Stat(opts.Output); err == nil && !info.IsDir() {
			return nil, errs.Wrap(errs.ErrOutputPathConflict,
				"multiple libraries need a directory destination, got existing file "+opts.Output)
		}
		if err := os.MkdirAll(opts.Output, 0o755); err != nil {
			return nil, errs.Wrap(err, "failed to create output directory "+opts.Output)
		}
	}

	constants := p.moduleConstants(opts)

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(libraryPaths) {
		jobs = len(libraryPaths)
	}

	outcomes := make([]Outcome, len(libraryPaths))
	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				outcomes[i] = p.run(ctx, libraryPaths[i], opts, constants)
			}
		}()
	}
	for i := range libraryPaths {
		work <- i
	}
	close(work)
	wg.Wait()

	return outcomes, nil
}

// resolveOutputPath decides where an artifact lands. A destination that
// is an existing directory (or empty) gets the derived artifact name
// inside it; anything else is taken as an explicit file path.
func resolveOutputPath(output string, lib *debuginfo.Library) string {
	name := pygen.ArtifactName(lib.Name, lib.Path)
	if output == "" {
		return name
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, name)
	}
	return output
}

// moduleSearchDirs are where importable constant modules are looked up:
// the output directory, the working directory, then the include paths.
func moduleSearchDirs(opts Options) []string {
	dirs := []string{}
	if opts.Output != "" {
		dirs = append(dirs, opts.Output)
	}
	dirs = append(dirs, ".")
	return append(dirs, opts.IncludePaths...)
}
