// Package cli implements the dwarfbind command line interface.
package cli

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dwarfbind/dwarfbind/internal/config"
	"github.com/dwarfbind/dwarfbind/internal/errs"
	"github.com/dwarfbind/dwarfbind/internal/logging"
	"github.com/dwarfbind/dwarfbind/internal/pipeline"
	"github.com/dwarfbind/dwarfbind/pkg/version"
)

type rootFlags struct {
	output       string
	verbose      bool
	noColor      bool
	skipTypedefs bool
	skipProgress bool
	headers      []string
	modules      []string
	includePaths []string
	configPath   string
	jobs         int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "dwarfbind [flags] LIBRARY...",
		Short: "Generate Python ctypes bindings from ELF debug information",
		Long: `dwarfbind mines DWARF debug data from shared libraries and emits
Python ctypes binding modules: structure layouts, typedef aliases,
exported function declarations, and constants recovered from C headers.

Split debug files are located via .gnu_debuglink, build-id paths under
the configured debug roots, and .debug siblings. Libraries without any
debug data degrade to symbols-only bindings.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (single library) or directory")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored log output")
	cmd.Flags().BoolVar(&flags.skipTypedefs, "skip-typedefs", false, "omit typedef aliases from bindings")
	cmd.Flags().BoolVar(&flags.skipProgress, "skip-progress", false, "suppress progress reporting")
	cmd.Flags().StringSliceVar(&flags.headers, "headers", nil, "C headers to mine for constants")
	cmd.Flags().StringSliceVar(&flags.modules, "modules", nil, "modules whose constants resolve macro references")
	cmd.Flags().StringSliceVarP(&flags.includePaths, "include", "I", nil, "extra header include directories")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "config file path")
	cmd.Flags().IntVarP(&flags.jobs, "jobs", "j", runtime.NumCPU(), "number of libraries processed concurrently")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string, flags *rootFlags) error {
	logger := newLogger(flags)

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, logger)
	outcomes, err := p.RunBatch(cmd.Context(), args, pipeline.Options{
		Output:       flags.output,
		Headers:      flags.headers,
		IncludePaths: flags.includePaths,
		Modules:      flags.modules,
		SkipTypedefs: flags.skipTypedefs,
		SkipProgress: flags.skipProgress,
		Jobs:         flags.jobs,
	})
	if err != nil {
		return err
	}

	failures := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failures++
			cmd.PrintErrf("error: %s: %v\n", out.LibraryPath, out.Err)
			continue
		}
		cmd.Printf("%s -> %s\n", out.LibraryPath, out.ArtifactPath)
		if out.Usage != "" {
			cmd.Println(out.Usage)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d libraries failed", failures, len(outcomes))
	}
	return nil
}

func newLogger(flags *rootFlags) zerolog.Logger {
	level := "info"
	if flags.verbose {
		level = "debug"
	}
	return logging.New(logging.Config{
		Level:   level,
		Pretty:  true,
		NoColor: flags.noColor,
	})
}

// loadConfig resolves the effective configuration: an explicit path must
// exist and parse, the default location falls back to built-in defaults
// when absent.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = loader.LoadFile(path)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("dwarfbind version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
