package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwarfbind/dwarfbind/internal/config"
	"github.com/dwarfbind/dwarfbind/internal/errs"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage dwarfbind configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			cfg, err := loader.Load()
			if err != nil {
				return errs.Wrap(err, "failed to load configuration")
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return errs.Wrap(err, "failed to render configuration")
			}
			cmd.Printf("# %s\n%s", loader.Path(), data)
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if err := loader.Save(config.Default()); err != nil {
				return errs.Wrap(err, "failed to write configuration")
			}
			cmd.Printf("Wrote %s\n", loader.Path())
			return nil
		},
	}
}
