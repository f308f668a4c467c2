// Command qc runs image quality checks against a remote image server
// and manages their stored results.
package main

import (
	"github.com/spf13/cobra"

	"github.com/toringerhartCAMM/QC/internal/config"
	"github.com/toringerhartCAMM/QC/internal/container"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "qc",
		Short:         "Image quality checks for a remote image server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "qc.toml", "path to the TOML configuration file")

	cmd.AddCommand(
		newRunCommand(opts),
		newSearchCommand(opts),
		newRemoveCommand(opts),
		newReportCommand(opts),
		newServeCommand(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.configPath)
}

// newContainer builds the full dependency graph, connecting to the
// image server.
func (o *rootOptions) newContainer(cmd *cobra.Command) (*container.Container, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return container.New(cmd.Context(), cfg)
}
