package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toringerhartCAMM/QC/internal/engine"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run [check...]",
		Short: "Run quality checks over all eligible images",
		Long: `Run the named quality checks (default: all of them) over every
image that does not yet carry the check's completion tag and is not
excluded with the #noqc tag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			var toRun []engine.Check
			if len(args) == 0 {
				toRun = c.Registry().All()
			} else {
				for _, name := range args {
					chk, err := c.Registry().Get(name)
					if err != nil {
						return err
					}
					toRun = append(toRun, chk)
				}
			}

			for _, chk := range toRun {
				summary, err := c.Engine().Run(cmd.Context(), chk)
				if summary != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s v%s: %d candidates, %d stored, %d failed\n",
						summary.Check, summary.Version, summary.Candidates, summary.Succeeded, summary.Failed)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
