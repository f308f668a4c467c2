package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/toringerhartCAMM/QC/internal/journal"
)

func newReportCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize past quality-check runs from the local journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			jrnl, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			runs, err := jrnl.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Run", "Check", "Version", "Started", "Images", "OK", "Failed"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.ID[:8], r.CheckName, r.CheckVersion,
					r.StartedAt.Format("2006-01-02 15:04:05"),
					r.Total, r.Succeeded, r.Failed,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}
