package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/toringerhartCAMM/QC/internal/query"
)

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var (
		filename    string
		plate       string
		acquisition string
		withTag     string
		withoutTag  string
		noqc        bool
		start       string
		end         string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search images by name, plate, tag or date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria := query.Criteria{}
			if filename != "" {
				criteria["filename"] = filename
			}
			if plate != "" {
				criteria["plate"] = plate
			}
			if acquisition != "" {
				criteria["acquisition"] = acquisition
			}
			if withTag != "" {
				criteria["with_tag"] = withTag
			}
			if withoutTag != "" {
				criteria["without_tag"] = withoutTag
			}
			if noqc {
				criteria["noqc"] = true
			}
			if start != "" || end != "" {
				t0, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				t1, err := time.Parse(time.RFC3339, end)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				criteria["daterange"] = []time.Time{t0, t1}
			}

			c, err := opts.newContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ids, err := c.Builder().FindImages(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filename, "filename", "", "LIKE match against the image file path")
	cmd.Flags().StringVar(&plate, "plate", "", "LIKE match against the plate name")
	cmd.Flags().StringVar(&acquisition, "acquisition", "", "LIKE match against the acquisition name")
	cmd.Flags().StringVar(&withTag, "with-tag", "", "only images carrying a matching tag")
	cmd.Flags().StringVar(&withoutTag, "without-tag", "", "only images not carrying a matching tag")
	cmd.Flags().BoolVar(&noqc, "noqc", false, "exclude images tagged #noqc (directly or via their plate)")
	cmd.Flags().StringVar(&start, "start", "", "creation-date lower bound (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "creation-date upper bound (RFC3339)")
	return cmd
}
