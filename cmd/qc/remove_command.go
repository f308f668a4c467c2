package main

import (
	"github.com/spf13/cobra"
)

func newRemoveCommand(opts *rootOptions) *cobra.Command {
	var (
		checkName string
		imageID   int64
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a check's annotations from an image",
		Long: `Delete every annotation the named check has written to an image,
completion tag included, making the image eligible for the check
again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			chk, err := c.Registry().Get(checkName)
			if err != nil {
				return err
			}
			return c.Engine().Remove(cmd.Context(), chk, imageID)
		},
	}

	cmd.Flags().StringVar(&checkName, "check", "", "check whose annotations should be removed")
	cmd.Flags().Int64Var(&imageID, "image", 0, "image ID to clean")
	cmd.MarkFlagRequired("check")
	cmd.MarkFlagRequired("image")
	return cmd
}
