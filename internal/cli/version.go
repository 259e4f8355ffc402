package cli

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the banner and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			banner := figure.NewFigure(AppName, "cybermedium", true)
			fmt.Fprintln(out, banner.String())
			fmt.Fprintf(out, "%s %s\n", AppName, Version)
			return nil
		},
	}
}
