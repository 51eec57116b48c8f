package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/dantte-lp/gond/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print gondctl build information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := formatVersion(appversion.Get("gondctl"), outputFormat)
			if err != nil {
				return fmt.Errorf("format version: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
