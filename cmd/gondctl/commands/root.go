package commands

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	ndapi "github.com/dantte-lp/gond/internal/api"
)

var (
	// client is the ConnectRPC neighbor service client, initialized in PersistentPreRunE.
	client *ndapi.Client

	// outputFormat controls the output format for all commands (table, json or yaml).
	outputFormat string

	// serverAddr is the daemon address (host:port) for the ConnectRPC connection.
	serverAddr string
)

// rootCmd is the top-level cobra command for gondctl.
var rootCmd = &cobra.Command{
	Use:   "gondctl",
	Short: "CLI client for the gond daemon",
	Long:  "gondctl communicates with the gond daemon via ConnectRPC to inspect and manage IPv6 Neighbor Discovery state.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = ndapi.NewClient(http.DefaultClient, "http://"+serverAddr)

		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "127.0.0.1:50061",
		"gond daemon address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatTable,
		"output format: table, json, yaml")

	rootCmd.AddCommand(neighborCmd())
	rootCmd.AddCommand(routerCmd())
	rootCmd.AddCommand(prefixCmd())
	rootCmd.AddCommand(interfaceCmd())
	rootCmd.AddCommand(addressCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
