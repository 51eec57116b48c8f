package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	ndapi "github.com/dantte-lp/gond/internal/api"
)

// Sentinel errors for CLI validation.
var (
	errInterfaceRequired = errors.New("--interface flag is required")
	errLinkAddrRequired  = errors.New("--lladdr flag is required")
)

func neighborCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "neighbor",
		Aliases: []string{"neigh", "n"},
		Short:   "Manage the neighbor cache",
	}

	cmd.AddCommand(neighborListCmd())
	cmd.AddCommand(neighborAddCmd())
	cmd.AddCommand(neighborDeleteCmd())
	cmd.AddCommand(neighborFlushCmd())
	cmd.AddCommand(neighborResolveCmd())

	return cmd
}

// --- neighbor list ---

func neighborListCmd() *cobra.Command {
	var (
		iface int
		state string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List neighbor cache entries",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.ListNeighbors(context.Background(), &ndapi.ListNeighborsRequest{
				Interface: iface,
				State:     state,
			})
			if err != nil {
				return fmt.Errorf("list neighbors: %w", err)
			}

			out, err := formatNeighbors(resp.Neighbors, outputFormat)
			if err != nil {
				return fmt.Errorf("format neighbors: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	cmd.Flags().IntVar(&iface, "interface", 0, "only list entries on this interface index")
	cmd.Flags().StringVar(&state, "state", "", "only list entries in this state, e.g. Reachable")

	return cmd
}

// --- neighbor add ---

func neighborAddCmd() *cobra.Command {
	var (
		iface    int
		linkAddr string
		state    string
		static   bool
	)

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Add or update a neighbor cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if iface == 0 {
				return errInterfaceRequired
			}
			if linkAddr == "" && !strings.EqualFold(state, "Incomplete") {
				return errLinkAddrRequired
			}

			resp, err := client.AddNeighbor(context.Background(), &ndapi.AddNeighborRequest{
				Addr:      args[0],
				Interface: iface,
				LinkAddr:  linkAddr,
				State:     state,
				Static:    static,
			})
			if err != nil {
				return fmt.Errorf("add neighbor: %w", err)
			}

			out, err := formatNeighbors([]ndapi.Neighbor{resp.Neighbor}, outputFormat)
			if err != nil {
				return fmt.Errorf("format neighbor: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	cmd.Flags().IntVar(&iface, "interface", 0, "interface index (required)")
	cmd.Flags().StringVar(&linkAddr, "lladdr", "", "link-layer address, e.g. 02:00:00:00:00:01")
	cmd.Flags().StringVar(&state, "state", "", "initial state: Incomplete, Reachable, Stale, Delay or Probe (default Reachable)")
	cmd.Flags().BoolVar(&static, "static", false, "pin the entry so it never ages out")

	return cmd
}

// --- neighbor delete ---

func neighborDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <address>",
		Aliases: []string{"del"},
		Short:   "Delete a neighbor cache entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := client.DeleteNeighbor(context.Background(), &ndapi.DeleteNeighborRequest{
				Addr: args[0],
			}); err != nil {
				return fmt.Errorf("delete neighbor: %w", err)
			}

			fmt.Printf("Neighbor %s deleted.\n", args[0])

			return nil
		},
	}
}

// --- neighbor flush ---

func neighborFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete every non-static neighbor cache entry",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.FlushNeighbors(context.Background(), &ndapi.FlushNeighborsRequest{})
			if err != nil {
				return fmt.Errorf("flush neighbors: %w", err)
			}

			fmt.Printf("%d neighbors flushed.\n", resp.Flushed)

			return nil
		},
	}
}

// --- neighbor resolve ---

func neighborResolveCmd() *cobra.Command {
	var iface int

	cmd := &cobra.Command{
		Use:   "resolve <address>",
		Short: "Resolve a neighbor's link-layer address",
		Long: "Looks the address up in the neighbor cache. When it is not resolved yet " +
			"the daemon sends a Neighbor Solicitation and the command reports it as pending.",
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if iface == 0 {
				return errInterfaceRequired
			}

			resp, err := client.ResolveNeighbor(context.Background(), &ndapi.ResolveNeighborRequest{
				Addr:      args[0],
				Interface: iface,
			})
			if err != nil {
				return fmt.Errorf("resolve neighbor: %w", err)
			}

			if resp.Resolved {
				fmt.Printf("%s is at %s\n", args[0], resp.LinkAddr)
			} else {
				fmt.Printf("%s: resolution in progress\n", args[0])
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&iface, "interface", 0, "interface index (required)")

	return cmd
}
