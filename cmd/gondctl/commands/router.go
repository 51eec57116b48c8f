package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	ndapi "github.com/dantte-lp/gond/internal/api"
)

func routerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "router",
		Aliases: []string{"r"},
		Short:   "Manage the default router list",
	}

	cmd.AddCommand(routerListCmd())
	cmd.AddCommand(routerAddCmd())
	cmd.AddCommand(routerDeleteCmd())

	return cmd
}

// --- router list ---

func routerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List default routers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.ListRouters(context.Background(), &ndapi.ListRoutersRequest{})
			if err != nil {
				return fmt.Errorf("list routers: %w", err)
			}

			out, err := formatRouters(resp.Routers, outputFormat)
			if err != nil {
				return fmt.Errorf("format routers: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- router add ---

func routerAddCmd() *cobra.Command {
	var (
		iface    int
		lifetime uint16
	)

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Add a static default router",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if iface == 0 {
				return errInterfaceRequired
			}

			resp, err := client.AddRouter(context.Background(), &ndapi.AddRouterRequest{
				Addr:      args[0],
				Interface: iface,
				Lifetime:  lifetime,
			})
			if err != nil {
				return fmt.Errorf("add router: %w", err)
			}

			out, err := formatRouters([]ndapi.Router{resp.Router}, outputFormat)
			if err != nil {
				return fmt.Errorf("format router: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	cmd.Flags().IntVar(&iface, "interface", 0, "interface index (required)")
	cmd.Flags().Uint16Var(&lifetime, "lifetime", 0, "router lifetime in seconds (0 = infinite)")

	return cmd
}

// --- router delete ---

func routerDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <address>",
		Aliases: []string{"del"},
		Short:   "Delete a default router",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := client.DeleteRouter(context.Background(), &ndapi.DeleteRouterRequest{
				Addr: args[0],
			}); err != nil {
				return fmt.Errorf("delete router: %w", err)
			}

			fmt.Printf("Router %s deleted.\n", args[0])

			return nil
		},
	}
}
