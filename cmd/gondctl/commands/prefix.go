package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	ndapi "github.com/dantte-lp/gond/internal/api"
)

func prefixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefix",
		Aliases: []string{"p"},
		Short:   "Manage the on-link prefix list",
	}

	cmd.AddCommand(prefixListCmd())
	cmd.AddCommand(prefixAddCmd())
	cmd.AddCommand(prefixDeleteCmd())
	cmd.AddCommand(prefixOnLinkCmd())

	return cmd
}

// --- prefix list ---

func prefixListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List on-link prefixes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.ListPrefixes(context.Background(), &ndapi.ListPrefixesRequest{})
			if err != nil {
				return fmt.Errorf("list prefixes: %w", err)
			}

			out, err := formatPrefixes(resp.Prefixes, outputFormat)
			if err != nil {
				return fmt.Errorf("format prefixes: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- prefix add ---

func prefixAddCmd() *cobra.Command {
	var lifetime uint32

	cmd := &cobra.Command{
		Use:   "add <prefix>",
		Short: "Add an on-link prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := client.AddPrefix(context.Background(), &ndapi.AddPrefixRequest{
				Prefix:   args[0],
				Lifetime: lifetime,
			}); err != nil {
				return fmt.Errorf("add prefix: %w", err)
			}

			fmt.Printf("Prefix %s added.\n", args[0])

			return nil
		},
	}

	cmd.Flags().Uint32Var(&lifetime, "lifetime", 0, "valid lifetime in seconds (0 = infinite)")

	return cmd
}

// --- prefix delete ---

func prefixDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <prefix>",
		Aliases: []string{"del"},
		Short:   "Delete an on-link prefix",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := client.DeletePrefix(context.Background(), &ndapi.DeletePrefixRequest{
				Prefix: args[0],
			}); err != nil {
				return fmt.Errorf("delete prefix: %w", err)
			}

			fmt.Printf("Prefix %s deleted.\n", args[0])

			return nil
		},
	}
}

// --- prefix onlink ---

func prefixOnLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onlink <address>",
		Short: "Report whether an address is on-link",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := client.CheckOnLink(context.Background(), &ndapi.CheckOnLinkRequest{
				Addr: args[0],
			})
			if err != nil {
				return fmt.Errorf("check on-link: %w", err)
			}

			if resp.OnLink {
				fmt.Printf("%s is on-link\n", args[0])
			} else {
				fmt.Printf("%s is off-link\n", args[0])
			}

			return nil
		},
	}
}
