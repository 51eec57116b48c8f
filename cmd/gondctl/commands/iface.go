package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	ndapi "github.com/dantte-lp/gond/internal/api"
)

var errStateRequired = errors.New("--state flag is required")

func interfaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "interface",
		Aliases: []string{"iface", "i"},
		Short:   "Inspect Neighbor Discovery interfaces",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List interfaces",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.ListInterfaces(context.Background(), &ndapi.ListInterfacesRequest{})
			if err != nil {
				return fmt.Errorf("list interfaces: %w", err)
			}

			out, err := formatInterfaces(resp.Interfaces, outputFormat)
			if err != nil {
				return fmt.Errorf("format interfaces: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	})

	return cmd
}

func addressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "address",
		Aliases: []string{"addr", "a"},
		Short:   "Manage interface addresses",
	}

	cmd.AddCommand(addressListCmd())
	cmd.AddCommand(addressAddCmd())
	cmd.AddCommand(addressDeleteCmd())
	cmd.AddCommand(addressSetStateCmd())

	return cmd
}

// --- address list ---

func addressListCmd() *cobra.Command {
	var iface int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List interface addresses",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.ListAddresses(context.Background(), &ndapi.ListAddressesRequest{
				Interface: iface,
			})
			if err != nil {
				return fmt.Errorf("list addresses: %w", err)
			}

			out, err := formatAddresses(resp.Addresses, outputFormat)
			if err != nil {
				return fmt.Errorf("format addresses: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	cmd.Flags().IntVar(&iface, "interface", 0, "only list addresses on this interface index")

	return cmd
}

// --- address add ---

func addressAddCmd() *cobra.Command {
	var (
		iface  int
		method string
	)

	cmd := &cobra.Command{
		Use:   "add <address/len>",
		Short: "Configure an address on an interface",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if iface == 0 {
				return errInterfaceRequired
			}

			if _, err := client.AddAddress(context.Background(), &ndapi.AddAddressRequest{
				Prefix:    args[0],
				Interface: iface,
				Method:    method,
			}); err != nil {
				return fmt.Errorf("add address: %w", err)
			}

			fmt.Printf("Address %s added.\n", args[0])

			return nil
		},
	}

	cmd.Flags().IntVar(&iface, "interface", 0, "interface index (required)")
	cmd.Flags().StringVar(&method, "method", "", "configuration method: manual, autoconf, dhcp (default manual)")

	return cmd
}

// --- address delete ---

func addressDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <address>",
		Aliases: []string{"del"},
		Short:   "Remove an interface address",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := client.RemoveAddress(context.Background(), &ndapi.RemoveAddressRequest{
				Addr: args[0],
			}); err != nil {
				return fmt.Errorf("remove address: %w", err)
			}

			fmt.Printf("Address %s removed.\n", args[0])

			return nil
		},
	}
}

// --- address set-state ---

func addressSetStateCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "set-state <address>",
		Short: "Change the state of an interface address",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if state == "" {
				return errStateRequired
			}

			if _, err := client.SetAddressState(context.Background(), &ndapi.SetAddressStateRequest{
				Addr:  args[0],
				State: state,
			}); err != nil {
				return fmt.Errorf("set address state: %w", err)
			}

			fmt.Printf("Address %s is now %s.\n", args[0], state)

			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "new state: Tentative, Preferred, Deprecated or Valid (required)")

	return cmd
}
