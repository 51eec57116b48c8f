package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	ndapi "github.com/dantte-lp/gond/internal/api"
)

func pingCmd() *cobra.Command {
	var (
		iface  int
		source string
		seq    uint16
	)

	cmd := &cobra.Command{
		Use:   "ping <destination>",
		Short: "Send one ICMPv6 Echo Request through the daemon",
		Long: "Exercises next-hop determination and address resolution: the request is " +
			"sent at once when the next hop is resolved and queued behind a Neighbor " +
			"Solicitation otherwise. Replies are not awaited.",
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if iface == 0 {
				return errInterfaceRequired
			}

			resp, err := client.Ping(context.Background(), &ndapi.PingRequest{
				Dst:       args[0],
				Interface: iface,
				Source:    source,
				Seq:       seq,
			})
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}

			fmt.Printf("Echo Request to %s from %s via %s\n", args[0], resp.Source, resp.NextHop)

			return nil
		},
	}

	cmd.Flags().IntVar(&iface, "interface", 0, "outgoing interface index (required)")
	cmd.Flags().StringVar(&source, "source", "", "source address (default: chosen from the interface)")
	cmd.Flags().Uint16Var(&seq, "seq", 1, "echo sequence number")

	return cmd
}
