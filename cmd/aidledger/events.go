package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aidledger/core/notify"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List BatchSubmitted events, optionally following new ones",
	Example: `  aidledger events --from 0 --limit 50
  aidledger events --follow`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetUint64("from")
		limit, _ := cmd.Flags().GetInt("limit")
		follow, _ := cmd.Flags().GetBool("follow")
		c := newClient()

		if follow {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err := c.Stream(ctx, from, cmd.Flags().Changed("from"), func(n notify.Notification) error {
				return printOut(cmd, n, func() { printEvent(cmd, n) })
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		events, err := c.Events(cmd.Context(), from, limit)
		if err != nil {
			return err
		}
		return printOut(cmd, events, func() {
			for _, ev := range events {
				printEvent(cmd, notify.Notification{Seq: ev.Seq, Event: ev.Event})
			}
		})
	},
}

func printEvent(cmd *cobra.Command, n notify.Notification) {
	fmt.Fprintf(cmd.OutOrStdout(), "#%d BatchSubmitted ngo=%s index=%d root=%s\n",
		n.Seq, n.Event.Ngo, n.Event.BatchIndex, n.Event.MerkleRoot)
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Uint64("from", 0, "First event sequence number")
	eventsCmd.Flags().Int("limit", 100, "Maximum events to list")
	eventsCmd.Flags().Bool("follow", false, "Stream new events until interrupted")
}
