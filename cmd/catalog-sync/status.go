package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/tcg-catalog-sync/pkg/syncstate"
)

func newStatusCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the latest sync run",
		Long: `Prints the last progress snapshot published to Redis. With --follow, keeps
printing updates until the run finishes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tracker, closeTracker, err := openTracker(ctx, configFrom(ctx))
			if err != nil {
				return err
			}
			defer closeTracker()

			return runStatus(ctx, tracker, follow, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow updates until the run finishes")
	return cmd
}

func runStatus(ctx context.Context, tracker *syncstate.Tracker, follow bool, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var updates <-chan syncstate.Snapshot
	if follow {
		// Subscribe first so no update between Latest and Subscribe is lost.
		var err error
		if updates, err = tracker.Subscribe(ctx); err != nil {
			return err
		}
	}

	snap, err := tracker.Latest(ctx)
	switch {
	case errors.Is(err, syncstate.ErrNoSnapshot):
		fmt.Fprintln(out, "no sync has run yet")
	case err != nil:
		return err
	default:
		printSnapshot(out, *snap)
		if snap.Finished() {
			return nil
		}
	}

	if !follow {
		return nil
	}
	for snap := range updates {
		printSnapshot(out, snap)
		if snap.Finished() {
			return nil
		}
	}
	return ctx.Err()
}

func printSnapshot(out io.Writer, snap syncstate.Snapshot) {
	fmt.Fprintf(out, "%s  run %s  %s\n", snap.UpdatedAt.Local().Format("2006-01-02 15:04:05"), snap.RunID, snap.Progress)
}
