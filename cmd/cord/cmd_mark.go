package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/delivery"
	"github.com/guildofsmiths/cord/pkg/model"
)

func newMarkCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <message-id> <marker>",
		Short: "Set an entry's delivery marker",
		Long: `Records delivery telemetry for an entry: pending, sent, delivered,
synced, received or failed. Markers never change the entry, its order or
its integrity hash. The last write wins.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, marker := args[0], model.DeliveryMarker(args[1])
			if !marker.Valid() {
				return newExitError(exitCommandError, fmt.Sprintf("invalid marker %q", args[1]))
			}

			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			t := delivery.NewTracker(a.store, delivery.DefaultTTL, a.log)
			if err := t.Mark(cmd.Context(), id, marker); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return newExitError(exitFailure, "not found: "+id)
				}
				return err
			}
			a.emit(model.Delivery{MessageID: id, Marker: marker}, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %s\n", id, marker)
			})
			return nil
		},
	}
}
