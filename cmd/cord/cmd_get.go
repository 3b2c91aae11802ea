package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/model"
)

func newGetCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <message-id>",
		Short: "Show one entry with its integrity hash and delivery marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.store.Get(cmd.Context(), args[0])
			if errors.Is(err, model.ErrNotFound) {
				return newExitError(exitFailure, "not found: "+args[0])
			}
			if err != nil {
				return err
			}
			hash, err := a.store.IntegrityHash(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := struct {
				model.Record
				IntegrityHash string `json:"integrity_hash"`
			}{rec, hash}
			a.emit(out, func(w io.Writer) {
				fmt.Fprintf(w, "message_id:     %s\n", rec.MessageID)
				fmt.Fprintf(w, "author:         %s #%d\n", rec.AuthorID, rec.AuthorCounter)
				fmt.Fprintf(w, "lamport_ts:     %d\n", rec.LamportTS)
				fmt.Fprintf(w, "where:          %s\n", where(rec.Entry))
				fmt.Fprintf(w, "class:          %s\n", rec.Class)
				fmt.Fprintf(w, "integrity_hash: %s\n", hash)
				if len(rec.Signature) > 0 {
					fmt.Fprintf(w, "signature:      %s\n", base64.StdEncoding.EncodeToString(rec.Signature))
				}
				marker := string(rec.Delivery.Marker)
				if marker == "" {
					marker = "-"
				}
				fmt.Fprintf(w, "marker:         %s\n", marker)
				fmt.Fprintf(w, "payload:\n%s\n", rec.Payload)
			})
			return nil
		},
	}
}
