package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/cord"
	"github.com/guildofsmiths/cord/pkg/model"
)

func newAppendCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		d     cord.Draft
		class string
		file  string
	)

	cmd := &cobra.Command{
		Use:   "append [payload]",
		Short: "Append an entry stamped by this device's clock",
		Long: `Stamps the payload with the next Lamport timestamp and author counter,
signs it when a key is configured, and stores it with marker "pending".
The payload comes from the argument, from --file, or from stdin with --file -.`,
		Example: `  cord append --hub acme --channel ops "deploy finished"
  cord append --class job_event --cord job-118 --file event.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args, file)
			if err != nil {
				return err
			}
			d.Class = model.MessageClass(class)
			d.Payload = payload

			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			r, err := a.openReplica(cmd.Context())
			if err != nil {
				return err
			}

			e, err := r.Append(cmd.Context(), d)
			if errors.Is(err, model.ErrInvalidEntry) {
				return wrapExitError(exitCommandError, "invalid entry", err)
			}
			if err != nil {
				return err
			}
			a.emit(e, func(w io.Writer) {
				fmt.Fprintf(w, "[ts=%d] %s#%d %s\n", e.LamportTS, e.AuthorID, e.AuthorCounter, e.MessageID)
			})
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&d.HubID, "hub", "", "hub id")
	f.StringVar(&d.ChannelID, "channel", "", "channel id")
	f.StringVar(&d.CordID, "cord", "", "cord id")
	f.StringVar(&d.ThreadID, "thread", "", "thread id")
	f.StringVar(&class, "class", string(model.ClassText), "message class (text|time_entry|job_event|system)")
	f.StringVarP(&file, "file", "f", "", "read the payload from a file, - for stdin")
	return cmd
}

func readPayload(cmd *cobra.Command, args []string, file string) ([]byte, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, newExitError(exitCommandError, "pass the payload as an argument or with --file, not both")
	case file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, wrapExitError(exitCommandError, "read payload", err)
		}
		return b, nil
	case len(args) == 1:
		return []byte(args[0]), nil
	}
	return nil, newExitError(exitCommandError, "payload required")
}
