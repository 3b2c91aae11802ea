package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/guildofsmiths/cord/pkg/model"
)

const maxPayloadWidth = 120

// printRecord writes one log line:
//
//	[ts=3] alice#2 hub/ops text: payload (synced)
func printRecord(w io.Writer, r model.Record) {
	fmt.Fprintf(w, "[ts=%d] %s#%d %s %s: %s", r.LamportTS, r.AuthorID, r.AuthorCounter,
		where(r.Entry), r.Class, payloadText(r.Payload))
	if r.Delivery.Marker != model.MarkerNone {
		fmt.Fprintf(w, " (%s)", r.Delivery.Marker)
	}
	fmt.Fprintln(w)
}

func where(e model.Entry) string {
	s := e.HubID + "/" + e.ChannelID
	if e.CordID != "" {
		s += "@" + e.CordID
	}
	if e.ThreadID != "" {
		s += "~" + e.ThreadID
	}
	return s
}

// payloadText flattens a payload to a single truncated line.
func payloadText(p []byte) string {
	s := strings.Join(strings.Fields(string(p)), " ")
	if len(s) > maxPayloadWidth {
		s = s[:maxPayloadWidth] + "..."
	}
	return s
}
