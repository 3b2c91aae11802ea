// Package integrity derives identities and integrity hashes for Cord entries
// and signs/verifies them.
//
// Everything hashed goes through one canonical encoding: a JSON object with
// keys in byte order, no HTML escaping, NFC-normalized strings and the
// payload as standard base64. The delivery marker is never part of it.
package integrity

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/guildofsmiths/cord/pkg/model"
)

// field is one canonical key/value; value is already encoded JSON.
type field struct {
	key   string
	value []byte
}

// canonicalFields encodes the immutable content of e. includeID controls
// whether message_id participates (it cannot when deriving the id itself).
func canonicalFields(e model.Entry, includeID bool) ([]byte, error) {
	strs := map[string]string{
		"author_id":  e.AuthorID,
		"hub_id":     e.HubID,
		"channel_id": e.ChannelID,
		"cord_id":    e.CordID,
		"thread_id":  e.ThreadID,
		"class":      string(e.Class),
		"payload":    base64.StdEncoding.EncodeToString(e.Payload),
	}
	if includeID {
		strs["message_id"] = e.MessageID
	}

	fields := make([]field, 0, len(strs)+2)
	for k, v := range strs {
		enc, err := canonicalString(v)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field{key: k, value: enc})
	}
	fields = append(fields,
		field{key: "author_counter", value: []byte(strconv.FormatInt(e.AuthorCounter, 10))},
		field{key: "lamport_ts", value: []byte(strconv.FormatInt(e.LamportTS, 10))},
	)
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := canonicalString(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// canonicalString encodes s as a JSON string after NFC normalization,
// without HTML escaping. Invalid UTF-8 is refused: the encoder would
// replace it with U+FFFD and distinct strings would hash alike.
func canonicalString(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: %q is not valid UTF-8", model.ErrInvalidEntry, s)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
