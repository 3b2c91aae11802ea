package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/guildofsmiths/cord/pkg/model"
)

// Domain prefixes for hashing. The version suffix allows migrating the
// algorithm later without colliding with old digests.
const (
	DomainEntry     = "cord/entry/v1"
	DomainMessageID = "cord/message-id/v1"
)

// ContentIDPrefix marks message ids derived from entry content. Ids with
// this prefix are checked against the content on ingestion.
const ContentIDPrefix = "cid1"

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// Hash returns the 32-byte integrity digest of e. It covers every immutable
// field including the message id, and excludes the signature and the
// delivery marker. Signatures are made over this digest.
func Hash(e model.Entry) ([]byte, error) {
	canonical, err := canonicalFields(e, true)
	if err != nil {
		return nil, fmt.Errorf("integrity hash: %w", err)
	}
	return hashWithDomain(DomainEntry, canonical), nil
}

// HashHex is Hash encoded as lowercase hex.
func HashHex(e model.Entry) (string, error) {
	h, err := Hash(e)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h), nil
}

// ContentID derives a 128-bit message id from e's content (everything but
// the id and signature).
func ContentID(e model.Entry) (string, error) {
	canonical, err := canonicalFields(e, false)
	if err != nil {
		return "", fmt.Errorf("content id: %w", err)
	}
	sum := hashWithDomain(DomainMessageID, canonical)
	return ContentIDPrefix + hex.EncodeToString(sum[:16]), nil
}

// CheckID verifies a content-derived id against the entry content. Ids of
// any other form (random UUIDs) are accepted as-is.
func CheckID(e model.Entry) error {
	if !strings.HasPrefix(e.MessageID, ContentIDPrefix) {
		return nil
	}
	want, err := ContentID(e)
	if err != nil {
		return err
	}
	if want != e.MessageID {
		return fmt.Errorf("%w: message id %s does not match content", model.ErrIntegrity, e.MessageID)
	}
	return nil
}
