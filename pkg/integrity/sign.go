package integrity

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/guildofsmiths/cord/pkg/model"
)

// Signer signs the integrity digest of locally authored entries.
type Signer interface {
	// AuthorID is the identity the signer speaks for.
	AuthorID() string
	Sign(digest []byte) ([]byte, error)
}

// Verifier checks signatures on entries arriving from the transport.
type Verifier interface {
	Verify(e model.Entry) error
}

// Sign computes e's digest with signer and returns e with the signature set.
func Sign(e model.Entry, signer Signer) (model.Entry, error) {
	digest, err := Hash(e)
	if err != nil {
		return e, err
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return e, fmt.Errorf("sign %s: %w", e.MessageID, err)
	}
	e.Signature = sig
	return e, nil
}

// KeySigner signs with a secp256k1 key. Its author id is the key's address.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

// NewKeySigner wraps a secp256k1 private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner { return &KeySigner{key: key} }

// GenerateKeySigner creates a signer with a fresh key.
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeySigner{key: key}, nil
}

// LoadKeySigner reads a hex-encoded private key file.
func LoadKeySigner(path string) (*KeySigner, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return &KeySigner{key: key}, nil
}

// Save writes the private key as hex to path.
func (s *KeySigner) Save(path string) error {
	return crypto.SaveECDSA(path, s.key)
}

// AuthorID returns the checksummed address of the public key.
func (s *KeySigner) AuthorID() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (s *KeySigner) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.key)
}

// Keyring verifies recoverable secp256k1 signatures. An author is accepted
// when the recovered address is the one trusted for it, or, for authors
// without a trusted entry, when the author id is the checksummed address
// itself.
type Keyring struct {
	mu      sync.RWMutex
	trusted map[string]common.Address

	// RequireSignatures rejects unsigned entries with ErrUnsigned.
	RequireSignatures bool
}

// NewKeyring returns an empty keyring.
func NewKeyring(requireSignatures bool) *Keyring {
	return &Keyring{trusted: make(map[string]common.Address), RequireSignatures: requireSignatures}
}

// Trust binds authorID to a hex address.
func (k *Keyring) Trust(authorID, address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("trust %s: invalid address %q", authorID, address)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.trusted[authorID] = common.HexToAddress(address)
	return nil
}

// Verify checks e's signature against its integrity digest.
func (k *Keyring) Verify(e model.Entry) error {
	if len(e.Signature) == 0 {
		if k.RequireSignatures {
			return fmt.Errorf("%w: %s", model.ErrUnsigned, e.MessageID)
		}
		return nil
	}
	digest, err := Hash(e)
	if err != nil {
		return err
	}
	pub, err := crypto.SigToPub(digest, e.Signature)
	if err != nil {
		return fmt.Errorf("%w: %s: bad signature: %v", model.ErrIntegrity, e.MessageID, err)
	}
	addr := crypto.PubkeyToAddress(*pub)

	k.mu.RLock()
	want, ok := k.trusted[e.AuthorID]
	k.mu.RUnlock()
	if ok {
		if want != addr {
			return fmt.Errorf("%w: %s: signed by %s, author %s trusts %s",
				model.ErrIntegrity, e.MessageID, addr.Hex(), e.AuthorID, want.Hex())
		}
		return nil
	}
	// Only the checksummed spelling names the key's author; other casings
	// are different author ids with their own order and history.
	if e.AuthorID != addr.Hex() {
		return fmt.Errorf("%w: %s: signer %s is not author %s",
			model.ErrIntegrity, e.MessageID, addr.Hex(), e.AuthorID)
	}
	return nil
}

// Check runs the content id check and, when v is non-nil, signature
// verification.
func Check(e model.Entry, v Verifier) error {
	if err := CheckID(e); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return v.Verify(e)
}
