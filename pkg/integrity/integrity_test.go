package integrity

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildofsmiths/cord/pkg/model"
)

func sample() model.Entry {
	return model.Entry{
		MessageID:     "m1",
		AuthorID:      "A",
		AuthorCounter: 1,
		LamportTS:     1,
		HubID:         "hub",
		ChannelID:     "general",
		Class:         model.ClassText,
		Payload:       []byte(`{"text":"<b>hi</b>"}`),
	}
}

func TestCanonicalFields_SortedAndUnescaped(t *testing.T) {
	got, err := canonicalFields(sample(), true)
	require.NoError(t, err)

	s := string(got)
	assert.True(t, strings.HasPrefix(s, `{"author_counter":1,"author_id":"A","channel_id":"general"`), s)
	assert.NotContains(t, s, `<`)
	assert.Contains(t, s, `"message_id":"m1"`)
}

func TestCanonicalString_NFC(t *testing.T) {
	// "é" precomposed vs. e + combining acute.
	a, err := canonicalString("caf\u00e9")
	require.NoError(t, err)
	b, err := canonicalString("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHash_Stable(t *testing.T) {
	h1, err := HashHex(sample())
	require.NoError(t, err)
	h2, err := HashHex(sample())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHash_IgnoresSignature(t *testing.T) {
	e := sample()
	h1, _ := HashHex(e)
	e.Signature = []byte{1, 2, 3}
	h2, _ := HashHex(e)
	assert.Equal(t, h1, h2)
}

func TestHash_CoversContent(t *testing.T) {
	base, _ := HashHex(sample())
	muts := map[string]func(*model.Entry){
		"payload": func(e *model.Entry) { e.Payload = []byte("x") },
		"ts":      func(e *model.Entry) { e.LamportTS = 2 },
		"counter": func(e *model.Entry) { e.AuthorCounter = 2 },
		"thread":  func(e *model.Entry) { e.ThreadID = "t" },
		"id":      func(e *model.Entry) { e.MessageID = "m2" },
	}
	for name, mut := range muts {
		e := sample()
		mut(&e)
		h, err := HashHex(e)
		require.NoError(t, err)
		assert.NotEqual(t, base, h, name)
	}
}

func TestContentID_RoundTrip(t *testing.T) {
	e := sample()
	id, err := ContentIDs{}.NewID(e)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, ContentIDPrefix))
	assert.Len(t, id, len(ContentIDPrefix)+32)

	e.MessageID = id
	assert.NoError(t, CheckID(e))

	e.Payload = []byte("tampered")
	assert.ErrorIs(t, CheckID(e), model.ErrIntegrity)
}

func TestCheckID_RandomIDsAccepted(t *testing.T) {
	id, err := RandomIDs{}.NewID(sample())
	require.NoError(t, err)
	e := sample()
	e.MessageID = id
	assert.NoError(t, CheckID(e))
}

func TestHash_RefusesInvalidUTF8(t *testing.T) {
	a, b := sample(), sample()
	a.HubID = "h\xff"
	b.HubID = "h\xfe"
	for _, e := range []model.Entry{a, b} {
		_, err := HashHex(e)
		assert.ErrorIs(t, err, model.ErrInvalidEntry)
		_, err = ContentID(e)
		assert.ErrorIs(t, err, model.ErrInvalidEntry)
	}
}

func TestKeyring_SignAndVerify(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)

	e := sample()
	e.AuthorID = signer.AuthorID()
	signed, err := Sign(e, signer)
	require.NoError(t, err)
	require.Len(t, signed.Signature, 65)

	kr := NewKeyring(true)
	assert.NoError(t, kr.Verify(signed))

	tampered := signed.Clone()
	tampered.Payload = []byte("other")
	assert.ErrorIs(t, kr.Verify(tampered), model.ErrIntegrity)
}

func TestKeyring_RequiresChecksummedAuthor(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)
	kr := NewKeyring(true)

	for _, author := range []string{
		strings.ToLower(signer.AuthorID()),
		"0x" + strings.ToUpper(strings.TrimPrefix(signer.AuthorID(), "0x")),
	} {
		if author == signer.AuthorID() {
			continue // all-digit or single-case address
		}
		e := sample()
		e.AuthorID = author
		signed, err := Sign(e, signer)
		require.NoError(t, err)
		assert.ErrorIs(t, kr.Verify(signed), model.ErrIntegrity, author)
	}
}

func TestKeyring_TrustedAuthorAlias(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)

	e := sample()
	e.AuthorID = "device-a"
	signed, err := Sign(e, signer)
	require.NoError(t, err)

	kr := NewKeyring(false)
	assert.ErrorIs(t, kr.Verify(signed), model.ErrIntegrity, "unknown alias must not verify")

	require.NoError(t, kr.Trust("device-a", signer.AuthorID()))
	assert.NoError(t, kr.Verify(signed))

	other, _ := GenerateKeySigner()
	require.NoError(t, kr.Trust("device-a", other.AuthorID()))
	assert.True(t, errors.Is(kr.Verify(signed), model.ErrIntegrity))
}

func TestKeyring_Unsigned(t *testing.T) {
	assert.NoError(t, NewKeyring(false).Verify(sample()))
	assert.ErrorIs(t, NewKeyring(true).Verify(sample()), model.ErrUnsigned)
}

func TestKeyring_TrustRejectsBadAddress(t *testing.T) {
	assert.Error(t, NewKeyring(false).Trust("a", "not-an-address"))
}

func TestKeySigner_SaveLoad(t *testing.T) {
	s, err := GenerateKeySigner()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "device.key")
	require.NoError(t, s.Save(path))

	loaded, err := LoadKeySigner(path)
	require.NoError(t, err)
	assert.Equal(t, s.AuthorID(), loaded.AuthorID())
}

func TestCheck_NilVerifier(t *testing.T) {
	e := sample()
	e.Signature = []byte("garbage")
	assert.NoError(t, Check(e, nil))
	assert.ErrorIs(t, Check(e, NewKeyring(false)), model.ErrIntegrity)
}
