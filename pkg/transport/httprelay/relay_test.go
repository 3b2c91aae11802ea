package httprelay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildofsmiths/cord/pkg/config"
	"github.com/guildofsmiths/cord/pkg/cord"
	"github.com/guildofsmiths/cord/pkg/model"
	"github.com/guildofsmiths/cord/pkg/reconcile"
	"github.com/guildofsmiths/cord/pkg/store"
)

func newReplica(t *testing.T, author string) *cord.Replica {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), author+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	r, err := cord.Open(context.Background(), st, cord.Options{AuthorID: author})
	require.NoError(t, err)
	return r
}

func appendN(t *testing.T, r *cord.Replica, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := r.Append(context.Background(), cord.Draft{
			HubID: "hub", ChannelID: "ops", Class: model.ClassJobEvent,
			Payload: []byte(fmt.Sprintf(`{"n":%d}`, i)),
		})
		require.NoError(t, err)
	}
}

func serve(t *testing.T, r *cord.Replica, push bool) *Client {
	t.Helper()
	srv := httptest.NewServer(NewServer(r, ServerOptions{AllowPush: push}))
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, ClientOptions{PeerID: r.AuthorID()})
	require.NoError(t, err)
	return c
}

func TestClient_Endpoints(t *testing.T) {
	ctx := context.Background()
	remote := newReplica(t, "R")
	appendN(t, remote, 3)
	c := serve(t, remote, true)

	author, n, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R", author)
	assert.Equal(t, int64(3), n)

	m, err := c.Manifest(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, m.Items, 2)
	assert.Equal(t, int64(3), m.MaxTimestamp)

	d, err := c.Digest(ctx)
	require.NoError(t, err)
	local, err := remote.Digest(ctx)
	require.NoError(t, err)
	assert.Equal(t, local, d)

	entries, err := c.Fetch(ctx, m.IDs())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].LamportTS)
	assert.JSONEq(t, `{"n":1}`, string(entries[0].Payload))

	missing, err := c.Missing(ctx, []string{"nope", m.Items[0].MessageID})
	require.NoError(t, err)
	assert.Equal(t, []string{"nope"}, missing)
}

func TestClient_PushDisabled(t *testing.T) {
	ctx := context.Background()
	c := serve(t, newReplica(t, "R"), false)

	_, err := c.Push(ctx, []model.Entry{{MessageID: "m"}})
	assert.ErrorIs(t, err, model.ErrPushRefused)
	assert.Contains(t, err.Error(), "403")

	_, err = c.Missing(ctx, []string{"m"})
	assert.ErrorIs(t, err, model.ErrPushRefused)

	// Other failures keep their status.
	_, err = c.Manifest(ctx, -1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.NotErrorIs(t, err, model.ErrPushRefused)
}

func TestClient_PushReportsRejections(t *testing.T) {
	ctx := context.Background()
	remote := newReplica(t, "R")
	c := serve(t, remote, true)

	rejected, err := c.Push(ctx, []model.Entry{
		{MessageID: "ok", AuthorID: "A", AuthorCounter: 1, LamportTS: 1, Class: model.ClassText},
		{MessageID: "bad", AuthorID: "A", AuthorCounter: 0, LamportTS: 2, Class: model.ClassText},
	})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "bad", rejected[0].MessageID)
	assert.NotEmpty(t, rejected[0].Reason)

	ok, err := remote.Store().Exists(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServer_BadRequests(t *testing.T) {
	srv := httptest.NewServer(NewServer(newReplica(t, "R"), ServerOptions{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/manifest?since=-4")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/fetch", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://x", "/tmp/cord.db", "http://"} {
		_, err := NewClient(u, ClientOptions{})
		assert.Error(t, err, u)
	}
}

func TestReconcileOverHTTP(t *testing.T) {
	ctx := context.Background()
	local := newReplica(t, "L")
	remote := newReplica(t, "R")
	appendN(t, local, 2)
	appendN(t, remote, 5)

	eng := reconcile.New(local, reconcile.Options{BatchSize: 2, Push: true, VerifyDigest: true})
	res, err := eng.Reconcile(ctx, serve(t, remote, true))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Inserted)
	assert.Equal(t, 2, res.Pushed)

	ld, err := local.Digest(ctx)
	require.NoError(t, err)
	rd, err := remote.Digest(ctx)
	require.NoError(t, err)
	assert.Equal(t, ld, rd)
	assert.Equal(t, int64(7), ld.Count)
}

// Default sync settings against a default relay: the relay is read-only,
// so rounds pull, keep their checkpoint and succeed.
func TestReconcileOverHTTP_DefaultConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	local := newReplica(t, "L")
	remote := newReplica(t, "R")
	appendN(t, local, 2)
	appendN(t, remote, 3)

	c := serve(t, remote, cfg.Relay.AllowPush)
	eng := reconcile.New(local, reconcile.Options{
		BatchSize:    cfg.Sync.BatchSize,
		VerifyDigest: cfg.Sync.VerifyDigest,
		Push:         cfg.Sync.Push,
	})

	res, err := eng.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.True(t, res.PushRefused)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, int64(3), res.Checkpoint.PulledTS)

	appendN(t, remote, 1)
	res, err = eng.Reconcile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, int64(4), res.Checkpoint.PulledTS)

	n, err := remote.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "read-only relay stores nothing pushed")
	n, err = local.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}
