package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/guildofsmiths/cord/pkg/cord"
	"github.com/guildofsmiths/cord/pkg/reconcile"
	"github.com/guildofsmiths/cord/pkg/store"
	"github.com/guildofsmiths/cord/pkg/transport/httprelay"
)

// openPeers resolves peer specs: http(s) URLs reach a relay, anything else
// is the path of another database on this machine (a USB stick, a shared
// mount). The returned func closes what was opened.
func (a *app) openPeers(ctx context.Context, specs []string) ([]reconcile.Peer, func(), error) {
	var (
		peers   []reconcile.Peer
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, spec := range specs {
		if strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://") {
			c, err := httprelay.NewClient(spec, httprelay.ClientOptions{UserAgent: "cord/" + version})
			if err != nil {
				closeAll()
				return nil, nil, wrapExitError(exitCommandError, "peer", err)
			}
			peers = append(peers, c)
			continue
		}

		p, closePeer, err := a.openFilePeer(ctx, spec)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		peers = append(peers, p)
		closers = append(closers, closePeer)
	}
	return peers, closeAll, nil
}

// openFilePeer opens another database as an in-process peer. Its replica
// runs under this device's author id, since this device is the one
// writing to it.
func (a *app) openFilePeer(ctx context.Context, path string) (reconcile.Peer, func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, wrapExitError(exitCommandError, "peer", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, nil, wrapExitError(exitCommandError, "peer database", err)
	}
	if same, _ := filepath.Abs(a.cfg.DB); same == abs {
		return nil, nil, newExitError(exitCommandError, "peer is this replica's own database: "+abs)
	}

	st, err := store.New(abs)
	if err != nil {
		return nil, nil, wrapExitError(exitCommandError, fmt.Sprintf("cannot open peer %q", abs), err)
	}
	kr, err := keyring(a.cfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	local, err := a.openReplica(ctx)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	r, err := cord.Open(ctx, st, cord.Options{
		AuthorID: local.AuthorID(),
		Verifier: kr,
		Logger:   a.log.Named("peer"),
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return &reconcile.LocalPeer{Name: "file:" + abs, Replica: r}, func() { st.Close() }, nil
}
