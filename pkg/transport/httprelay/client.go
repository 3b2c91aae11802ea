package httprelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/guildofsmiths/cord/pkg/model"
)

const defaultTimeout = 30 * time.Second

// Client talks to a remote relay. It implements reconcile.Peer and
// reconcile.Pusher.
type Client struct {
	base   string
	id     string
	client *http.Client
	ua     string
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// PeerID names the remote for checkpoints. Defaults to the base URL.
	PeerID string
	// Timeout bounds each request. Defaults to 30s.
	Timeout   time.Duration
	UserAgent string
}

// NewClient returns a client for the relay at baseURL.
func NewClient(baseURL string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("relay url %q: must be http(s)://host[:port]", baseURL)
	}
	base := strings.TrimRight(u.String(), "/")
	if opts.PeerID == "" {
		opts.PeerID = base
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "cord-relay-client"
	}
	c := &Client{base: base, id: opts.PeerID, ua: opts.UserAgent}
	c.client = &http.Client{Timeout: opts.Timeout, Transport: c}
	return c, nil
}

// RoundTrip stamps the user agent on every request.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.ua)
	return http.DefaultTransport.RoundTrip(req)
}

func (c *Client) ID() string { return c.id }

// Health returns the remote's author id and entry count.
func (c *Client) Health(ctx context.Context) (authorID string, count int64, err error) {
	var h healthResponse
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &h); err != nil {
		return "", 0, err
	}
	return h.AuthorID, h.Count, nil
}

func (c *Client) Manifest(ctx context.Context, since int64) (model.Manifest, error) {
	var m model.Manifest
	err := c.do(ctx, http.MethodGet, "/v1/manifest?since="+strconv.FormatInt(since, 10), nil, &m)
	return m, err
}

func (c *Client) Digest(ctx context.Context) (model.Digest, error) {
	var d model.Digest
	err := c.do(ctx, http.MethodGet, "/v1/digest", nil, &d)
	return d, err
}

func (c *Client) Fetch(ctx context.Context, ids []string) ([]model.Entry, error) {
	var out []model.Entry
	for _, chunk := range splitIDs(ids, MaxIDsPerRequest) {
		var resp entriesResponse
		if err := c.do(ctx, http.MethodPost, "/v1/fetch", idsRequest{IDs: chunk}, &resp); err != nil {
			return out, err
		}
		out = append(out, resp.Entries...)
	}
	return out, nil
}

func (c *Client) Missing(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, chunk := range splitIDs(ids, MaxIDsPerRequest) {
		var resp idsRequest
		if err := c.do(ctx, http.MethodPost, "/v1/missing", idsRequest{IDs: chunk}, &resp); err != nil {
			return nil, pushRefused(err)
		}
		out = append(out, resp.IDs...)
	}
	return out, nil
}

func (c *Client) Push(ctx context.Context, entries []model.Entry) ([]model.Rejection, error) {
	var rejected []model.Rejection
	for len(entries) > 0 {
		n := min(len(entries), MaxEntriesPerPush)
		var resp pushResponse
		if err := c.do(ctx, http.MethodPost, "/v1/push", pushRequest{Entries: entries[:n]}, &resp); err != nil {
			return rejected, pushRefused(err)
		}
		rejected = append(rejected, resp.Rejected...)
		entries = entries[n:]
	}
	return rejected, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Status: resp.Status, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

// StatusError is a non-200 reply from a relay.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Status, e.Message)
}

// pushRefused maps a 403 from the push-side endpoints to
// model.ErrPushRefused.
func pushRefused(err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusForbidden {
		return errors.Wrap(model.ErrPushRefused, se.Error())
	}
	return err
}

func splitIDs(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
