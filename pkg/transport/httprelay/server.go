// Package httprelay exposes a Cord replica over HTTP and reaches remote
// replicas through the same API. It is a reference transport: the
// reconciliation engine only sees the Peer and Pusher interfaces.
//
//	GET  /v1/health
//	GET  /v1/manifest?since=N
//	GET  /v1/digest
//	POST /v1/fetch    {"ids": [...]}
//	POST /v1/missing  {"ids": [...]}
//	POST /v1/push     {"entries": [...]}
//
// Missing and push answer 403 unless AllowPush is set.
package httprelay

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/guildofsmiths/cord/pkg/cord"
	"github.com/guildofsmiths/cord/pkg/model"
)

// MaxIDsPerRequest bounds the ids accepted by fetch and missing.
const MaxIDsPerRequest = 4096

// MaxEntriesPerPush bounds the entries accepted by one push.
const MaxEntriesPerPush = 1024

type idsRequest struct {
	IDs []string `json:"ids"`
}

type entriesResponse struct {
	Entries []model.Entry `json:"entries"`
}

type pushRequest struct {
	Entries []model.Entry `json:"entries"`
}

type pushResponse struct {
	Inserted   int               `json:"inserted"`
	Duplicates int               `json:"duplicates"`
	Rejected   []model.Rejection `json:"rejected"`
}

type healthResponse struct {
	Status   string `json:"status"`
	AuthorID string `json:"author_id"`
	Count    int64  `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// AllowPush enables POST /v1/missing and /v1/push. Without it the
	// relay is read-only.
	AllowPush bool
	Logger    hclog.Logger
}

// Server serves one replica.
type Server struct {
	r    *cord.Replica
	e    *echo.Echo
	opts ServerOptions
	log  hclog.Logger
}

// NewServer builds the echo router for r.
func NewServer(r *cord.Replica, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{r: r, e: e, opts: opts, log: opts.Logger.Named("httprelay")}
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes mounts the relay API on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/health", s.handleHealth)
	e.GET("/v1/manifest", s.handleManifest)
	e.GET("/v1/digest", s.handleDigest)
	e.POST("/v1/fetch", s.handleFetch)
	e.POST("/v1/missing", s.handleMissing)
	e.POST("/v1/push", s.handlePush)
}

// ServeHTTP lets the server be mounted in any http.Handler tree.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) { s.e.ServeHTTP(w, req) }

// Start listens on addr until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("listening", "addr", addr, "push", s.opts.AllowPush)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "relay server")
	}
	return nil
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func (s *Server) handleHealth(c echo.Context) error {
	n, err := s.r.Store().Count(c.Request().Context())
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", AuthorID: s.r.AuthorID(), Count: n})
}

func (s *Server) handleManifest(c echo.Context) error {
	var since int64
	if v := c.QueryParam("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return badRequest(c, "since must be a non-negative integer")
		}
		since = n
	}
	m, err := s.r.Manifest(c.Request().Context(), since)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) handleDigest(c echo.Context) error {
	d, err := s.r.Digest(c.Request().Context())
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) handleFetch(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if len(req.IDs) > MaxIDsPerRequest {
		return badRequest(c, "too many ids")
	}
	entries, err := s.r.Fetch(c.Request().Context(), req.IDs)
	if err != nil {
		return s.internalError(c, err)
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	return c.JSON(http.StatusOK, entriesResponse{Entries: entries})
}

func (s *Server) handleMissing(c echo.Context) error {
	if !s.opts.AllowPush {
		return pushDisabled(c)
	}
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if len(req.IDs) > MaxIDsPerRequest {
		return badRequest(c, "too many ids")
	}
	missing, err := s.r.Missing(c.Request().Context(), req.IDs)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, idsRequest{IDs: missing})
}

func (s *Server) handlePush(c echo.Context) error {
	if !s.opts.AllowPush {
		return pushDisabled(c)
	}
	var req pushRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if len(req.Entries) > MaxEntriesPerPush {
		return badRequest(c, "too many entries")
	}
	res, err := s.r.Ingest(c.Request().Context(), req.Entries)
	if err != nil {
		return s.internalError(c, err)
	}
	s.log.Debug("push", "remote", c.RealIP(), "inserted", len(res.Inserted), "rejected", len(res.Rejected))
	if res.Rejected == nil {
		res.Rejected = []model.Rejection{}
	}
	return c.JSON(http.StatusOK, pushResponse{
		Inserted:   len(res.Inserted),
		Duplicates: len(res.Duplicates),
		Rejected:   res.Rejected,
	})
}

// pushDisabled answers the push-side endpoints of a read-only relay.
func pushDisabled(c echo.Context) error {
	return c.JSON(http.StatusForbidden, errorResponse{Error: "push disabled"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) internalError(c echo.Context, err error) error {
	s.log.Error("request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}
