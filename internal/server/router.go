package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/relaunchr/internal/metrics"
	"github.com/loykin/relaunchr/internal/updater"
)

// Router exposes the orchestrator over HTTP.
// Endpoints:
//
//	POST {basePath}/update   query: force=true|false; returns at once
//	GET  {basePath}/status
//	POST {basePath}/start    synchronous
//	POST {basePath}/stop     synchronous
//	GET  {basePath}/logs     query: limit=N
//	GET  /metrics            when enabled with WithMetrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      Supervisor
	logs     LogSource
	basePath string
	metrics  bool
	auth     gin.HandlerFunc
	log      *slog.Logger
}

// Supervisor is the part of *updater.Orchestrator the router drives.
type Supervisor interface {
	Trigger(force bool) bool
	Status(ctx context.Context) updater.Status
	StartManaged(ctx context.Context) (updater.Run, error)
	StopManaged(ctx context.Context) (updater.Run, error)
}

// LogSource returns the most recent log lines, oldest first.
type LogSource interface {
	Lines(n int) []string
}

// DefaultLogLimit is the number of lines /logs returns without a limit.
const DefaultLogLimit = 100

type Option func(*Router)

// WithMetrics mounts the Prometheus handler at /metrics.
func WithMetrics() Option { return func(r *Router) { r.metrics = true } }

// WithAuth guards every endpoint under basePath; /metrics stays open.
func WithAuth(mw gin.HandlerFunc) Option { return func(r *Router) { r.auth = mw } }

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRouter constructs a Router. logs may be nil, in which case /logs is
// empty.
func NewRouter(sup Supervisor, logs LogSource, basePath string, opts ...Option) *Router {
	r := &Router{sup: sup, logs: logs, basePath: sanitizeBase(basePath), log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), accessLog(r.log))
	group := g.Group(r.basePath)
	if r.auth != nil {
		group.Use(r.auth)
	}
	group.POST("/update", r.handleUpdate)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/logs", r.handleLogs)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer returns an http.Server for h; the caller runs ListenAndServe.
// Start and stop answer only when the run finishes, so the write timeout
// leaves room for a full stop wait and manifest fetch.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type updateResp struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

type logsResp struct {
	Lines []string `json:"lines"`
}

func (r *Router) handleUpdate(c *gin.Context) {
	force, err := parseBool(c.Query("force"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid force: " + err.Error()})
		return
	}
	if !r.sup.Trigger(force) {
		writeJSON(c, http.StatusConflict, updateResp{Accepted: false, Error: updater.ErrAlreadyInProgress.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, updateResp{Accepted: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status(c.Request.Context()))
}

func (r *Router) handleStart(c *gin.Context) {
	r.writeRun(c, func(ctx context.Context) (updater.Run, error) { return r.sup.StartManaged(ctx) })
}

func (r *Router) handleStop(c *gin.Context) {
	r.writeRun(c, func(ctx context.Context) (updater.Run, error) { return r.sup.StopManaged(ctx) })
}

func (r *Router) writeRun(c *gin.Context, do func(context.Context) (updater.Run, error)) {
	run, err := do(c.Request.Context())
	switch {
	case errors.Is(err, updater.ErrAlreadyInProgress):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	case err != nil:
		writeJSON(c, http.StatusInternalServerError, run)
	default:
		writeJSON(c, http.StatusOK, run)
	}
}

func (r *Router) handleLogs(c *gin.Context) {
	limit := DefaultLogLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	resp := logsResp{Lines: []string{}}
	if r.logs != nil {
		if lines := r.logs.Lines(limit); lines != nil {
			resp.Lines = lines
		}
	}
	writeJSON(c, http.StatusOK, resp)
}
