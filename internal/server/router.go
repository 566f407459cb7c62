// Package server hosts the supervisor behind a thin HTTP surface. Every
// route translates 1:1 into one Manager operation and only ever returns
// the sanitized describe payload; raw records and env values never cross
// this boundary.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/shellvisr/internal/manager"
	"github.com/loykin/shellvisr/internal/shell"
)

// AuthHeader carries the shared secret gating mutating routes when the
// router is constructed with a non-empty key.
const AuthHeader = "X-Shellvisr-Key"

// Router provides embeddable HTTP handlers for the shell supervisor.
type Router struct {
	mgr      *manager.Manager
	basePath string
	apiKey   string
}

// NewRouter constructs a Router mounted under basePath (default "/api").
// An empty apiKey disables the shared-secret check.
func NewRouter(mgr *manager.Manager, basePath, apiKey string) *Router {
	bp := sanitizeBase(basePath)
	if bp == "" {
		bp = "/api"
	}
	return &Router{mgr: mgr, basePath: bp, apiKey: apiKey}
}

// Handler returns a gin-powered http.Handler that can be mounted in any
// server or mux.
func (rt *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	rt.Mount(g.Group(rt.basePath))
	return g
}

// Mount registers the routes on an existing gin group, for hosts that
// already run their own gin engine.
func (rt *Router) Mount(group *gin.RouterGroup) {
	auth := rt.requireKey
	group.GET("/shells", rt.handleList)
	group.POST("/shells", auth, rt.handleSpawn)
	group.GET("/shells/:id", rt.handleGet)
	group.POST("/shells/:id/action", auth, rt.handleAction)
	group.DELETE("/shells/:id", auth, rt.handleRemove)
	group.POST("/shells/:id/input", auth, rt.handleInput)
	group.POST("/shells/:id/resize", auth, rt.handleResize)
	group.GET("/shells/:id/stream", rt.handleStream)
	group.GET("/stats", rt.handleStats)
	group.GET("/run", rt.handleRun)
}

// NewServer starts a standalone HTTP server on addr serving this router.
func NewServer(addr, basePath, apiKey string, mgr *manager.Manager) (*http.Server, error) {
	rt := NewRouter(mgr, basePath, apiKey)
	server := &http.Server{
		Addr:              addr,
		Handler:           rt.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// requireKey enforces the shared-secret header on mutating routes.
func (rt *Router) requireKey(c *gin.Context) {
	if rt.apiKey != "" && c.GetHeader(AuthHeader) != rt.apiKey {
		c.AbortWithStatusJSON(http.StatusForbidden, errEnvelope("forbidden", "missing or wrong "+AuthHeader))
		return
	}
	c.Next()
}

type spawnRequest struct {
	Command   []string          `json:"command"`
	Cwd       string            `json:"cwd"`
	Env       map[string]string `json:"env"`
	Label     string            `json:"label"`
	Autostart bool              `json:"autostart"`
	PTY       bool              `json:"pty"`
	Cols      uint16            `json:"cols"`
	Rows      uint16            `json:"rows"`
}

type actionRequest struct {
	Action     string  `json:"action"`
	TimeoutSec float64 `json:"timeout_sec"`
}

type inputRequest struct {
	Data string `json:"data"`
}

type resizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

func (rt *Router) handleList(c *gin.Context) {
	records, err := rt.mgr.List(c.Query("label"))
	if err != nil {
		writeError(c, err)
		return
	}
	payloads := make([]manager.Payload, 0, len(records))
	for _, r := range records {
		payloads = append(payloads, rt.mgr.Describe(r, manager.DescribeOptions{}))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "shells": payloads})
}

func (rt *Router) handleSpawn(c *gin.Context) {
	var req spawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", shell.ErrInvalidArgument, err))
		return
	}
	opts := shell.SpawnOptions{
		Command:   req.Command,
		Cwd:       req.Cwd,
		Env:       req.Env,
		Label:     req.Label,
		Autostart: req.Autostart,
		Cols:      req.Cols,
		Rows:      req.Rows,
	}
	var r *shell.Record
	var err error
	if req.PTY {
		r, err = rt.mgr.SpawnInteractive(opts)
	} else {
		r, err = rt.mgr.Spawn(opts)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "shell": rt.mgr.Describe(r, manager.DescribeOptions{})})
}

func (rt *Router) handleGet(c *gin.Context) {
	r, ok, err := rt.mgr.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeError(c, fmt.Errorf("%w: shell %s", shell.ErrNotFound, c.Param("id")))
		return
	}
	opts := manager.DescribeOptions{IncludeLogs: c.Query("logs") == "true"}
	if n, err := parseIntQuery(c, "tail_lines"); err == nil {
		opts.TailLines = n
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "shell": rt.mgr.Describe(r, opts)})
}

func (rt *Router) handleAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", shell.ErrInvalidArgument, err))
		return
	}
	id := c.Param("id")
	timeout := time.Duration(req.TimeoutSec * float64(time.Second))

	var r *shell.Record
	var err error
	switch req.Action {
	case "stop":
		r, err = rt.mgr.Terminate(id, false, timeout)
	case "kill":
		r, err = rt.mgr.Terminate(id, true, timeout)
	case "restart":
		r, err = rt.mgr.Restart(id)
	default:
		writeError(c, fmt.Errorf("%w: unknown action %q", shell.ErrInvalidArgument, req.Action))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "shell": rt.mgr.Describe(r, manager.DescribeOptions{})})
}

func (rt *Router) handleRemove(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := rt.mgr.Remove(c.Param("id"), force); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (rt *Router) handleInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", shell.ErrInvalidArgument, err))
		return
	}
	if err := rt.mgr.Write(c.Param("id"), []byte(req.Data)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (rt *Router) handleResize(c *gin.Context) {
	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", shell.ErrInvalidArgument, err))
		return
	}
	if err := rt.mgr.Resize(c.Param("id"), req.Cols, req.Rows); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleStream serves live PTY output as server-sent events. Each chunk is
// one JSON-encoded string event so embedded newlines survive the framing.
// The stream ends when the client disconnects or the PTY shuts down.
func (rt *Router) handleStream(c *gin.Context) {
	id := c.Param("id")
	ch, err := rt.mgr.Subscribe(id)
	if err != nil {
		writeError(c, err)
		return
	}
	defer rt.mgr.Unsubscribe(id, ch)

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(string(chunk))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func (rt *Router) handleStats(c *gin.Context) {
	agg, err := rt.mgr.Stats()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "stats": agg})
}

func (rt *Router) handleRun(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "run_id": rt.mgr.RunID(), "base_dir": rt.mgr.BaseDir()})
}
