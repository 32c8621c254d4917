// Package server exposes a read-only HTTP status API for the sandbox:
// health vitals, trend projection, completed phases, crash-log tail and
// session records. Nothing here mutates state; operators act through
// the CLI.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbox/agentbox/internal/crash"
	"github.com/agentbox/agentbox/internal/health"
	"github.com/agentbox/agentbox/internal/marker"
	"github.com/agentbox/agentbox/internal/metrics"
	"github.com/agentbox/agentbox/internal/session"
)

// Router provides embeddable HTTP handlers for sandbox status.
// Endpoints:
//
//	GET {basePath}/health    full vitals report
//	GET {basePath}/trend     trend projection only
//	GET {basePath}/phases    completed phase markers
//	GET {basePath}/crashes   crash log tail, query: n=10
//	GET {basePath}/sessions  recorded sessions
//	GET {basePath}/metrics   prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	reporter *health.Reporter
	markers  *marker.Store
	crashes  *crash.Log
	sessions *session.Manager
	basePath string
}

// NewRouter constructs a Router with configurable basePath.
func NewRouter(reporter *health.Reporter, markers *marker.Store, crashes *crash.Log, sessions *session.Manager, basePath string) *Router {
	return &Router{
		reporter: reporter,
		markers:  markers,
		crashes:  crashes,
		sessions: sessions,
		basePath: sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/health", r.handleHealth)
	group.GET("/trend", r.handleTrend)
	group.GET("/phases", r.handlePhases)
	group.GET("/crashes", r.handleCrashes)
	group.GET("/sessions", r.handleSessions)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Call Close on the returned server to stop it.
func NewServer(addr string, r *Router) (*http.Server, error) {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleHealth(c *gin.Context) {
	v, err := r.reporter.Report()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (r *Router) handleTrend(c *gin.Context) {
	t, err := r.reporter.Trend()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (r *Router) handlePhases(c *gin.Context) {
	names, err := r.markers.List()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"completed": names})
}

func (r *Router) handleCrashes(c *gin.Context) {
	n := 10
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "n must be a positive integer"})
			return
		}
		n = parsed
	}
	blocks, err := r.crashes.Tail(n)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": blocks})
}

func (r *Router) handleSessions(c *gin.Context) {
	recs, err := r.sessions.List()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sessions": recs})
}
