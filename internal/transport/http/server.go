// Package http binds the shard manager's transport-agnostic command API to
// HTTP handlers with JSON bodies, plus the operational /healthz and
// /metrics endpoints.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/dreamware/shardmgr/internal/coordinator"
	"github.com/dreamware/shardmgr/internal/shardtypes"
)

// Server exposes a Manager over HTTP.
type Server struct {
	*gin.Engine
	mgr *coordinator.Manager
	log logrus.FieldLogger
}

// RunnerRequest is the JSON body shared by register, unregister, and
// heartbeat.
type RunnerRequest struct {
	Host    string `json:"host" binding:"required"`
	Port    int    `json:"port" binding:"required"`
	Version int64  `json:"version"`
}

// AssignmentEntry is one row of the assignments listing. Owner is omitted
// for unassigned shards.
type AssignmentEntry struct {
	Shard shardtypes.ShardID        `json:"shard"`
	Owner *shardtypes.RunnerAddress `json:"owner,omitempty"`
}

// NewServer builds the route table over mgr.
func NewServer(mgr *coordinator.Manager, log logrus.FieldLogger) *Server {
	s := &Server{
		Engine: gin.New(),
		mgr:    mgr,
		log:    log,
	}
	s.Use(gin.Recovery())

	s.POST("/register", s.handleRegister)
	s.POST("/unregister", s.handleUnregister)
	s.POST("/heartbeat", s.handleHeartbeat)
	s.GET("/assignments", s.handleAssignments)
	s.GET("/runners", s.handleRunners)
	s.GET("/notifications", s.handleNotifications)
	s.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "commit_version": mgr.CommitVersion()})
	})
	s.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// writeErr maps the coordinator's tagged error kinds onto status codes.
func (s *Server) writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, coordinator.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case coordinator.IsKind(err, coordinator.KindClientMisuse):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	var req RunnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr := shardtypes.RunnerAddress{Host: req.Host, Port: req.Port}
	if err := s.mgr.Register(addr, req.Version); err != nil {
		s.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

func (s *Server) handleUnregister(c *gin.Context) {
	var req RunnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr := shardtypes.RunnerAddress{Host: req.Host, Port: req.Port}
	if err := s.mgr.Unregister(addr); err != nil {
		s.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unregistered"})
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	var req RunnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr := shardtypes.RunnerAddress{Host: req.Host, Port: req.Port}
	if err := s.mgr.Heartbeat(addr); err != nil {
		s.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAssignments(c *gin.Context) {
	assignments := s.mgr.GetAssignments()

	ids := make([]shardtypes.ShardID, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	entries := make([]AssignmentEntry, 0, len(ids))
	for _, id := range ids {
		e := AssignmentEntry{Shard: id}
		if owner := assignments[id]; !owner.IsZero() {
			o := owner
			e.Owner = &o
		}
		entries = append(entries, e)
	}
	c.JSON(http.StatusOK, gin.H{
		"total_shards": len(entries),
		"assignments":  entries,
	})
}

func (s *Server) handleRunners(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runners": s.mgr.Runners()})
}

// handleNotifications serves the per-runner delta stream as
// newline-delimited JSON, one object per committed delta. The stream ends
// when the runner is unregistered (channel closed) or the client goes away.
func (s *Server) handleNotifications(c *gin.Context) {
	addr, err := queryAddr(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, ok := s.mgr.Notifications(addr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "runner not registered: " + addr.String()})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)
	enc := json.NewEncoder(c.Writer)

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case d, open := <-ch:
			if !open {
				return
			}
			if err := enc.Encode(d); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func queryAddr(c *gin.Context) (shardtypes.RunnerAddress, error) {
	host := c.Query("host")
	portStr := c.Query("port")
	if host == "" || portStr == "" {
		return shardtypes.RunnerAddress{}, errors.New("host and port query parameters required")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return shardtypes.RunnerAddress{}, errors.New("port must be an integer")
	}
	return shardtypes.RunnerAddress{Host: host, Port: port}, nil
}
