package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/hxctl/internal/device"
	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/modules"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/records"
	"github.com/danmuck/hxctl/internal/session"
	"github.com/danmuck/hxctl/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	yamlContentType = "application/yaml"
	maxDocumentSize = 1 << 20
)

// configView summarizes a decoded Config for JSON clients.
type configView struct {
	Session string         `json:"session,omitempty"`
	State   string         `json:"state"`
	Model   string         `json:"model,omitempty"`
	MMSI    string         `json:"mmsi,omitempty"`
	ATIS    string         `json:"atis,omitempty"`
	Tables  map[string]int `json:"tables"`
}

func newConfigView(snap session.Snapshot) configView {
	view := configView{
		Session: snap.ID,
		State:   snap.State.String(),
		Model:   snap.Model,
		Tables:  map[string]int{},
	}
	cfg := snap.Config
	if cfg == nil {
		return view
	}
	view.MMSI = cfg.MMSI
	view.ATIS = cfg.ATIS
	tables := map[string]int{
		"channels":        len(cfg.Channels),
		"waypoints":       len(cfg.Waypoints),
		"routes":          len(cfg.Routes),
		"individual_mmsi": len(cfg.IndividualDirectory),
		"group_mmsi":      len(cfg.GroupDirectory),
	}
	decoded := map[string]bool{
		"channels":        cfg.Channels != nil,
		"waypoints":       cfg.Waypoints != nil,
		"routes":          cfg.Routes != nil,
		"individual_mmsi": cfg.IndividualDirectory != nil,
		"group_mmsi":      cfg.GroupDirectory != nil,
	}
	for name, n := range tables {
		if decoded[name] {
			view.Tables[name] = n
		}
	}
	return view
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.opts.Name,
			"version": Version,
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/models", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"models": layout.Models()})
	})
	s.router.GET("/ports", s.handlePorts)
	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.manager.Status().Get())
	})
	s.router.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, newConfigView(s.manager.Session().Published().Get()))
	})
	s.router.POST("/read", s.handleRead)
	s.router.POST("/write", s.handleWrite)
	s.router.GET("/image", s.handleImage)
	s.router.POST("/disconnect", func(c *gin.Context) {
		s.manager.Disconnect()
		c.JSON(http.StatusOK, s.manager.Status().Get())
	})
}

func (s *Server) handlePorts(c *gin.Context) {
	ports, err := s.manager.Ports()
	if err != nil {
		s.fail(c, err)
		return
	}
	if ports == nil {
		ports = []transport.PortInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

func (s *Server) cycleContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.opts.CycleTimeout)
}

// handleRead runs a read cycle and returns the document. Module failures are
// reported in a header next to the partial document.
func (s *Server) handleRead(c *gin.Context) {
	ctx, cancel := s.cycleContext(c)
	defer cancel()
	doc, err := s.manager.Session().ReadAll(ctx)
	if doc == nil {
		s.fail(c, err)
		return
	}
	out, merr := document.Marshal(doc)
	if merr != nil {
		s.fail(c, merr)
		return
	}
	if err != nil {
		c.Header("X-Module-Errors", err.Error())
	}
	c.Data(http.StatusOK, yamlContentType, out)
}

func (s *Server) handleWrite(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDocumentSize+1))
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(body) > maxDocumentSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return
	}
	doc, err := document.Parse(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := s.cycleContext(c)
	defer cancel()
	diag, err := s.manager.Session().WriteAll(ctx, doc)
	if err != nil {
		s.fail(c, err)
		return
	}
	if diag == nil {
		diag = modules.Diagnostics{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tables": diag})
}

func (s *Server) handleImage(c *gin.Context) {
	img, err := s.manager.Image()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", img.Bytes())
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("server request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, records.ErrValidation),
		errors.Is(err, document.ErrNodeType),
		errors.Is(err, document.ErrNotMapping):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotBound),
		errors.Is(err, device.ErrNoImage),
		errors.Is(err, device.ErrConnecting):
		return http.StatusConflict
	case errors.Is(err, transport.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, transport.ErrDeviceNotReady),
		errors.Is(err, transport.ErrLinkClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, transport.ErrUnexpectedReply),
		errors.Is(err, transport.ErrOutOfRange):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
