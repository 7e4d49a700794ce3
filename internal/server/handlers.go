package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	errs "sharetok/pkg/errors"
	"sharetok/pkg/pipeline"
	"sharetok/pkg/store"
	"sharetok/pkg/tiktok"
)

// Pipeline is what the handlers need from the lookup service
type Pipeline interface {
	Lookup(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Latest(ctx context.Context) (*store.Item, error)
}

func (s *Server) byURL(c *gin.Context) {
	target := contentURL(c)
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing content url"})
		return
	}
	s.lookup(c, pipeline.Request{URL: target, Mode: tiktok.ModeDetail})
}

func (s *Server) related(c *gin.Context) {
	target := contentURL(c)
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing content url"})
		return
	}
	s.lookup(c, pipeline.Request{URL: target, Mode: tiktok.ModeRelated})
}

func (s *Server) byID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	s.lookup(c, pipeline.Request{ItemID: uint(id)})
}

func (s *Server) latest(c *gin.Context) {
	item, err := s.pipeline.Latest(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pipeline.NewItemView(item))
}

func (s *Server) lookup(c *gin.Context, req pipeline.Request) {
	req.SessionToken = strings.TrimSpace(c.GetHeader(s.cfg.SessionHeader))

	res, err := s.pipeline.Lookup(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.SessionToken != "" {
		c.Header(s.cfg.SessionHeader, res.SessionToken)
	}
	c.JSON(http.StatusOK, res.View())
}

// fail maps a pipeline error to a status without leaking its detail
func (s *Server) fail(c *gin.Context, err error) {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeNotFound, errs.ErrorTypeNoUnseenItem:
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "content unavailable"})
	}
}

// contentURL reads the catch-all parameter, which gin hands over with its leading slash
func contentURL(c *gin.Context) string {
	return strings.TrimSpace(strings.TrimPrefix(c.Param("url"), "/"))
}
