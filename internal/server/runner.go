package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/stagehand/pkg/api"
)

func (s *Server) emitEvent(c *gin.Context) {
	var req api.EmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
		return
	}

	flow := strings.TrimSpace(req.Flow)
	if flow == "" {
		writeError(c, ErrFlowRequired)
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(c, ErrUserRequired)
		return
	}

	scope := s.cfg.SeedScope(api.Scope{
		Tenant: strings.TrimSpace(req.Tenant),
		Team:   strings.TrimSpace(req.Team),
		User:   user,
	})

	ev, err := s.runner.Emit(c.Request.Context(), &api.RunnerEvent{
		TraceID: strings.TrimSpace(req.TraceID),
		Flow:    flow,
		Kind:    req.Kind,
		Tenant:  scope.Tenant,
		Team:    scope.Team,
		User:    scope.User,
		Payload: req.Payload,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ev)
}

func (s *Server) listEvents(c *gin.Context) {
	listed := s.runner.List(scopeFromQuery(c))
	c.JSON(http.StatusOK, api.EventsListResponse{
		Count:  len(listed),
		Events: listed,
	})
}

func (s *Server) clearEvents(c *gin.Context) {
	removed, err := s.runner.Clear(c.Request.Context(), scopeFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.PurgeResponse{
		Removed: removed,
	})
}
