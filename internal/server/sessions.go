package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kode4food/stagehand/pkg/api"
	"github.com/kode4food/stagehand/pkg/log"
)

func (s *Server) createSession(c *gin.Context) {
	var req api.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
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
	if scope.Tenant == "" {
		writeError(c, ErrTenantRequired)
		return
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		key = uuid.NewString()
	}

	sess, err := s.sessions.Create(c.Request.Context(), &api.Session{
		Key:    key,
		Tenant: scope.Tenant,
		Team:   scope.Team,
		User:   scope.User,
		Cursor: api.Cursor{
			FlowID: strings.TrimSpace(req.FlowID),
			NodeID: strings.TrimSpace(req.NodeID),
		},
		Context: req.Context,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Session created",
		log.SessionKey(sess.Key), log.Tenant(sess.Tenant))
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) listSessions(c *gin.Context) {
	listed := s.sessions.List(scopeFromQuery(c))
	c.JSON(http.StatusOK, api.SessionsListResponse{
		Count:    len(listed),
		Sessions: listed,
	})
}

// purgeSessions removes the sessions matching the filter. The filter comes
// from query parameters; a JSON body, when present, takes precedence
func (s *Server) purgeSessions(c *gin.Context) {
	scope := scopeFromQuery(c)
	if c.Request.ContentLength > 0 {
		var req api.Scope
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
			return
		}
		scope = api.Scope{
			Tenant: strings.TrimSpace(req.Tenant),
			Team:   strings.TrimSpace(req.Team),
			User:   strings.TrimSpace(req.User),
		}
	}

	removed, err := s.sessions.Purge(c.Request.Context(), scope)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.PurgeResponse{
		Removed: removed,
	})
}

// resumeSession consumes the best matching session and synthesizes its
// resumption event through the runner proxy. The session is gone once this
// responds; a repeat of the same request is a miss
func (s *Server) resumeSession(c *gin.Context) {
	var req api.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
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

	sess, ev, err := s.sessions.Resume(
		c.Request.Context(), scope,
		func(sess *api.Session) (*api.RunnerEvent, error) {
			return s.runner.Emit(c.Request.Context(), &api.RunnerEvent{
				Flow:    sess.Cursor.FlowID,
				Kind:    api.KindStateWrite,
				Tenant:  sess.Tenant,
				Team:    sess.Team,
				User:    sess.User,
				Payload: req.Payload,
			})
		},
	)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Session resumed",
		log.SessionKey(sess.Key), log.Tenant(sess.Tenant),
		log.TraceID(ev.TraceID))
	c.JSON(http.StatusOK, api.ResumeResponse{
		Key:     sess.Key,
		Cursor:  sess.Cursor,
		Context: sess.Context,
		Event:   ev,
	})
}
