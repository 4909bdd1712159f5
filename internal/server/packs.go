package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/stagehand/pkg/api"
)

func (s *Server) listPacks(c *gin.Context) {
	s.respondPacks(c)
}

// reloadPacks rescans the packs root and answers with the post-reload
// listing. Requests racing the reload see either the old snapshot or the
// new one, never a mix
func (s *Server) reloadPacks(c *gin.Context) {
	if err := s.packs.Reload(); err != nil {
		writeError(c, err)
		return
	}
	s.respondPacks(c)
}

func (s *Server) respondPacks(c *gin.Context) {
	scope := s.cfg.SeedScope(scopeFromQuery(c))

	listed, res, err := s.packs.List(scope)
	if err != nil {
		writeError(c, err)
		return
	}

	resolved := []string{}
	if res.MatchedKey != "" {
		resolved = append(resolved, res.MatchedKey)
	}

	c.JSON(http.StatusOK, api.PacksListResponse{
		Count:        len(listed),
		Packs:        listed,
		ResolvedKeys: resolved,
		MissingKeys:  res.MissingKeys,
	})
}

// scopeFromQuery reads the tenant, team, and user query parameters.
// Whitespace-only values are treated as absent
func scopeFromQuery(c *gin.Context) api.Scope {
	return api.Scope{
		Tenant: strings.TrimSpace(c.Query("tenant")),
		Team:   strings.TrimSpace(c.Query("team")),
		User:   strings.TrimSpace(c.Query("user")),
	}
}
