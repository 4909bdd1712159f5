package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/stagehand/pkg/api"
)

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "", api.Scope{}.Key())
	assert.Equal(t, "acme", api.Scope{Tenant: "acme"}.Key())
	assert.Equal(t, "acme:qa",
		api.Scope{Tenant: "acme", Team: "qa"}.Key())
	assert.Equal(t, "acme:qa:rhea",
		api.Scope{Tenant: "acme", Team: "qa", User: "rhea"}.Key())
}

func TestScopeIsZero(t *testing.T) {
	assert.True(t, api.Scope{}.IsZero())
	assert.False(t, api.Scope{Tenant: "acme"}.IsZero())
	assert.False(t, api.Scope{User: "rhea"}.IsZero())
}

func TestScopeMatchesExact(t *testing.T) {
	s := api.Scope{Tenant: "acme", Team: "qa", User: "rhea"}

	assert.True(t, s.Matches("acme", "qa", "rhea"))
	assert.False(t, s.Matches("acme", "qa", "iris"))
	assert.False(t, s.Matches("globex", "qa", "rhea"))
}

func TestScopeMatchesWildcard(t *testing.T) {
	s := api.Scope{Tenant: "acme"}

	assert.True(t, s.Matches("acme", "qa", "rhea"))
	assert.True(t, s.Matches("acme", "", ""))
	assert.False(t, s.Matches("globex", "qa", "rhea"))

	assert.True(t, api.Scope{}.Matches("anything", "at", "all"))
}

func TestScopeMatchesSession(t *testing.T) {
	sess := &api.Session{
		Key:    "k1",
		Tenant: "acme",
		Team:   "qa",
		User:   "rhea",
	}

	assert.True(t, api.Scope{Tenant: "acme"}.MatchesSession(sess))
	assert.True(t, api.Scope{User: "rhea"}.MatchesSession(sess))
	assert.False(t, api.Scope{Tenant: "globex"}.MatchesSession(sess))
	assert.False(t,
		api.Scope{Tenant: "acme", Team: "ops"}.MatchesSession(sess))
}

func TestScopeMatchesEvent(t *testing.T) {
	ev := &api.RunnerEvent{
		TraceID: "t1",
		Flow:    "checkout",
		Tenant:  "acme",
		User:    "rhea",
	}

	assert.True(t, api.Scope{Tenant: "acme"}.MatchesEvent(ev))
	assert.True(t, api.Scope{}.MatchesEvent(ev))

	// an event with no team is invisible to team-scoped filters
	assert.False(t, api.Scope{Tenant: "acme", Team: "qa"}.MatchesEvent(ev))
}
