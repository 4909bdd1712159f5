package api

import "encoding/json"

type (
	// Scope is the (tenant, team, user) triple that selects configuration,
	// session, and event visibility. A zero-valued field acts as a wildcard
	// when the scope is used as a filter
	Scope struct {
		Tenant string `json:"tenant,omitempty"`
		Team   string `json:"team,omitempty"`
		User   string `json:"user,omitempty"`
	}

	// Cursor marks where a session's execution is paused
	Cursor struct {
		FlowID string `json:"flow_id,omitempty"`
		NodeID string `json:"node_id,omitempty"`
	}

	// Session is a resumable execution checkpoint. Sessions are created
	// whole and removed whole; they are never partially updated
	Session struct {
		Key       string          `json:"key"`
		Tenant    string          `json:"tenant"`
		Team      string          `json:"team,omitempty"`
		User      string          `json:"user,omitempty"`
		Cursor    Cursor          `json:"cursor"`
		Context   json.RawMessage `json:"context"`
		UpdatedAt int64           `json:"updated_at_epoch_ms"`
	}

	// EventKind classifies a runner event for the effect-log contract
	EventKind string

	// RunnerEvent is one entry in the effect log. Sequence is assigned at
	// append time and increases monotonically across the whole log
	RunnerEvent struct {
		TraceID   string          `json:"trace_id"`
		Flow      string          `json:"flow"`
		Kind      EventKind       `json:"kind"`
		Tenant    string          `json:"tenant,omitempty"`
		Team      string          `json:"team,omitempty"`
		User      string          `json:"user,omitempty"`
		Payload   json.RawMessage `json:"payload"`
		Result    json.RawMessage `json:"result"`
		Sequence  int64           `json:"sequence"`
		CreatedAt int64           `json:"created_at_epoch_ms"`
	}

	// Pack is a named bundle of scenario fixtures discovered under the
	// packs root. Entries are immutable once indexed
	Pack struct {
		ID        string   `json:"id"`
		Name      string   `json:"name,omitempty"`
		Kind      string   `json:"kind,omitempty"`
		Path      string   `json:"path"`
		Scenarios []string `json:"scenarios,omitempty"`
	}
)

// KindStateWrite marks an event whose trace ID must be unique across the
// entire effect log
const KindStateWrite = EventKind("state_write")

// Key returns the scope's override-table key (tenant:team:user with empty
// trailing parts omitted)
func (s Scope) Key() string {
	res := s.Tenant
	if s.Team != "" {
		res += ":" + s.Team
		if s.User != "" {
			res += ":" + s.User
		}
	}
	return res
}

// IsZero reports whether no scope field is set
func (s Scope) IsZero() bool {
	return s.Tenant == "" && s.Team == "" && s.User == ""
}

// Matches reports whether the supplied fields satisfy this scope used as a
// filter. Set fields require exact equality; unset fields are wildcards
func (s Scope) Matches(tenant, team, user string) bool {
	if s.Tenant != "" && s.Tenant != tenant {
		return false
	}
	if s.Team != "" && s.Team != team {
		return false
	}
	if s.User != "" && s.User != user {
		return false
	}
	return true
}

// MatchesSession applies the filter to a session record
func (s Scope) MatchesSession(sess *Session) bool {
	return s.Matches(sess.Tenant, sess.Team, sess.User)
}

// MatchesEvent applies the filter to an effect-log entry
func (s Scope) MatchesEvent(ev *RunnerEvent) bool {
	return s.Matches(ev.Tenant, ev.Team, ev.User)
}
