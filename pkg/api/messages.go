package api

import "encoding/json"

type (
	// CreateSessionRequest contains parameters for registering a session
	CreateSessionRequest struct {
		Key     string          `json:"key,omitempty"`
		Tenant  string          `json:"tenant,omitempty"`
		Team    string          `json:"team,omitempty"`
		User    string          `json:"user,omitempty"`
		FlowID  string          `json:"flow_id,omitempty"`
		NodeID  string          `json:"node_id,omitempty"`
		Context json.RawMessage `json:"context,omitempty"`
	}

	// ResumeRequest selects the session to consume. Tenant and team fall
	// back to the process-wide defaults; user must be supplied
	ResumeRequest struct {
		Tenant  string          `json:"tenant,omitempty"`
		Team    string          `json:"team,omitempty"`
		User    string          `json:"user,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	// ResumeResponse returns the consumed session's resumption point along
	// with the event synthesized through the runner proxy
	ResumeResponse struct {
		Key     string          `json:"key"`
		Cursor  Cursor          `json:"cursor"`
		Context json.RawMessage `json:"context"`
		Event   *RunnerEvent    `json:"event"`
	}

	// SessionsListResponse contains the sessions matching a filter
	SessionsListResponse struct {
		Count    int        `json:"count"`
		Sessions []*Session `json:"sessions"`
	}

	// PurgeResponse reports how many records a purge or clear removed
	PurgeResponse struct {
		Removed int `json:"removed"`
	}

	// PacksListResponse contains the packs visible to a resolution scope,
	// plus which override keys matched and which were absent
	PacksListResponse struct {
		Count        int      `json:"count"`
		Packs        []*Pack  `json:"packs"`
		ResolvedKeys []string `json:"resolved_keys"`
		MissingKeys  []string `json:"missing_keys"`
	}

	// EmitRequest contains parameters for a synthetic runner event
	EmitRequest struct {
		Flow    string          `json:"flow"`
		Tenant  string          `json:"tenant,omitempty"`
		Team    string          `json:"team,omitempty"`
		User    string          `json:"user,omitempty"`
		Kind    EventKind       `json:"kind,omitempty"`
		TraceID string          `json:"trace_id,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	// EventsListResponse contains effect-log entries in append order
	EventsListResponse struct {
		Count  int            `json:"count"`
		Events []*RunnerEvent `json:"events"`
	}

	// HealthResponse is the liveness probe body
	HealthResponse struct {
		Status string `json:"status"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		ErrorKind string `json:"error_kind"`
		Message   string `json:"message"`
	}
)

// Error kinds surfaced in ErrorResponse
const (
	ErrorKindValidation         = "validation"
	ErrorKindNotFound           = "not_found"
	ErrorKindConflict           = "conflict"
	ErrorKindUnsupportedBackend = "unsupported_backend"
	ErrorKindInternal           = "internal"
)
