package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kode4food/stagehand/pkg/api"
)

type (
	// SessionTable is the canonical registry of pending sessions, keyed by
	// session key. All mutation happens under the table lock and is written
	// through to the backing document before the lock is released
	SessionTable struct {
		sync.Mutex
		doc      Document
		sessions map[string]*api.Session
	}

	// EmitFunc produces the resumption event for a claimed session. It runs
	// while the table lock is held; the session is only consumed when the
	// emit succeeds
	EmitFunc func(*api.Session) (*api.RunnerEvent, error)
)

// NewSessionTable loads the session document from its backend and builds
// the in-memory table over it
func NewSessionTable(
	ctx context.Context, doc Document,
) (*SessionTable, error) {
	data, err := doc.Load(ctx)
	if err != nil {
		return nil, err
	}

	res := &SessionTable{
		doc:      doc,
		sessions: map[string]*api.Session{},
	}
	if len(data) == 0 {
		return res, nil
	}

	var sessions []*api.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("corrupt session document: %w", err)
	}
	for _, s := range sessions {
		res.sessions[s.Key] = s
	}
	return res, nil
}

// Create registers a new session. A key collision is a conflict, never an
// overwrite; the caller decides whether to retry with a fresh key
func (t *SessionTable) Create(
	ctx context.Context, s *api.Session,
) (*api.Session, error) {
	t.Lock()
	defer t.Unlock()

	if _, ok := t.sessions[s.Key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, s.Key)
	}

	s.UpdatedAt = time.Now().UnixMilli()
	t.sessions[s.Key] = s
	if err := t.persist(ctx); err != nil {
		delete(t.sessions, s.Key)
		return nil, err
	}
	return s, nil
}

// List returns the sessions matched by the scope filter, sorted by key
func (t *SessionTable) List(s api.Scope) []*api.Session {
	t.Lock()
	defer t.Unlock()

	res := make([]*api.Session, 0, len(t.sessions))
	for _, sess := range t.sessions {
		if s.MatchesSession(sess) {
			res = append(res, sess)
		}
	}
	sort.Slice(res, func(l, r int) bool {
		return res[l].Key < res[r].Key
	})
	return res
}

// Len returns the number of registered sessions
func (t *SessionTable) Len() int {
	t.Lock()
	defer t.Unlock()
	return len(t.sessions)
}

// Resume claims the most recently updated session matching the filter,
// removes it from the table, and invokes emit for it. Claim, removal, and
// emit happen under one lock acquisition, so a session can resume at most
// once no matter how many callers race. The emit runs after the removal
// has persisted: a failed persist never reaches the effect log, and a
// failed emit restores the session
func (t *SessionTable) Resume(
	ctx context.Context, s api.Scope, emit EmitFunc,
) (*api.Session, *api.RunnerEvent, error) {
	t.Lock()
	defer t.Unlock()

	var match *api.Session
	for _, sess := range t.sessions {
		if !s.MatchesSession(sess) {
			continue
		}
		if match == nil || newerSession(sess, match) {
			match = sess
		}
	}
	if match == nil {
		return nil, nil, fmt.Errorf("%w: session for %s", ErrNotFound, s.Key())
	}

	delete(t.sessions, match.Key)
	if err := t.persist(ctx); err != nil {
		t.sessions[match.Key] = match
		return nil, nil, err
	}

	ev, err := emit(match)
	if err != nil {
		t.sessions[match.Key] = match
		if perr := t.persist(ctx); perr != nil {
			return nil, nil, errors.Join(err, perr)
		}
		return nil, nil, err
	}
	return match, ev, nil
}

// Purge removes every session matched by the scope filter and reports how
// many were removed
func (t *SessionTable) Purge(ctx context.Context, s api.Scope) (int, error) {
	t.Lock()
	defer t.Unlock()

	removed := map[string]*api.Session{}
	for key, sess := range t.sessions {
		if s.MatchesSession(sess) {
			removed[key] = sess
			delete(t.sessions, key)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := t.persist(ctx); err != nil {
		for key, sess := range removed {
			t.sessions[key] = sess
		}
		return 0, err
	}
	return len(removed), nil
}

func (t *SessionTable) persist(ctx context.Context) error {
	sessions := make([]*api.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(l, r int) bool {
		return sessions[l].Key < sessions[r].Key
	})

	data, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return t.doc.Save(ctx, data)
}

// newerSession orders by update time, breaking ties on key so resumption
// is deterministic
func newerSession(l, r *api.Session) bool {
	if l.UpdatedAt != r.UpdatedAt {
		return l.UpdatedAt > r.UpdatedAt
	}
	return l.Key > r.Key
}
