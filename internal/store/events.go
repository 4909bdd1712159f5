package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kode4food/stagehand/pkg/api"
)

// EventLog is the append-only runner effect log. Trace IDs are unique for
// the lifetime of the process: duplicates are rejected even after the
// event that carried them has been trimmed or cleared, which is what makes
// retried emissions idempotent
type EventLog struct {
	sync.Mutex
	doc     Document
	events  []*api.RunnerEvent
	traces  map[string]struct{}
	nextSeq int64
	limit   int
}

// NewEventLog loads the event document from its backend and rebuilds the
// trace set and sequence counter from it
func NewEventLog(
	ctx context.Context, doc Document, limit int,
) (*EventLog, error) {
	data, err := doc.Load(ctx)
	if err != nil {
		return nil, err
	}

	res := &EventLog{
		doc:     doc,
		traces:  map[string]struct{}{},
		nextSeq: 1,
		limit:   limit,
	}
	if len(data) == 0 {
		return res, nil
	}

	if err := json.Unmarshal(data, &res.events); err != nil {
		return nil, fmt.Errorf("corrupt event document: %w", err)
	}
	for _, ev := range res.events {
		res.traces[ev.TraceID] = struct{}{}
		if ev.Sequence >= res.nextSeq {
			res.nextSeq = ev.Sequence + 1
		}
	}
	return res, nil
}

// Append records an event, assigning its sequence number and timestamp.
// The duplicate check and the append are one critical section, so two
// emissions carrying the same trace ID can never both land
func (l *EventLog) Append(ctx context.Context, ev *api.RunnerEvent) error {
	l.Lock()
	defer l.Unlock()

	if _, ok := l.traces[ev.TraceID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTraceID, ev.TraceID)
	}

	ev.Sequence = l.nextSeq
	ev.CreatedAt = time.Now().UnixMilli()

	old := l.events
	l.events = append(l.events, ev)
	if l.limit > 0 && len(l.events) > l.limit {
		l.events = l.events[len(l.events)-l.limit:]
	}

	if err := l.persist(ctx); err != nil {
		l.events = old
		return err
	}

	l.traces[ev.TraceID] = struct{}{}
	l.nextSeq++
	return nil
}

// SeenTrace reports whether a trace ID has already been recorded. Callers
// that act on the answer outside the log's lock must still treat Append's
// own check as authoritative
func (l *EventLog) SeenTrace(id string) bool {
	l.Lock()
	defer l.Unlock()
	_, ok := l.traces[id]
	return ok
}

// List returns the retained events matched by the scope filter, oldest
// first
func (l *EventLog) List(s api.Scope) []*api.RunnerEvent {
	l.Lock()
	defer l.Unlock()

	res := make([]*api.RunnerEvent, 0, len(l.events))
	for _, ev := range l.events {
		if s.MatchesEvent(ev) {
			res = append(res, ev)
		}
	}
	return res
}

// Len returns the number of retained events
func (l *EventLog) Len() int {
	l.Lock()
	defer l.Unlock()
	return len(l.events)
}

// Clear drops every retained event matched by the scope filter. The trace
// set is untouched: clearing the log does not reopen consumed trace IDs
func (l *EventLog) Clear(ctx context.Context, s api.Scope) (int, error) {
	l.Lock()
	defer l.Unlock()

	kept := make([]*api.RunnerEvent, 0, len(l.events))
	for _, ev := range l.events {
		if !s.MatchesEvent(ev) {
			kept = append(kept, ev)
		}
	}
	removed := len(l.events) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	old := l.events
	l.events = kept
	if err := l.persist(ctx); err != nil {
		l.events = old
		return 0, err
	}
	return removed, nil
}

func (l *EventLog) persist(ctx context.Context) error {
	data, err := json.Marshal(l.events)
	if err != nil {
		return err
	}
	return l.doc.Save(ctx, data)
}
