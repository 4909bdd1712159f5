// Package runner forwards emitted events to the flow runner and records
// the outcome in the effect log
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kode4food/stagehand/internal/store"
	"github.com/kode4food/stagehand/pkg/api"
	"github.com/kode4food/stagehand/pkg/log"
)

type (
	// Backend delivers an event to the flow runner and returns the runner's
	// result document
	Backend interface {
		Forward(context.Context, *api.RunnerEvent) (json.RawMessage, error)
	}

	// EchoBackend is the loopback runner: it acknowledges every event by
	// echoing its payload. It stands in until a real runner transport is
	// attached
	EchoBackend struct{}

	// Proxy is the single path by which events reach the effect log.
	// Appending and fan-out to subscribers happen per emission; a slow
	// subscriber never blocks the emitter
	Proxy struct {
		log     *store.EventLog
		backend Backend

		mu   sync.Mutex
		subs map[int]chan *api.RunnerEvent
		next int
	}

	echoResult struct {
		Flow   string          `json:"flow"`
		Echo   json.RawMessage `json:"echo"`
		Status string          `json:"status"`
	}
)

const subscriberBuffer = 16

// NewProxy creates a proxy over the given effect log and runner backend
func NewProxy(l *store.EventLog, b Backend) *Proxy {
	return &Proxy{
		log:     l,
		backend: b,
		subs:    map[int]chan *api.RunnerEvent{},
	}
}

// Emit forwards the event to the runner, then appends the recorded outcome
// to the effect log. Events without a trace ID are assigned one; events
// without a kind default to state writes. A duplicate trace ID surfaces as
// store.ErrDuplicateTraceID and nothing is recorded
func (p *Proxy) Emit(
	ctx context.Context, ev *api.RunnerEvent,
) (*api.RunnerEvent, error) {
	if ev.TraceID == "" {
		ev.TraceID = uuid.NewString()
	} else if p.log.SeenTrace(ev.TraceID) {
		// keep known duplicates away from the backend; Append's atomic
		// check remains the authoritative guard
		return nil, fmt.Errorf(
			"%w: %s", store.ErrDuplicateTraceID, ev.TraceID,
		)
	}
	if ev.Kind == "" {
		ev.Kind = api.KindStateWrite
	}

	result, err := p.backend.Forward(ctx, ev)
	if err != nil {
		return nil, err
	}
	ev.Result = result

	if err := p.log.Append(ctx, ev); err != nil {
		return nil, err
	}

	p.publish(ev)
	return ev, nil
}

// List returns the retained events matched by the scope filter
func (p *Proxy) List(s api.Scope) []*api.RunnerEvent {
	return p.log.List(s)
}

// Clear drops the retained events matched by the scope filter
func (p *Proxy) Clear(ctx context.Context, s api.Scope) (int, error) {
	return p.log.Clear(ctx, s)
}

// Subscribe registers a live feed of recorded events. The returned cancel
// function must be called when the subscriber goes away
func (p *Proxy) Subscribe() (<-chan *api.RunnerEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next
	p.next++
	ch := make(chan *api.RunnerEvent, subscriberBuffer)
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
}

func (p *Proxy) publish(ev *api.RunnerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Forward acknowledges the event without side effects
func (EchoBackend) Forward(
	_ context.Context, ev *api.RunnerEvent,
) (json.RawMessage, error) {
	slog.Info("Echoing runner event",
		log.Flow(ev.Flow), log.TraceID(ev.TraceID),
		slog.String("kind", string(ev.Kind)))

	res, err := json.Marshal(&echoResult{
		Flow:   ev.Flow,
		Echo:   ev.Payload,
		Status: "ok",
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
