package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/stagehand/internal/config"
	"github.com/kode4food/stagehand/internal/store"
	"github.com/kode4food/stagehand/pkg/api"
)

func memoryLog(t *testing.T, limit int) *store.EventLog {
	t.Helper()
	doc, err := store.NewDocument(&config.StoreConfig{
		Backend: config.BackendMemory,
	}, "events")
	require.NoError(t, err)

	l, err := store.NewEventLog(context.Background(), doc, limit)
	require.NoError(t, err)
	return l
}

func newEvent(trace, flow, tenant, user string) *api.RunnerEvent {
	return &api.RunnerEvent{
		TraceID: trace,
		Flow:    flow,
		Kind:    api.KindStateWrite,
		Tenant:  tenant,
		User:    user,
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	l := memoryLog(t, 100)
	ctx := context.Background()

	first := newEvent("t1", "checkout", "acme", "rhea")
	require.NoError(t, l.Append(ctx, first))

	second := newEvent("t2", "checkout", "acme", "rhea")
	require.NoError(t, l.Append(ctx, second))

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
	assert.NotZero(t, first.CreatedAt)
}

func TestAppendDuplicateTrace(t *testing.T) {
	l := memoryLog(t, 100)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, newEvent("t1", "a", "acme", "rhea")))

	err := l.Append(ctx, newEvent("t1", "b", "acme", "rhea"))
	assert.ErrorIs(t, err, store.ErrDuplicateTraceID)
	assert.Equal(t, 1, l.Len())
}

func TestAppendDuplicateRace(t *testing.T) {
	l := memoryLog(t, 100)
	ctx := context.Background()

	const racers = 16
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Append(ctx, newEvent("t1", "a", "acme", "rhea"))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, l.Len())
}

func TestClearKeepsTraceSet(t *testing.T) {
	l := memoryLog(t, 100)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, newEvent("t1", "a", "acme", "rhea")))

	removed, err := l.Clear(ctx, api.Scope{})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, l.Len())

	// consumed trace IDs stay consumed after a clear
	err = l.Append(ctx, newEvent("t1", "a", "acme", "rhea"))
	assert.ErrorIs(t, err, store.ErrDuplicateTraceID)
}

func TestClearScoped(t *testing.T) {
	l := memoryLog(t, 100)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, newEvent("t1", "a", "acme", "rhea")))
	require.NoError(t, l.Append(ctx, newEvent("t2", "a", "globex", "iris")))

	removed, err := l.Clear(ctx, api.Scope{Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	left := l.List(api.Scope{})
	require.Len(t, left, 1)
	assert.Equal(t, "t2", left[0].TraceID)
}

func TestListScoped(t *testing.T) {
	l := memoryLog(t, 100)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, newEvent("t1", "a", "acme", "rhea")))
	require.NoError(t, l.Append(ctx, newEvent("t2", "b", "acme", "iris")))
	require.NoError(t, l.Append(ctx, newEvent("t3", "c", "globex", "dana")))

	listed := l.List(api.Scope{Tenant: "acme"})
	require.Len(t, listed, 2)
	assert.Equal(t, "t1", listed[0].TraceID)
	assert.Equal(t, "t2", listed[1].TraceID)
}

func TestRetentionLimit(t *testing.T) {
	l := memoryLog(t, 3)
	ctx := context.Background()

	for i := range 5 {
		trace := fmt.Sprintf("t%d", i)
		require.NoError(t, l.Append(ctx, newEvent(trace, "a", "acme", "u")))
	}

	listed := l.List(api.Scope{})
	require.Len(t, listed, 3)
	assert.Equal(t, "t2", listed[0].TraceID)
	assert.Equal(t, int64(5), listed[2].Sequence)

	// trimmed traces remain consumed
	err := l.Append(ctx, newEvent("t0", "a", "acme", "u"))
	assert.ErrorIs(t, err, store.ErrDuplicateTraceID)
}

func TestEventsPersistToRedis(t *testing.T) {
	redis, err := miniredis.Run()
	require.NoError(t, err)
	defer redis.Close()

	cfg := &config.StoreConfig{
		Backend:     config.BackendRedis,
		RedisAddr:   redis.Addr(),
		RedisPrefix: "stagehand",
	}

	doc, err := store.NewDocument(cfg, "events")
	require.NoError(t, err)
	defer func() { _ = doc.Close() }()

	ctx := context.Background()
	l, err := store.NewEventLog(ctx, doc, 100)
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, newEvent("t1", "a", "acme", "rhea")))

	other, err := store.NewDocument(cfg, "events")
	require.NoError(t, err)
	defer func() { _ = other.Close() }()

	reloaded, err := store.NewEventLog(ctx, other, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())

	// sequence numbering continues where the reloaded log left off
	next := newEvent("t2", "a", "acme", "rhea")
	require.NoError(t, reloaded.Append(ctx, next))
	assert.Equal(t, int64(2), next.Sequence)

	err = reloaded.Append(ctx, newEvent("t1", "a", "acme", "rhea"))
	assert.ErrorIs(t, err, store.ErrDuplicateTraceID)
}

func TestUnsupportedBackend(t *testing.T) {
	_, err := store.NewDocument(&config.StoreConfig{
		Backend: config.Backend("dynamo"),
	}, "events")
	assert.ErrorIs(t, err, config.ErrUnsupportedBackend)
}
