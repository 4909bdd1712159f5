package store_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/kode4food/stagehand/internal/config"
	"github.com/kode4food/stagehand/internal/store"
	"github.com/kode4food/stagehand/pkg/api"
)

func memoryTable(t *testing.T) *store.SessionTable {
	t.Helper()
	doc, err := store.NewDocument(&config.StoreConfig{
		Backend: config.BackendMemory,
	}, "sessions")
	require.NoError(t, err)

	table, err := store.NewSessionTable(context.Background(), doc)
	require.NoError(t, err)
	return table
}

func newSession(key, tenant, team, user string) *api.Session {
	return &api.Session{
		Key:    key,
		Tenant: tenant,
		Team:   team,
		User:   user,
		Cursor: api.Cursor{FlowID: "checkout", NodeID: "n1"},
	}
}

func echoEmit(s *api.Session) (*api.RunnerEvent, error) {
	return &api.RunnerEvent{
		TraceID: "trace-" + s.Key,
		Flow:    s.Cursor.FlowID,
	}, nil
}

func TestCreateAndList(t *testing.T) {
	table := memoryTable(t)
	ctx := context.Background()

	_, err := table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	require.NoError(t, err)
	_, err = table.Create(ctx, newSession("k2", "globex", "", "iris"))
	require.NoError(t, err)

	all := table.List(api.Scope{})
	require.Len(t, all, 2)
	assert.Equal(t, "k1", all[0].Key)
	assert.NotZero(t, all[0].UpdatedAt)

	scoped := table.List(api.Scope{Tenant: "acme"})
	require.Len(t, scoped, 1)
	assert.Equal(t, "k1", scoped[0].Key)
}

func TestCreateDuplicateKey(t *testing.T) {
	table := memoryTable(t)
	ctx := context.Background()

	_, err := table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	require.NoError(t, err)

	_, err = table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	assert.ErrorIs(t, err, store.ErrSessionExists)
	assert.Equal(t, 1, table.Len())
}

func TestResumeConsumesSession(t *testing.T) {
	table := memoryTable(t)
	ctx := context.Background()

	_, err := table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	require.NoError(t, err)

	sess, ev, err := table.Resume(
		ctx, api.Scope{Tenant: "acme", User: "rhea"}, echoEmit,
	)
	require.NoError(t, err)
	assert.Equal(t, "k1", sess.Key)
	assert.Equal(t, "checkout", ev.Flow)

	_, _, err = table.Resume(
		ctx, api.Scope{Tenant: "acme", User: "rhea"}, echoEmit,
	)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResumePrefersNewest(t *testing.T) {
	table := memoryTable(t)
	ctx := context.Background()

	older := newSession("k1", "acme", "qa", "rhea")
	_, err := table.Create(ctx, older)
	require.NoError(t, err)

	newer := newSession("k2", "acme", "qa", "rhea")
	_, err = table.Create(ctx, newer)
	require.NoError(t, err)
	newer.UpdatedAt = older.UpdatedAt + 1

	sess, _, err := table.Resume(
		ctx, api.Scope{Tenant: "acme", User: "rhea"}, echoEmit,
	)
	require.NoError(t, err)
	assert.Equal(t, "k2", sess.Key)
}

// brokenDocument accepts a fixed number of saves, then fails every one
// after that
type brokenDocument struct {
	saves int
}

func (d *brokenDocument) Load(context.Context) ([]byte, error) {
	return nil, nil
}

func (d *brokenDocument) Save(context.Context, []byte) error {
	if d.saves == 0 {
		return assert.AnError
	}
	d.saves--
	return nil
}

func (d *brokenDocument) Close() error { return nil }

func TestResumePersistFailureSkipsEmit(t *testing.T) {
	ctx := context.Background()
	table, err := store.NewSessionTable(ctx, &brokenDocument{saves: 1})
	require.NoError(t, err)

	_, err = table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	require.NoError(t, err)

	emitted := false
	_, _, err = table.Resume(
		ctx, api.Scope{User: "rhea"},
		func(s *api.Session) (*api.RunnerEvent, error) {
			emitted = true
			return echoEmit(s)
		},
	)
	assert.ErrorIs(t, err, assert.AnError)

	// nothing reached the effect log and the session is still resumable
	assert.False(t, emitted)
	assert.Equal(t, 1, table.Len())
}

func TestResumeEmitFailureKeepsSession(t *testing.T) {
	table := memoryTable(t)
	ctx := context.Background()

	_, err := table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	require.NoError(t, err)

	_, _, err = table.Resume(
		ctx, api.Scope{User: "rhea"},
		func(*api.Session) (*api.RunnerEvent, error) {
			return nil, assert.AnError
		},
	)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, table.Len())
}

func TestResumeSingleUse(t *testing.T) {
	table := memoryTable(t)
	ctx := context.Background()

	_, err := table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	require.NoError(t, err)

	const racers = 16
	var wins, misses int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := table.Resume(
				ctx, api.Scope{User: "rhea"}, echoEmit,
			)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				misses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, misses)
}

func TestResumeTenantIsolation(t *testing.T) {
	table := memoryTable(t)
	ctx := context.Background()

	_, err := table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	require.NoError(t, err)

	_, _, err = table.Resume(
		ctx, api.Scope{Tenant: "globex", User: "rhea"}, echoEmit,
	)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, table.Len())
}

func TestPurgeScoped(t *testing.T) {
	table := memoryTable(t)
	ctx := context.Background()

	_, err := table.Create(ctx, newSession("k1", "acme", "qa", "rhea"))
	require.NoError(t, err)
	_, err = table.Create(ctx, newSession("k2", "acme", "ops", "iris"))
	require.NoError(t, err)
	_, err = table.Create(ctx, newSession("k3", "globex", "", "dana"))
	require.NoError(t, err)

	removed, err := table.Purge(ctx, api.Scope{Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, table.Len())

	removed, err = table.Purge(ctx, api.Scope{Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSessionsPersistAcrossTables(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer func() { _ = bucket.Close() }()

	doc := store.NewBlobDocument(bucket, "sessions.json")
	ctx := context.Background()

	table, err := store.NewSessionTable(ctx, doc)
	require.NoError(t, err)

	sess := newSession("k1", "acme", "qa", "rhea")
	sess.Context = json.RawMessage(`{"step": 3}`)
	_, err = table.Create(ctx, sess)
	require.NoError(t, err)

	reloaded, err := store.NewSessionTable(ctx, doc)
	require.NoError(t, err)

	listed := reloaded.List(api.Scope{})
	require.Len(t, listed, 1)
	assert.Equal(t, "k1", listed[0].Key)
	assert.Equal(t, "checkout", listed[0].Cursor.FlowID)
	assert.JSONEq(t, `{"step": 3}`, string(listed[0].Context))
}
