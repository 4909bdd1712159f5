// Package packs maintains an in-memory index of the packs discoverable
// under the configured root. Rebuilds happen off the read path: a fresh
// snapshot is constructed in full, then swapped in under a brief lock
package packs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/kode4food/stagehand/internal/resolve"
	"github.com/kode4food/stagehand/pkg/api"
	"github.com/kode4food/stagehand/pkg/log"
)

type (
	// Index exposes the current pack snapshot. Readers never observe a
	// partially built index; the previous snapshot stays visible until a
	// rebuild completes
	Index struct {
		root      string
		overrides resolve.Table
		mu        sync.RWMutex
		snap      *snapshot
	}

	snapshot struct {
		byID   map[string]*api.Pack
		sorted []*api.Pack
	}
)

const manifestName = "pack.json"

// ErrPackNotFound is returned when no indexed pack carries the requested ID
var ErrPackNotFound = errors.New("pack not found")

// New creates an index rooted at the given directory. The override table is
// consulted on scoped listing and is fixed for the index's lifetime
func New(root string, overrides resolve.Table) *Index {
	return &Index{
		root:      root,
		overrides: overrides,
		snap:      &snapshot{byID: map[string]*api.Pack{}},
	}
}

// Reload scans the packs root and atomically replaces the current snapshot.
// The scan runs entirely off-lock; a failed scan leaves the old snapshot in
// place
func (i *Index) Reload() error {
	snap, err := i.scan()
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.snap = snap
	i.mu.Unlock()
	return nil
}

// Get returns the pack with the given ID from the current snapshot
func (i *Index) Get(id string) (*api.Pack, error) {
	snap := i.snapshot()
	if p, ok := snap.byID[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPackNotFound, id)
}

// Len returns the number of packs in the current snapshot
func (i *Index) Len() int {
	return len(i.snapshot().sorted)
}

// List returns the packs visible to the given scope in stable id order. An
// empty scope, or a scope whose entire override chain is absent, surfaces
// every indexed pack
func (i *Index) List(s api.Scope) ([]*api.Pack, *resolve.Resolution, error) {
	snap := i.snapshot()
	if s.IsZero() {
		return snap.sorted, &resolve.Resolution{
			MissingKeys: []string{},
		}, nil
	}

	o, res, err := i.overrides.Resolve(s)
	if err != nil {
		return nil, nil, err
	}
	if o == nil {
		return snap.sorted, res, nil
	}

	matched := make([]*api.Pack, 0, len(o.Packs))
	for _, id := range o.Packs {
		if p, ok := snap.byID[id]; ok {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(l, r int) bool {
		return matched[l].ID < matched[r].ID
	})
	return matched, res, nil
}

func (i *Index) snapshot() *snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snap
}

func (i *Index) scan() (*snapshot, error) {
	entries, err := os.ReadDir(i.root)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Pack root does not exist", slog.String("root", i.root))
		return &snapshot{byID: map[string]*api.Pack{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pack root %s: %w", i.root, err)
	}

	snap := &snapshot{byID: map[string]*api.Pack{}}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(i.root, entry.Name())
		pack, err := readManifest(dir, entry.Name())
		if err != nil {
			slog.Warn("Skipping unreadable pack manifest",
				slog.String("path", dir), log.Error(err))
			continue
		}
		if pack == nil {
			continue
		}
		slog.Debug("Indexed pack", log.PackID(pack.ID))
		snap.byID[pack.ID] = pack
		snap.sorted = append(snap.sorted, pack)
	}

	sort.Slice(snap.sorted, func(l, r int) bool {
		return snap.sorted[l].ID < snap.sorted[r].ID
	})
	return snap, nil
}

// readManifest probes the pack.json manifest for the fields the index
// cares about. A directory without a manifest is not a pack; a manifest
// without an id falls back to the directory name
func readManifest(dir, dirName string) (*api.Pack, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON in %s manifest", dirName)
	}

	m := gjson.ParseBytes(raw)
	id := m.Get("id").String()
	if id == "" {
		id = dirName
	}

	var scenarios []string
	for _, s := range m.Get("scenarios.#.id").Array() {
		scenarios = append(scenarios, s.String())
	}

	return &api.Pack{
		ID:        id,
		Name:      m.Get("name").String(),
		Kind:      m.Get("kind").String(),
		Path:      dir,
		Scenarios: scenarios,
	}, nil
}
