// Package resolve implements hierarchical pack-override resolution: the
// most specific override registered for a (tenant, team, user) scope wins
package resolve

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kode4food/stagehand/pkg/api"
)

type (
	// Override is one layer of the override table: the pack IDs visible to
	// scopes that resolve to this layer, plus an opaque settings blob that
	// downstream consumers interpret
	Override struct {
		Packs    []string        `json:"packs,omitempty"`
		Settings json.RawMessage `json:"settings,omitempty"`
	}

	// Table maps scope keys (tenant, tenant:team, tenant:team:user) to
	// overrides. Resolution is a pure function over the table
	Table map[string]*Override

	// Resolution reports which candidate key matched and which more
	// specific keys were absent, so callers can explain fallback behavior
	Resolution struct {
		MatchedKey  string   `json:"matched_key,omitempty"`
		MissingKeys []string `json:"missing_keys"`
	}
)

var ErrUserWithoutTenant = errors.New("user scope requires a tenant")

// CandidateKeys enumerates the override keys a scope may resolve through,
// in strict specificity order. A user-level key is only formed when both
// team and user are present
func CandidateKeys(s api.Scope) ([]string, error) {
	if s.User != "" && s.Tenant == "" {
		return nil, fmt.Errorf("%w: user %q", ErrUserWithoutTenant, s.User)
	}
	if s.Tenant == "" {
		return nil, nil
	}

	var keys []string
	if s.Team != "" {
		if s.User != "" {
			keys = append(keys, s.Tenant+":"+s.Team+":"+s.User)
		}
		keys = append(keys, s.Tenant+":"+s.Team)
	}
	return append(keys, s.Tenant), nil
}

// Resolve tries the scope's candidate keys in specificity order and returns
// the first override found. A nil override means no key matched and the
// caller should fall back to process-wide defaults
func (t Table) Resolve(s api.Scope) (*Override, *Resolution, error) {
	keys, err := CandidateKeys(s)
	if err != nil {
		return nil, nil, err
	}

	res := &Resolution{MissingKeys: []string{}}
	for i, key := range keys {
		if o, ok := t[key]; ok {
			res.MatchedKey = key
			res.MissingKeys = keys[:i:i]
			return o, res, nil
		}
	}

	res.MissingKeys = keys
	return nil, res, nil
}

// LoadTable reads an override table from the JSON document the external
// config loader produces. A missing file yields an empty table
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read override table: %w", err)
	}

	var res Table
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("invalid override table %s: %w", path, err)
	}
	return res, nil
}
