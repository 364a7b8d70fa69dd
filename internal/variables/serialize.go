package variables

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

const serialVersion = 1

type wireDefinition struct {
	Name        string    `json:"name"`
	Type        Type      `json:"type"`
	Scope       Scope     `json:"scope"`
	Default     value.Box `json:"default"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Step        *float64  `json:"step,omitempty"`
	Readonly    bool      `json:"readonly,omitempty"`
	Description string    `json:"description,omitempty"`
	Explicit    bool      `json:"explicit,omitempty"`
}

type wireEntry struct {
	Name  string    `json:"name"`
	Scope Scope     `json:"scope"`
	Owner string    `json:"owner,omitempty"`
	Value value.Box `json:"value"`
}

type wireStore struct {
	Version     int              `json:"version"`
	Definitions []wireDefinition `json:"definitions"`
	Values      []wireEntry      `json:"values"`
}

// Serialize encodes every definition and stored value of all scopes.
func (s *Store) Serialize() ([]byte, error) {
	w := wireStore{Version: serialVersion}
	for _, d := range s.Definitions() {
		w.Definitions = append(w.Definitions, wireDefinition{
			Name:        d.Name,
			Type:        d.Type,
			Scope:       d.Scope,
			Default:     value.Box{V: d.Default},
			Min:         d.Min,
			Max:         d.Max,
			Step:        d.Step,
			Readonly:    d.Readonly,
			Description: d.Description,
			Explicit:    d.explicitDefault,
		})
	}
	for sl, v := range s.values {
		w.Values = append(w.Values, wireEntry{Name: sl.name, Scope: sl.scope, Owner: sl.owner, Value: value.Box{V: v}})
	}
	sortWire(w.Values)
	return json.Marshal(w)
}

func sortWire(entries []wireEntry) {
	tmp := make([]Entry, len(entries))
	for i, e := range entries {
		tmp[i] = Entry{Name: e.Name, Scope: e.Scope, Owner: e.Owner, Value: e.Value.V}
	}
	sortEntries(tmp)
	for i, e := range tmp {
		entries[i] = wireEntry{Name: e.Name, Scope: e.Scope, Owner: e.Owner, Value: value.Box{V: e.Value}}
	}
}

// Deserialize replaces the store's definitions and values with data produced
// by Serialize. Watchers are kept and are not notified.
func (s *Store) Deserialize(data []byte) error {
	var w wireStore
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("failed to parse variable store: %w", err)
	}
	if w.Version != serialVersion {
		return fmt.Errorf("unsupported variable store version: %d", w.Version)
	}

	defs := make(map[defKey]*Definition, len(w.Definitions))
	for _, wd := range w.Definitions {
		if !wd.Scope.Valid() {
			return fmt.Errorf("variable %q: %w: %q", wd.Name, ErrInvalidScope, wd.Scope)
		}
		d := &Definition{
			Name:            wd.Name,
			Type:            wd.Type,
			Scope:           wd.Scope,
			Default:         wd.Default.Get(),
			Min:             wd.Min,
			Max:             wd.Max,
			Step:            wd.Step,
			Readonly:        wd.Readonly,
			Description:     wd.Description,
			explicitDefault: wd.Explicit,
		}
		defs[defKey{d.Scope, d.Name}] = d
	}

	values := make(map[slot]value.Value, len(w.Values))
	for _, we := range w.Values {
		sl, err := s.slotFor(we.Name, we.Scope, we.Owner)
		if err != nil {
			return fmt.Errorf("variable %q: %w", we.Name, err)
		}
		values[sl] = we.Value.Get()
	}

	s.defs = defs
	s.values = values
	return nil
}
