// Package jsonfile persists the incentive catalog (levels, badges, triggers)
// and dynamic configuration to a single JSON file. Suitable for demos and
// small deployments where the catalog should live in a reviewable file while
// user data stays in the primary store.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"incentivekit/core"
	"incentivekit/engine"
)

// Store holds the catalog document behind one mutex, writing the file on
// every mutation with a tmp-then-rename swap.
type Store struct {
	path string
	mu   sync.Mutex
	doc  document
}

type document struct {
	NextID  int64                      `json:"next_id"`
	Levels  []core.Level               `json:"levels"`
	Badges  []badgeDoc                 `json:"badges"`
	Configs map[string]json.RawMessage `json:"configs"`
}

type badgeDoc struct {
	ID          int64        `json:"id"`
	Name        string       `json:"badge_name"`
	Icon        string       `json:"badge_icon,omitempty"`
	Description string       `json:"description,omitempty"`
	Triggers    []triggerDoc `json:"triggers,omitempty"`
}

// triggerDoc keeps the stored (key, value) form so the file round-trips the
// _min/_max suffix encoding exactly.
type triggerDoc struct {
	ID    int64   `json:"id"`
	Key   string  `json:"trigger_key"`
	Value float64 `json:"trigger_value"`
}

func New(path string) (*Store, error) {
	s := &Store{path: path, doc: document{Configs: map[string]json.RawMessage{}}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse catalog file %s: %w", s.path, err)
	}
	if doc.Configs == nil {
		doc.Configs = map[string]json.RawMessage{}
	}
	// The indented file format reflows raw config values; compact them back so
	// GetConfig returns the bytes SetConfig stored.
	for key, raw := range doc.Configs {
		compacted, err := compactJSON(raw)
		if err != nil {
			return fmt.Errorf("config %s in %s: %w", key, s.path, err)
		}
		doc.Configs[key] = compacted
	}
	s.doc = doc
	return nil
}

func compactJSON(raw []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) nextSeq() int64 {
	s.doc.NextID++
	return s.doc.NextID
}

// ---- engine.CatalogStore ----

func (s *Store) GetAllLevels(_ context.Context) ([]core.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Level, len(s.doc.Levels))
	copy(out, s.doc.Levels)
	return out, nil
}

func (s *Store) GetAllBadges(_ context.Context) ([]core.BadgeSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.BadgeSpec, 0, len(s.doc.Badges))
	for _, row := range s.doc.Badges {
		spec := core.BadgeSpec{ID: row.ID, Name: row.Name, Icon: row.Icon, Description: row.Description}
		// A hand-edited trigger that no longer parses makes its badge
		// unearnable; drop only that badge, not the whole catalog.
		ok := true
		for _, tr := range row.Triggers {
			trigger, err := core.NewTrigger(tr.Key, tr.Value)
			if err != nil {
				ok = false
				break
			}
			spec.Triggers = append(spec.Triggers, trigger)
		}
		if ok {
			out = append(out, spec)
		}
	}
	return out, nil
}

// ---- engine.CatalogAdmin ----

func (s *Store) InsertLevel(_ context.Context, level core.Level) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level.ID = s.nextSeq()
	s.doc.Levels = append(s.doc.Levels, level)
	if err := s.persist(); err != nil {
		return 0, err
	}
	return level.ID, nil
}

func (s *Store) UpdateLevel(_ context.Context, level core.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Levels {
		if s.doc.Levels[i].ID == level.ID {
			s.doc.Levels[i] = level
			return s.persist()
		}
	}
	return fmt.Errorf("level %d not found", level.ID)
}

func (s *Store) DeleteLevel(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Levels {
		if s.doc.Levels[i].ID == id {
			s.doc.Levels = append(s.doc.Levels[:i], s.doc.Levels[i+1:]...)
			return s.persist()
		}
	}
	return fmt.Errorf("level %d not found", id)
}

func (s *Store) InsertBadge(_ context.Context, badge core.BadgeSpec) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := badgeDoc{ID: s.nextSeq(), Name: badge.Name, Icon: badge.Icon, Description: badge.Description}
	s.doc.Badges = append(s.doc.Badges, row)
	if err := s.persist(); err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *Store) UpdateBadge(_ context.Context, badge core.BadgeSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Badges {
		if s.doc.Badges[i].ID == badge.ID {
			s.doc.Badges[i].Name = badge.Name
			s.doc.Badges[i].Icon = badge.Icon
			s.doc.Badges[i].Description = badge.Description
			return s.persist()
		}
	}
	return fmt.Errorf("badge %d not found", badge.ID)
}

func (s *Store) DeleteBadge(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Badges {
		if s.doc.Badges[i].ID == id {
			s.doc.Badges = append(s.doc.Badges[:i], s.doc.Badges[i+1:]...)
			return s.persist()
		}
	}
	return fmt.Errorf("badge %d not found", id)
}

func (s *Store) InsertTrigger(_ context.Context, badgeID int64, key string, value float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := core.NewTrigger(key, value); err != nil {
		return 0, err
	}
	for i := range s.doc.Badges {
		if s.doc.Badges[i].ID == badgeID {
			id := s.nextSeq()
			s.doc.Badges[i].Triggers = append(s.doc.Badges[i].Triggers, triggerDoc{ID: id, Key: key, Value: value})
			if err := s.persist(); err != nil {
				return 0, err
			}
			return id, nil
		}
	}
	return 0, fmt.Errorf("badge %d not found", badgeID)
}

func (s *Store) DeleteTrigger(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Badges {
		for j, tr := range s.doc.Badges[i].Triggers {
			if tr.ID == id {
				s.doc.Badges[i].Triggers = append(s.doc.Badges[i].Triggers[:j], s.doc.Badges[i].Triggers[j+1:]...)
				return s.persist()
			}
		}
	}
	return fmt.Errorf("trigger %d not found", id)
}

// ---- engine.ConfigStore ----

func (s *Store) GetConfig(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.doc.Configs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (s *Store) SetConfig(_ context.Context, key string, value []byte) error {
	compacted, err := compactJSON(value)
	if err != nil {
		return fmt.Errorf("config %s: value must be a JSON document", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Configs[key] = compacted
	return s.persist()
}

var (
	_ engine.CatalogStore = (*Store)(nil)
	_ engine.CatalogAdmin = (*Store)(nil)
	_ engine.ConfigStore  = (*Store)(nil)
)
