// Package memory provides an in-process implementation of every engine store
// interface. It backs tests and the demo configuration of the server.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"incentivekit/core"
	"incentivekit/engine"
)

// Store holds all incentive state behind one mutex. Operations across
// different users contend only briefly; this is acceptable for tests and
// small deployments.
type Store struct {
	mu        sync.Mutex
	users     map[core.UserID]*core.UserProfile
	reviews   map[int64]*core.Review
	orders    map[core.UserID][]core.Order
	scores    map[core.UserID]*core.UserScores
	levels    []core.Level
	badges    []badgeRow
	triggers  map[int64][]triggerRow
	config    map[string][]byte
	processed map[int64]struct{}
	nextID    int64
}

func New() *Store {
	return &Store{
		users:     make(map[core.UserID]*core.UserProfile),
		reviews:   make(map[int64]*core.Review),
		orders:    make(map[core.UserID][]core.Order),
		scores:    make(map[core.UserID]*core.UserScores),
		triggers:  make(map[int64][]triggerRow),
		config:    make(map[string][]byte),
		processed: make(map[int64]struct{}),
	}
}

type badgeRow struct {
	ID          int64
	Name        string
	Icon        string
	Description string
}

type triggerRow struct {
	ID      int64
	Trigger core.Trigger
}

func (s *Store) nextSeq() int64 {
	s.nextID++
	return s.nextID
}

// ---- seeding helpers (tests, demo server, seed tool) ----

func (s *Store) PutUser(p core.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	cp.Badges = append([]string(nil), p.Badges...)
	s.users[p.UserID] = &cp
}

func (s *Store) PutReview(r core.Review) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.reviews[r.ID] = &cp
}

func (s *Store) PutOrder(o core.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.UserID] = append(s.orders[o.UserID], o)
}

func (s *Store) PutScores(sc core.UserScores) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sc
	s.scores[sc.UserID] = &cp
}

// ---- engine.UserStore ----

func (s *Store) GetUserProfile(_ context.Context, user core.UserID) (*core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[user]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	cp := *p
	cp.Badges = append([]string(nil), p.Badges...)
	return &cp, nil
}

func (s *Store) GrantRewards(_ context.Context, user core.UserID, xpDelta, pointsDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[user]
	if !ok {
		return core.ErrUserNotFound
	}
	xp, err := core.AddSafe(p.XP, xpDelta)
	if err != nil {
		return err
	}
	points, err := core.AddSafe(p.Points, pointsDelta)
	if err != nil {
		return err
	}
	p.XP, p.Points = xp, points
	p.Updated = time.Now().UTC()
	return nil
}

func (s *Store) SetUserLevel(_ context.Context, user core.UserID, levelName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[user]
	if !ok {
		return core.ErrUserNotFound
	}
	p.LevelName = levelName
	p.Updated = time.Now().UTC()
	return nil
}

func (s *Store) AddUserBadge(_ context.Context, user core.UserID, badge string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[user]
	if !ok {
		return false, core.ErrUserNotFound
	}
	for _, b := range p.Badges {
		if b == badge {
			return false, nil
		}
	}
	p.Badges = append(p.Badges, badge)
	p.Updated = time.Now().UTC()
	return true, nil
}

func (s *Store) SetOrderCount(_ context.Context, user core.UserID, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[user]
	if !ok {
		return core.ErrUserNotFound
	}
	p.OrderCount = count
	return nil
}

// ---- engine.ReviewStore ----

func (s *Store) GetReviewDetail(_ context.Context, reviewID int64) (*core.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[reviewID]
	if !ok {
		return nil, core.ErrReviewNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) CountConfirmedByUser(_ context.Context, user core.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.reviews {
		if r.CustomerUserID == user && r.ConfirmedByAdmin {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListConfirmed(_ context.Context, afterID int64, limit int) ([]core.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Review
	for _, r := range s.reviews {
		if r.ConfirmedByAdmin && r.ID > afterID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- engine.OrderStore ----

func (s *Store) GetOrdersByUser(_ context.Context, user core.UserID, status string, limit int) ([]core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Order
	for _, o := range s.orders[user] {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---- engine.ScoreStore ----

func (s *Store) GetUserScores(_ context.Context, user core.UserID) (*core.UserScores, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scores[user]
	if !ok {
		return nil, nil
	}
	cp := *sc
	return &cp, nil
}

// ---- engine.CatalogStore ----

func (s *Store) GetAllLevels(_ context.Context) ([]core.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Level, len(s.levels))
	copy(out, s.levels)
	return out, nil
}

func (s *Store) GetAllBadges(_ context.Context) ([]core.BadgeSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.BadgeSpec, len(s.badges))
	for i, row := range s.badges {
		spec := core.BadgeSpec{ID: row.ID, Name: row.Name, Icon: row.Icon, Description: row.Description}
		for _, tr := range s.triggers[row.ID] {
			spec.Triggers = append(spec.Triggers, tr.Trigger)
		}
		out[i] = spec
	}
	return out, nil
}

// ---- engine.CatalogAdmin ----

func (s *Store) InsertLevel(_ context.Context, level core.Level) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level.ID = s.nextSeq()
	s.levels = append(s.levels, level)
	return level.ID, nil
}

func (s *Store) UpdateLevel(_ context.Context, level core.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.levels {
		if s.levels[i].ID == level.ID {
			s.levels[i] = level
			return nil
		}
	}
	return errNotFound("level", level.ID)
}

func (s *Store) DeleteLevel(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.levels {
		if s.levels[i].ID == id {
			s.levels = append(s.levels[:i], s.levels[i+1:]...)
			return nil
		}
	}
	return errNotFound("level", id)
}

func (s *Store) InsertBadge(_ context.Context, badge core.BadgeSpec) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSeq()
	s.badges = append(s.badges, badgeRow{ID: id, Name: badge.Name, Icon: badge.Icon, Description: badge.Description})
	for _, tr := range badge.Triggers {
		s.triggers[id] = append(s.triggers[id], triggerRow{ID: s.nextSeq(), Trigger: tr})
	}
	return id, nil
}

func (s *Store) UpdateBadge(_ context.Context, badge core.BadgeSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.badges {
		if s.badges[i].ID == badge.ID {
			s.badges[i].Name = badge.Name
			s.badges[i].Icon = badge.Icon
			s.badges[i].Description = badge.Description
			return nil
		}
	}
	return errNotFound("badge", badge.ID)
}

func (s *Store) DeleteBadge(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.badges {
		if s.badges[i].ID == id {
			s.badges = append(s.badges[:i], s.badges[i+1:]...)
			delete(s.triggers, id)
			return nil
		}
	}
	return errNotFound("badge", id)
}

func (s *Store) InsertTrigger(_ context.Context, badgeID int64, key string, value float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trigger, err := core.NewTrigger(key, value)
	if err != nil {
		return 0, err
	}
	for i := range s.badges {
		if s.badges[i].ID == badgeID {
			id := s.nextSeq()
			s.triggers[badgeID] = append(s.triggers[badgeID], triggerRow{ID: id, Trigger: trigger})
			return id, nil
		}
	}
	return 0, errNotFound("badge", badgeID)
}

func (s *Store) DeleteTrigger(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for badgeID, rows := range s.triggers {
		for i, tr := range rows {
			if tr.ID == id {
				s.triggers[badgeID] = append(rows[:i], rows[i+1:]...)
				return nil
			}
		}
	}
	return errNotFound("trigger", id)
}

// ---- engine.ConfigStore ----

func (s *Store) GetConfig(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.config[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) SetConfig(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = append([]byte(nil), value...)
	return nil
}

// ---- engine.ReviewLedger ----

func (s *Store) MarkProcessed(_ context.Context, reviewID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.processed[reviewID]; seen {
		return false, nil
	}
	s.processed[reviewID] = struct{}{}
	return true, nil
}

func (s *Store) Unmark(_ context.Context, reviewID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processed, reviewID)
	return nil
}

type errNotFoundT struct {
	kind string
	id   int64
}

func errNotFound(kind string, id int64) error { return &errNotFoundT{kind: kind, id: id} }

func (e *errNotFoundT) Error() string {
	return e.kind + " not found"
}

// Interface conformance.
var (
	_ engine.UserStore    = (*Store)(nil)
	_ engine.ReviewStore  = (*Store)(nil)
	_ engine.OrderStore   = (*Store)(nil)
	_ engine.ScoreStore   = (*Store)(nil)
	_ engine.CatalogStore = (*Store)(nil)
	_ engine.CatalogAdmin = (*Store)(nil)
	_ engine.ConfigStore  = (*Store)(nil)
	_ engine.ReviewLedger = (*Store)(nil)
)
