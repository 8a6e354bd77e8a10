package recordstore

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/wardenbot/warden/moderation"
)

// In-process record store, for tests and local development. Safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	rows   map[int64]moderation.Infraction
	nextID int64
	// overridable clock for CreatedAt
	Now func() time.Time
}

var _ RecordStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		rows:   make(map[int64]moderation.Infraction),
		nextID: 1,
		Now:    time.Now,
	}
}

func (s *MemStore) Create(ctx context.Context, n moderation.NewInfraction) (*moderation.Infraction, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inf := moderation.Infraction{
		ID:        s.nextID,
		Kind:      n.Kind,
		Subject:   n.Subject,
		Actor:     n.Actor,
		Reason:    n.Reason,
		CreatedAt: s.Now().UTC(),
		ExpiresAt: copyTime(n.ExpiresAt),
		Active:    n.Active(),
		Hidden:    n.Hidden,
	}
	s.nextID++
	s.rows[inf.ID] = inf
	return &inf, nil
}

// Insert stores a row as-is (including id and active flag). Used to seed fixtures.
func (s *MemStore) Insert(inf moderation.Infraction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inf.ExpiresAt = copyTime(inf.ExpiresAt)
	s.rows[inf.ID] = inf
	if inf.ID >= s.nextID {
		s.nextID = inf.ID + 1
	}
}

func (s *MemStore) Get(ctx context.Context, id int64) (*moderation.Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inf, ok := s.rows[id]
	if !ok {
		return nil, moderation.ErrNotFound
	}
	return &inf, nil
}

func (s *MemStore) List(ctx context.Context, f moderation.Filter) ([]moderation.Infraction, error) {
	var search *regexp.Regexp
	if f.Search != "" {
		re, err := moderation.SearchPattern(f.Search)
		if err != nil {
			return nil, err
		}
		search = re
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []moderation.Infraction{}
	for _, inf := range s.rows {
		if matchesFilter(&inf, f, search) {
			out = append(out, inf)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if f.NewestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemStore) Update(ctx context.Context, id int64, u moderation.Update) (*moderation.Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inf, ok := s.rows[id]
	if !ok {
		return nil, moderation.ErrNotFound
	}
	if u.SetExpiry {
		inf.ExpiresAt = copyTime(u.ExpiresAt)
	}
	if u.Reason != nil {
		inf.Reason = *u.Reason
	}
	s.rows[id] = inf
	return &inf, nil
}

func (s *MemStore) Deactivate(ctx context.Context, id int64) (*moderation.Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inf, ok := s.rows[id]
	if !ok {
		return nil, moderation.ErrNotFound
	}
	if !inf.Active {
		return nil, moderation.ErrNotActive
	}
	inf.Active = false
	s.rows[id] = inf
	return &inf, nil
}

func (s *MemStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return moderation.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
