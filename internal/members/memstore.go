package members

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"LIBRA-backend/internal/platform/apperr"
)

type MemStore struct {
	mu      sync.RWMutex
	members map[int64]*Member
	nextID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{members: make(map[int64]*Member), nextID: 1}
}

func (m *MemStore) Get(_ context.Context, id int64) (Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.members[id]; ok {
		return *v, nil
	}
	return Member{}, apperr.ErrNotFound(fmt.Sprintf("member %d not found", id))
}

func (m *MemStore) GetByEmail(_ context.Context, email string) (Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.members {
		if v.Email == email {
			return *v, nil
		}
	}
	return Member{}, apperr.ErrNotFound(fmt.Sprintf("member %s not found", email))
}

func (m *MemStore) List(_ context.Context, f Filter, p Page) ([]Member, int64, error) {
	p = p.normalize()
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(f.Query))

	m.mu.RLock()
	hits := make([]Member, 0, len(m.members))
	for _, v := range m.members {
		if q != "" && !strings.Contains(fold.String(v.Name), q) && !strings.Contains(fold.String(v.Email), q) {
			continue
		}
		if f.Role != "" && v.Role != f.Role {
			continue
		}
		if f.Active != nil && v.Active != *f.Active {
			continue
		}
		hits = append(hits, *v)
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].MemberID < hits[j].MemberID })

	total := int64(len(hits))
	if p.Offset >= len(hits) {
		return []Member{}, total, nil
	}
	end := p.Offset + p.Limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[p.Offset:end], total, nil
}

func (m *MemStore) Insert(_ context.Context, v *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.members {
		if x.Email == v.Email {
			return apperr.ErrConflict("email already registered")
		}
	}
	v.MemberID = m.nextID
	m.nextID++
	cp := *v
	m.members[cp.MemberID] = &cp
	return nil
}

func (m *MemStore) update(id int64, fn func(*Member)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.members[id]
	if !ok {
		return apperr.ErrNotFound(fmt.Sprintf("member %d not found", id))
	}
	fn(v)
	return nil
}

func (m *MemStore) SetActive(_ context.Context, id int64, active bool) error {
	return m.update(id, func(v *Member) { v.Active = active })
}

func (m *MemStore) UpdateProfile(_ context.Context, id int64, in ProfileUpdate) error {
	return m.update(id, func(v *Member) {
		if in.Name != nil {
			v.Name = *in.Name
		}
		if in.Phone != nil {
			v.Phone = *in.Phone
		}
	})
}

func (m *MemStore) SetPasswordHash(_ context.Context, id int64, hash string) error {
	return m.update(id, func(v *Member) { v.PasswordHash = hash })
}

func (m *MemStore) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := Counts{Total: int64(len(m.members))}
	for _, v := range m.members {
		if v.Active {
			c.Active++
		}
	}
	return c, nil
}
