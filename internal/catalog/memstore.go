package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"LIBRA-backend/internal/platform/apperr"
)

// MemStore keeps books in a map. Used by the memory driver and in tests.
type MemStore struct {
	mu     sync.RWMutex
	books  map[int64]*Book
	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{books: make(map[int64]*Book), nextID: 1}
}

// Caser は goroutine 間で共有できないので毎回作る
func containsFold(s, sub string) bool {
	c := cases.Fold()
	return strings.Contains(c.String(s), c.String(sub))
}

func (m *MemStore) Get(_ context.Context, id int64) (Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return Book{}, apperr.ErrNotFound(fmt.Sprintf("book %d not found", id))
	}
	return *b, nil
}

func (m *MemStore) List(_ context.Context, f Filter, p Page) ([]Book, int64, error) {
	p = p.normalize()
	q := strings.TrimSpace(f.Query)

	m.mu.RLock()
	hits := make([]Book, 0, len(m.books))
	for _, b := range m.books {
		if q != "" && !containsFold(b.Title, q) && !containsFold(b.Author, q) && !containsFold(b.ISBN, q) {
			continue
		}
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		if f.Available != nil && (b.AvailableCopies > 0) != *f.Available {
			continue
		}
		hits = append(hits, *b)
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if p.Order == "desc" {
			a, b = b, a
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.BookID < b.BookID
	})

	total := int64(len(hits))
	if p.Offset >= len(hits) {
		return []Book{}, total, nil
	}
	end := p.Offset + p.Limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[p.Offset:end], total, nil
}

func (m *MemStore) Insert(_ context.Context, b *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.books {
		if x.ISBN == b.ISBN {
			return apperr.ErrConflict("isbn already exists")
		}
	}
	b.BookID = m.nextID
	m.nextID++
	cp := *b
	m.books[cp.BookID] = &cp
	return nil
}

func (m *MemStore) Update(_ context.Context, id int64, in UpdateBookRequest) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return Book{}, apperr.ErrNotFound(fmt.Sprintf("book %d not found", id))
	}
	if in.ISBN != nil && *in.ISBN != b.ISBN {
		for _, x := range m.books {
			if x.ISBN == *in.ISBN {
				return Book{}, apperr.ErrConflict("isbn already exists")
			}
		}
	}

	next := *b
	if in.TotalCopies != nil {
		avail := next.AvailableCopies + (*in.TotalCopies - next.TotalCopies)
		if avail < 0 {
			return Book{}, apperr.ErrConflict("totalCopies cannot be lower than the copies on loan")
		}
		next.AvailableCopies = avail
		next.TotalCopies = *in.TotalCopies
	}
	if in.Title != nil {
		next.Title = *in.Title
	}
	if in.Author != nil {
		next.Author = *in.Author
	}
	if in.ISBN != nil {
		next.ISBN = *in.ISBN
	}
	if in.Category != nil {
		next.Category = *in.Category
	}
	if in.PublishYear != nil {
		next.PublishYear = *in.PublishYear
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.CoverImage != nil {
		next.CoverImage = *in.CoverImage
	}
	*b = next
	return next, nil
}

func (m *MemStore) ReserveCopy(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return apperr.ErrNotFound(fmt.Sprintf("book %d not found", id))
	}
	if b.AvailableCopies <= 0 {
		return apperr.ErrNoCopies(fmt.Sprintf("no copies of book %d available", id))
	}
	b.AvailableCopies--
	return nil
}

func (m *MemStore) ReleaseCopy(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return apperr.ErrNotFound(fmt.Sprintf("book %d not found", id))
	}
	if b.AvailableCopies >= b.TotalCopies {
		return apperr.ErrInconsistent(fmt.Sprintf("book %d: release would exceed totalCopies", id))
	}
	b.AvailableCopies++
	return nil
}

func (m *MemStore) Categories(_ context.Context) ([]string, error) {
	m.mu.RLock()
	seen := map[string]struct{}{}
	for _, b := range m.books {
		if b.Category != "" {
			seen[b.Category] = struct{}{}
		}
	}
	m.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) Totals(_ context.Context) (Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var t Totals
	for _, b := range m.books {
		t.Titles++
		t.TotalCopies += int64(b.TotalCopies)
		t.AvailableCopies += int64(b.AvailableCopies)
	}
	return t, nil
}
