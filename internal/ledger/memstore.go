package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/apperr"
)

type MemStore struct {
	mu    sync.RWMutex
	loans map[string]*Loan
}

func NewMemStore() *MemStore { return &MemStore{loans: make(map[string]*Loan)} }

func cloneLoan(l *Loan) Loan {
	out := *l
	if l.ReturnDate != nil {
		t := *l.ReturnDate
		out.ReturnDate = &t
	}
	return out
}

func (m *MemStore) Insert(_ context.Context, l Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[l.LoanID]; ok {
		return apperr.ErrConflict("loan id already exists")
	}
	cp := cloneLoan(&l)
	cp.Status = ""
	m.loans[l.LoanID] = &cp
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[id]
	if !ok {
		return Loan{}, apperr.ErrNotFound(fmt.Sprintf("loan %s not found", id))
	}
	return cloneLoan(l), nil
}

func (m *MemStore) MarkReturned(_ context.Context, id string, at time.Time, fine decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return apperr.ErrNotFound(fmt.Sprintf("loan %s not found", id))
	}
	if l.ReturnDate != nil {
		return apperr.ErrAlreadyReturned(fmt.Sprintf("loan %s already returned", id))
	}
	l.ReturnDate = &at
	l.Fine = fine
	return nil
}

func (m *MemStore) Extend(_ context.Context, id string, due time.Time, renewals int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return apperr.ErrNotFound(fmt.Sprintf("loan %s not found", id))
	}
	if l.ReturnDate != nil {
		return apperr.ErrAlreadyReturned(fmt.Sprintf("loan %s already returned", id))
	}
	if l.Renewals != renewals {
		return apperr.ErrRenewNotAllowed(fmt.Sprintf("loan %s was renewed concurrently", id))
	}
	l.DueDate = due
	l.Renewals++
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func match(l *Loan, f LoanFilter, now time.Time) bool {
	if f.BookID > 0 && l.BookID != f.BookID {
		return false
	}
	if f.MemberID > 0 && l.MemberID != f.MemberID {
		return false
	}
	active := l.ReturnDate == nil
	if f.ActiveOnly && !active {
		return false
	}
	switch f.Status {
	case StatusReturned:
		if active {
			return false
		}
	case StatusOverdue:
		if !active || !l.DueDate.Before(now) {
			return false
		}
	case StatusBorrowed:
		if !active || l.DueDate.Before(now) {
			return false
		}
	}
	if f.AnyOf != nil && !contains(f.AnyOf.BookIDs, l.BookID) && !contains(f.AnyOf.MemberIDs, l.MemberID) {
		return false
	}
	return true
}

func (m *MemStore) List(_ context.Context, f LoanFilter, now time.Time, p Page) ([]Loan, int64, error) {
	p = p.normalize()

	m.mu.RLock()
	hits := []Loan{}
	for _, l := range m.loans {
		if match(l, f, now) {
			hits = append(hits, cloneLoan(l))
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if p.Order == "desc" {
			a, b = b, a
		}
		if !a.BorrowDate.Equal(b.BorrowDate) {
			return a.BorrowDate.Before(b.BorrowDate)
		}
		return a.LoanID < b.LoanID
	})

	total := int64(len(hits))
	if p.Offset >= len(hits) {
		return []Loan{}, total, nil
	}
	end := p.Offset + p.Limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[p.Offset:end], total, nil
}

func (m *MemStore) CountActive(_ context.Context, memberID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, l := range m.loans {
		if l.MemberID == memberID && l.ReturnDate == nil {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) Counts(_ context.Context, now time.Time) (active, overdue, returned int64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.loans {
		switch {
		case l.ReturnDate != nil:
			returned++
		case l.DueDate.Before(now):
			active++
			overdue++
		default:
			active++
		}
	}
	return active, overdue, returned, nil
}

func (m *MemStore) OverdueDueDates(_ context.Context, now time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []time.Time{}
	for _, l := range m.loans {
		if l.ReturnDate == nil && l.DueDate.Before(now) {
			out = append(out, l.DueDate)
		}
	}
	return out, nil
}

func (m *MemStore) ReturnedFines(_ context.Context) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, l := range m.loans {
		if l.ReturnDate != nil {
			sum = sum.Add(l.Fine)
		}
	}
	return sum, nil
}
