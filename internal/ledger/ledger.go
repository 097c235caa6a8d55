package ledger

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/clock"
)

type IDGen interface {
	New(t time.Time) (string, error)
}

// ulidGen は同一ミリ秒内でも単調増加する ULID を返す
type ulidGen struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewULIDGen() IDGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) New(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Ledger is the borrow ledger. Reads come back with status and fine refreshed
// against the clock.
type Ledger struct {
	store  Store
	policy Policy
	clock  clock.Clock
	ids    IDGen
}

func New(store Store, policy Policy, clk clock.Clock) *Ledger {
	return &Ledger{store: store, policy: policy, clock: clk, ids: NewULIDGen()}
}

// WithIDGen swaps the loan id generator (tests).
func (l *Ledger) WithIDGen(g IDGen) *Ledger {
	l.ids = g
	return l
}

func (l *Ledger) Policy() Policy { return l.policy }

func (l *Ledger) refresh(loan Loan) Loan { return l.policy.RefreshStatus(loan, l.clock.Now()) }

func (l *Ledger) refreshAll(loans []Loan) []Loan {
	now := l.clock.Now()
	for i := range loans {
		loans[i] = l.policy.RefreshStatus(loans[i], now)
	}
	return loans
}

func (l *Ledger) RecordCheckout(ctx context.Context, bookID, memberID int64, now time.Time) (Loan, error) {
	now = clock.Stamp(now)
	id, err := l.ids.New(now)
	if err != nil {
		return Loan{}, err
	}
	loan := Loan{
		LoanID:     id,
		BookID:     bookID,
		MemberID:   memberID,
		BorrowDate: now,
		DueDate:    now.Add(l.policy.LoanPeriod),
		Status:     StatusBorrowed,
		Fine:       decimal.Zero,
	}
	if err := l.store.Insert(ctx, loan); err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// RecordReturn closes the loan and freezes its fine as of now.
func (l *Ledger) RecordReturn(ctx context.Context, loanID string, now time.Time) (Loan, error) {
	loan, err := l.store.Get(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	if !loan.Active() {
		return Loan{}, apperr.ErrAlreadyReturned("loan " + loanID + " already returned")
	}

	now = clock.Stamp(now)
	fine := l.policy.Fine(loan.DueDate, now)
	if err := l.store.MarkReturned(ctx, loanID, now, fine); err != nil {
		return Loan{}, err
	}
	loan.ReturnDate = &now
	loan.Fine = fine
	loan.Status = StatusReturned
	return loan, nil
}

// RecordRenewal pushes the due date out by one loan period. Only loans that are
// still borrowed (not overdue) and under the renewal limit qualify.
func (l *Ledger) RecordRenewal(ctx context.Context, loanID string, now time.Time) (Loan, error) {
	loan, err := l.store.Get(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	loan = l.policy.RefreshStatus(loan, now)
	switch {
	case loan.Status == StatusReturned:
		return Loan{}, apperr.ErrAlreadyReturned("loan " + loanID + " already returned")
	case loan.Status == StatusOverdue:
		return Loan{}, apperr.ErrRenewNotAllowed("overdue loans cannot be renewed")
	case loan.Renewals >= l.policy.MaxRenewals:
		return Loan{}, apperr.ErrRenewNotAllowed("renewal limit reached")
	}

	due := loan.DueDate.Add(l.policy.LoanPeriod)
	if err := l.store.Extend(ctx, loanID, due, loan.Renewals); err != nil {
		return Loan{}, err
	}
	loan.DueDate = due
	loan.Renewals++
	return l.policy.RefreshStatus(loan, now), nil
}

func (l *Ledger) Get(ctx context.Context, loanID string) (Loan, error) {
	if strings.TrimSpace(loanID) == "" {
		return Loan{}, apperr.ErrInvalid("loanId is required")
	}
	loan, err := l.store.Get(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	return l.refresh(loan), nil
}

func (l *Ledger) List(ctx context.Context, f LoanFilter, p Page) ([]Loan, int64, error) {
	if f.Status != "" {
		if _, ok := ParseStatus(string(f.Status)); !ok {
			return nil, 0, apperr.ErrInvalid("status must be borrowed, returned or overdue")
		}
	}
	loans, total, err := l.store.List(ctx, f, l.clock.Now(), p)
	if err != nil {
		return nil, 0, err
	}
	return l.refreshAll(loans), total, nil
}

// all は上限なしで全件を集める（会員・本単位の一覧用）
func (l *Ledger) all(ctx context.Context, f LoanFilter) ([]Loan, error) {
	now := l.clock.Now()
	out := []Loan{}
	for offset := 0; ; {
		page, total, err := l.store.List(ctx, f, now, Page{Limit: 500, Offset: offset})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		offset += len(page)
		if len(page) == 0 || int64(offset) >= total {
			break
		}
	}
	return l.refreshAll(out), nil
}

func (l *Ledger) ActiveLoansForBook(ctx context.Context, bookID int64) ([]Loan, error) {
	return l.all(ctx, LoanFilter{BookID: bookID, ActiveOnly: true})
}

func (l *Ledger) ActiveLoansForMember(ctx context.Context, memberID int64) ([]Loan, error) {
	return l.all(ctx, LoanFilter{MemberID: memberID, ActiveOnly: true})
}

// HistoryFor returns every loan of the member, newest borrow first.
func (l *Ledger) HistoryFor(ctx context.Context, memberID int64) ([]Loan, error) {
	return l.all(ctx, LoanFilter{MemberID: memberID})
}

func (l *Ledger) ActiveLoanCount(ctx context.Context, memberID int64) (int, error) {
	return l.store.CountActive(ctx, memberID)
}

func (l *Ledger) Summary(ctx context.Context, now time.Time) (Summary, error) {
	var (
		s   Summary
		err error
	)
	s.Active, s.Overdue, s.Returned, err = l.store.Counts(ctx, now)
	if err != nil {
		return Summary{}, err
	}
	dues, err := l.store.OverdueDueDates(ctx, now)
	if err != nil {
		return Summary{}, err
	}
	s.OutstandingFines = decimal.Zero
	for _, d := range dues {
		s.OutstandingFines = s.OutstandingFines.Add(l.policy.Fine(d, now))
	}
	s.CollectedFines, err = l.store.ReturnedFines(ctx)
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}
