package lending

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/catalog"
	"LIBRA-backend/internal/ledger"
	"LIBRA-backend/internal/members"
	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/clock"
)

// ===== 依存先（テストでは mock に差し替える） =====

type Catalog interface {
	Get(ctx context.Context, id int64) (catalog.Book, error)
	List(ctx context.Context, f catalog.Filter, p catalog.Page) ([]catalog.Book, int64, error)
	ReserveCopy(ctx context.Context, id int64) error
	ReleaseCopy(ctx context.Context, id int64) error
	Totals(ctx context.Context) (catalog.Totals, error)
}

type Directory interface {
	Get(ctx context.Context, id int64) (members.Member, error)
	List(ctx context.Context, f members.Filter, p members.Page) ([]members.Member, int64, error)
	Count(ctx context.Context) (members.Counts, error)
}

type Ledger interface {
	RecordCheckout(ctx context.Context, bookID, memberID int64, now time.Time) (ledger.Loan, error)
	RecordReturn(ctx context.Context, loanID string, now time.Time) (ledger.Loan, error)
	RecordRenewal(ctx context.Context, loanID string, now time.Time) (ledger.Loan, error)
	Get(ctx context.Context, loanID string) (ledger.Loan, error)
	List(ctx context.Context, f ledger.LoanFilter, p ledger.Page) ([]ledger.Loan, int64, error)
	ActiveLoansForMember(ctx context.Context, memberID int64) ([]ledger.Loan, error)
	HistoryFor(ctx context.Context, memberID int64) ([]ledger.Loan, error)
	Summary(ctx context.Context, now time.Time) (ledger.Summary, error)
	Policy() ledger.Policy
}

type Service struct {
	books   Catalog
	members Directory
	ledger  Ledger
	clock   clock.Clock
	locks   *keyLocks
}

func NewService(books Catalog, dir Directory, led Ledger, clk clock.Clock) *Service {
	return &Service{books: books, members: dir, ledger: led, clock: clk, locks: newKeyLocks()}
}

func (s *Service) Now() time.Time { return s.clock.Now() }

func bookKey(id int64) string  { return "book:" + strconv.FormatInt(id, 10) }
func loanKey(id string) string { return "loan:" + id }

// Checkout lends one copy of bookID to memberID. Either the copy is reserved
// and the loan recorded, or nothing changes.
func (s *Service) Checkout(ctx context.Context, bookID, memberID int64, now time.Time) (ledger.Loan, error) {
	if bookID <= 0 || memberID <= 0 {
		return ledger.Loan{}, apperr.ErrInvalid("bookId and memberId must be positive")
	}

	m, err := s.members.Get(ctx, memberID)
	if err != nil {
		return ledger.Loan{}, err
	}
	if !m.Active {
		return ledger.Loan{}, apperr.ErrMemberInactive(fmt.Sprintf("member %d is inactive", memberID))
	}

	unlock := s.locks.Lock(bookKey(bookID))
	defer unlock()

	if _, err := s.books.Get(ctx, bookID); err != nil {
		return ledger.Loan{}, err
	}
	if err := s.books.ReserveCopy(ctx, bookID); err != nil {
		return ledger.Loan{}, err
	}

	loan, err := s.ledger.RecordCheckout(ctx, bookID, memberID, now)
	if err != nil {
		// 確保した1冊を戻す
		if rerr := s.books.ReleaseCopy(context.WithoutCancel(ctx), bookID); rerr != nil {
			log.Printf("[ERROR] checkout book=%d member=%d: record failed (%v) and release failed: %v",
				bookID, memberID, err, rerr)
			return ledger.Loan{}, apperr.ErrInconsistent(
				fmt.Sprintf("book %d: copy reserved but loan not recorded", bookID))
		}
		log.Printf("[WARN] checkout book=%d member=%d: record failed, copy released: %v", bookID, memberID, err)
		return ledger.Loan{}, err
	}
	return loan, nil
}

// ReturnBook closes the loan and puts the copy back on the shelf.
func (s *Service) ReturnBook(ctx context.Context, loanID string, now time.Time) (ledger.Loan, error) {
	current, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return ledger.Loan{}, err
	}

	// ロック順は loan → book
	unlockLoan := s.locks.Lock(loanKey(loanID))
	defer unlockLoan()
	unlockBook := s.locks.Lock(bookKey(current.BookID))
	defer unlockBook()

	loan, err := s.ledger.RecordReturn(ctx, loanID, now)
	if err != nil {
		return ledger.Loan{}, err
	}
	// 台帳は返却済みなので、ここからはキャンセルさせない
	if err := s.books.ReleaseCopy(context.WithoutCancel(ctx), loan.BookID); err != nil {
		log.Printf("[ERROR] return loan=%s book=%d: ledger updated but release failed: %v", loanID, loan.BookID, err)
		return ledger.Loan{}, apperr.ErrInconsistent(
			fmt.Sprintf("loan %s returned but book %d copy count not restored", loanID, loan.BookID))
	}
	return loan, nil
}

func (s *Service) Renew(ctx context.Context, loanID string, now time.Time) (ledger.Loan, error) {
	unlock := s.locks.Lock(loanKey(loanID))
	defer unlock()
	return s.ledger.RecordRenewal(ctx, loanID, now)
}

// Quote は返却せずに現在の状態と罰金を見積もる
func (s *Service) Quote(ctx context.Context, loanID string, now time.Time) (LoanView, error) {
	loan, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return LoanView{}, err
	}
	loan = s.ledger.Policy().RefreshStatus(loan, now)
	views, err := s.enrich(ctx, []ledger.Loan{loan}, now)
	if err != nil {
		return LoanView{}, err
	}
	return views[0], nil
}

func (s *Service) Loan(ctx context.Context, loanID string) (LoanView, error) {
	return s.Quote(ctx, loanID, s.clock.Now())
}

// ===== 一覧 =====

// CurrentLoans lists active loans, optionally narrowed by a text query over
// book title/author/isbn and member name/email.
func (s *Service) CurrentLoans(ctx context.Context, q string, status ledger.Status, p ledger.Page) ([]LoanView, int64, error) {
	if status == ledger.StatusReturned {
		return nil, 0, apperr.ErrInvalid("current loans cannot be filtered by returned")
	}
	f := ledger.LoanFilter{ActiveOnly: true, Status: status}
	if q = strings.TrimSpace(q); q != "" {
		m, err := s.match(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		f.AnyOf = m
	}
	return s.list(ctx, f, p)
}

func (s *Service) History(ctx context.Context, f ledger.LoanFilter, p ledger.Page) ([]LoanView, int64, error) {
	return s.list(ctx, f, p)
}

func (s *Service) MemberLoans(ctx context.Context, memberID int64, activeOnly bool) ([]LoanView, error) {
	if _, err := s.members.Get(ctx, memberID); err != nil {
		return nil, err
	}
	var (
		loans []ledger.Loan
		err   error
	)
	if activeOnly {
		loans, err = s.ledger.ActiveLoansForMember(ctx, memberID)
	} else {
		loans, err = s.ledger.HistoryFor(ctx, memberID)
	}
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, loans, s.clock.Now())
}

func (s *Service) list(ctx context.Context, f ledger.LoanFilter, p ledger.Page) ([]LoanView, int64, error) {
	loans, total, err := s.ledger.List(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	views, err := s.enrich(ctx, loans, s.clock.Now())
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

const matchLimit = 500

func (s *Service) match(ctx context.Context, q string) (*ledger.IDMatch, error) {
	books, _, err := s.books.List(ctx, catalog.Filter{Query: q}, catalog.Page{Limit: matchLimit})
	if err != nil {
		return nil, err
	}
	mems, _, err := s.members.List(ctx, members.Filter{Query: q}, members.Page{Limit: matchLimit})
	if err != nil {
		return nil, err
	}
	m := &ledger.IDMatch{}
	for _, b := range books {
		m.BookIDs = append(m.BookIDs, b.BookID)
	}
	for _, v := range mems {
		m.MemberIDs = append(m.MemberIDs, v.MemberID)
	}
	return m, nil
}

// enrich は書名・会員名を付ける。削除はないので見つからなければエラー
func (s *Service) enrich(ctx context.Context, loans []ledger.Loan, now time.Time) ([]LoanView, error) {
	books := map[int64]catalog.Book{}
	mems := map[int64]members.Member{}
	policy := s.ledger.Policy()

	out := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		b, ok := books[l.BookID]
		if !ok {
			var err error
			if b, err = s.books.Get(ctx, l.BookID); err != nil {
				return nil, err
			}
			books[l.BookID] = b
		}
		m, ok := mems[l.MemberID]
		if !ok {
			var err error
			if m, err = s.members.Get(ctx, l.MemberID); err != nil {
				return nil, err
			}
			mems[l.MemberID] = m
		}
		out = append(out, LoanView{
			Loan:        l,
			BookTitle:   b.Title,
			BookAuthor:  b.Author,
			BookCover:   b.CoverImage,
			MemberName:  m.Name,
			DaysOverdue: policy.DaysOverdue(l, now),
		})
	}
	return out, nil
}

// ===== ダッシュボード =====

type Stats struct {
	TotalTitles      int64
	TotalCopies      int64
	AvailableCopies  int64
	OnLoan           int64
	Overdue          int64
	ReturnedLoans    int64
	Members          int64
	ActiveMembers    int64
	OutstandingFines decimal.Decimal
	CollectedFines   decimal.Decimal
}

func (s *Service) Stats(ctx context.Context, now time.Time) (Stats, error) {
	t, err := s.books.Totals(ctx)
	if err != nil {
		return Stats{}, err
	}
	c, err := s.members.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	sum, err := s.ledger.Summary(ctx, now)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalTitles:      t.Titles,
		TotalCopies:      t.TotalCopies,
		AvailableCopies:  t.AvailableCopies,
		OnLoan:           sum.Active,
		Overdue:          sum.Overdue,
		ReturnedLoans:    sum.Returned,
		Members:          c.Total,
		ActiveMembers:    c.Active,
		OutstandingFines: sum.OutstandingFines,
		CollectedFines:   sum.CollectedFines,
	}, nil
}
