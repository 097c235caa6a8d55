// Package seed loads the demo catalog, accounts and loan history. Loans go
// through the lending service so copy counts and fines come out the same as
// they would for real traffic.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	"gopkg.in/yaml.v3"

	"LIBRA-backend/internal/catalog"
	"LIBRA-backend/internal/ledger"
	"LIBRA-backend/internal/lending"
	"LIBRA-backend/internal/members"
	"LIBRA-backend/internal/platform/apperr"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

type Book struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	ISBN        string `yaml:"isbn"`
	Category    string `yaml:"category"`
	PublishYear int    `yaml:"publish_year"`
	Description string `yaml:"description"`
	CoverImage  string `yaml:"cover_image"`
	Copies      int    `yaml:"copies"`
}

type Member struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Phone    string `yaml:"phone"`
	Role     string `yaml:"role"`
	Inactive bool   `yaml:"inactive"`
}

type Loan struct {
	ISBN            string `yaml:"isbn"`
	Email           string `yaml:"email"`
	BorrowedDaysAgo int    `yaml:"borrowed_days_ago"`
	ReturnedDaysAgo *int   `yaml:"returned_days_ago"` // nil なら貸出中
}

type Fixtures struct {
	Books   []Book   `yaml:"books"`
	Members []Member `yaml:"members"`
	Loans   []Loan   `yaml:"loans"`
}

func Default() (Fixtures, error) { return Parse(fixturesYAML) }

func Parse(buf []byte) (Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(buf, &fx); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, l := range fx.Loans {
		if l.BorrowedDaysAgo < 0 || (l.ReturnedDaysAgo != nil && *l.ReturnedDaysAgo > l.BorrowedDaysAgo) {
			return Fixtures{}, fmt.Errorf("loan %d: returned before borrowed", i)
		}
	}
	return fx, nil
}

// ===== 書き込み先 =====

type Books interface {
	Create(ctx context.Context, in catalog.CreateBookRequest) (catalog.Book, error)
}

type Members interface {
	Create(ctx context.Context, in members.NewMember) (members.Member, error)
	GetByEmail(ctx context.Context, email string) (members.Member, error)
	SetActive(ctx context.Context, id int64, active bool) (members.Member, error)
}

type Lending interface {
	Checkout(ctx context.Context, bookID, memberID int64, now time.Time) (ledger.Loan, error)
	ReturnBook(ctx context.Context, loanID string, now time.Time) (ledger.Loan, error)
	MemberLoans(ctx context.Context, memberID int64, activeOnly bool) ([]lending.LoanView, error)
}

type Result struct {
	Books, Members, Loans int
	Skipped               bool
}

// Apply writes fx relative to now. A database that already holds a complete
// earlier run is left alone. One that an earlier run left half written is
// reported as CONFLICT.
func Apply(ctx context.Context, fx Fixtures, b Books, m Members, l Lending, now time.Time) (Result, error) {
	done, err := seeded(ctx, fx, m, l)
	if err != nil {
		return Result{}, err
	}
	if done {
		log.Printf("[INFO] seed: %s already exists, skipping", fx.Members[0].Email)
		return Result{Skipped: true}, nil
	}

	var res Result
	bookIDs := make(map[string]int64, len(fx.Books))
	for _, v := range fx.Books {
		copies := v.Copies
		bk, err := b.Create(ctx, catalog.CreateBookRequest{
			Title:       v.Title,
			Author:      v.Author,
			ISBN:        v.ISBN,
			Category:    v.Category,
			PublishYear: v.PublishYear,
			Description: v.Description,
			CoverImage:  v.CoverImage,
			TotalCopies: &copies,
		})
		if err != nil {
			return res, fmt.Errorf("book %q: %w", v.Title, err)
		}
		bookIDs[v.ISBN] = bk.BookID
		res.Books++
	}

	memberIDs := make(map[string]int64, len(fx.Members))
	for _, v := range fx.Members {
		mm, err := m.Create(ctx, members.NewMember{
			Name: v.Name, Email: v.Email, Phone: v.Phone, Role: v.Role, Password: v.Password,
		})
		if err != nil {
			return res, fmt.Errorf("member %q: %w", v.Email, err)
		}
		memberIDs[v.Email] = mm.MemberID
		res.Members++
	}

	day := 24 * time.Hour
	for i, v := range fx.Loans {
		bookID, ok := bookIDs[v.ISBN]
		if !ok {
			return res, fmt.Errorf("loan %d: unknown isbn %s", i, v.ISBN)
		}
		memberID, ok := memberIDs[v.Email]
		if !ok {
			return res, fmt.Errorf("loan %d: unknown member %s", i, v.Email)
		}
		loan, err := l.Checkout(ctx, bookID, memberID, now.Add(-time.Duration(v.BorrowedDaysAgo)*day))
		if err != nil {
			return res, fmt.Errorf("loan %d: %w", i, err)
		}
		if v.ReturnedDaysAgo != nil {
			if _, err := l.ReturnBook(ctx, loan.LoanID, now.Add(-time.Duration(*v.ReturnedDaysAgo)*day)); err != nil {
				return res, fmt.Errorf("loan %d return: %w", i, err)
			}
		}
		res.Loans++
	}

	// 貸出を作ってから無効化する
	for _, v := range fx.Members {
		if !v.Inactive {
			continue
		}
		if _, err := m.SetActive(ctx, memberIDs[v.Email], false); err != nil {
			return res, fmt.Errorf("deactivate %q: %w", v.Email, err)
		}
	}

	log.Printf("[INFO] seed: %d books, %d members, %d loans", res.Books, res.Members, res.Loans)
	return res, nil
}

// seeded は前回の Apply が最後まで終わっていれば true を返す。
// 書き込みは1件ずつなので、途中で止まった跡は会員・貸出・無効化の状態で見分ける
func seeded(ctx context.Context, fx Fixtures, m Members, l Lending) (bool, error) {
	if len(fx.Members) == 0 {
		return false, nil
	}
	_, err := m.GetByEmail(ctx, fx.Members[0].Email)
	if errors.Is(err, apperr.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	loans := 0
	for _, v := range fx.Members {
		mm, err := m.GetByEmail(ctx, v.Email)
		if errors.Is(err, apperr.NotFound) {
			return false, partial("member " + v.Email + " is missing")
		}
		if err != nil {
			return false, err
		}
		if v.Inactive && mm.Active {
			return false, partial("member " + v.Email + " was never deactivated")
		}
		ls, err := l.MemberLoans(ctx, mm.MemberID, false)
		if err != nil {
			return false, err
		}
		loans += len(ls)
	}
	if loans < len(fx.Loans) {
		return false, partial(fmt.Sprintf("%d of %d loans recorded", loans, len(fx.Loans)))
	}
	return true, nil
}

func partial(detail string) error {
	return apperr.ErrConflict("database is partially seeded (" + detail + "), reset it and run seed again")
}
