package lending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"LIBRA-backend/internal/catalog"
	"LIBRA-backend/internal/ledger"
	"LIBRA-backend/internal/members"
	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/clock"
	"LIBRA-backend/internal/platform/db/dbtest"
)

const day = 24 * time.Hour

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	svc     *Service
	books   *catalog.Service
	members *members.Service
	ledger  *ledger.Ledger
	clk     *clock.Manual
}

func eachEnv(t *testing.T, fn func(t *testing.T, e *env)) {
	t.Run("sqlite", func(t *testing.T) {
		conn := dbtest.Open(t)
		fn(t, newEnv(catalog.NewSQLStore(conn), members.NewSQLStore(conn), ledger.NewSQLStore(conn)))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, newEnv(catalog.NewMemStore(), members.NewMemStore(), ledger.NewMemStore()))
	})
}

func newEnv(bs catalog.Store, ms members.Store, ls ledger.Store) *env {
	clk := clock.NewManual(t0)
	e := &env{
		books:   catalog.NewService(bs, clk),
		members: members.NewService(ms, clk).WithHashCost(bcrypt.MinCost),
		ledger:  ledger.New(ls, ledger.DefaultPolicy(), clk),
		clk:     clk,
	}
	e.svc = NewService(e.books, e.members, e.ledger, clk)
	return e
}

func (e *env) addBook(t *testing.T, isbn string, copies int) catalog.Book {
	t.Helper()
	b, err := e.books.Create(context.Background(), catalog.CreateBookRequest{
		Title: "Book " + isbn, Author: "Author", ISBN: isbn, TotalCopies: &copies,
	})
	require.NoError(t, err)
	return b
}

func (e *env) addMember(t *testing.T, email string) members.Member {
	t.Helper()
	m, err := e.members.Create(context.Background(), members.NewMember{
		Name: "Member " + email, Email: email, Password: "secret1",
	})
	require.NoError(t, err)
	return m
}

func (e *env) available(t *testing.T, id int64) int {
	t.Helper()
	b, err := e.books.Get(context.Background(), id)
	require.NoError(t, err)
	return b.AvailableCopies
}

// assertStock は在庫 = 総冊数 − 貸出中の件数 を台帳と突き合わせる
func (e *env) assertStock(t *testing.T, id int64) {
	t.Helper()
	b, err := e.books.Get(context.Background(), id)
	require.NoError(t, err)
	active, err := e.ledger.ActiveLoansForBook(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, b.TotalCopies-len(active), b.AvailableCopies, "book %d", id)
}

func TestCheckout_ThenReturnRestoresAvailability(t *testing.T) {
	eachEnv(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		b := e.addBook(t, "111", 3)
		m := e.addMember(t, "a@x.y")

		loan, err := e.svc.Checkout(ctx, b.BookID, m.MemberID, t0)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusBorrowed, loan.Status)
		assert.Equal(t, 2, e.available(t, b.BookID))

		ret, err := e.svc.ReturnBook(ctx, loan.LoanID, t0)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusReturned, ret.Status)
		assert.True(t, ret.Fine.IsZero())
		assert.Equal(t, 3, e.available(t, b.BookID))
	})
}

func TestCheckout_Validation(t *testing.T) {
	eachEnv(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		b := e.addBook(t, "111", 1)
		m := e.addMember(t, "a@x.y")

		_, err := e.svc.Checkout(ctx, 0, m.MemberID, t0)
		assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

		_, err = e.svc.Checkout(ctx, b.BookID, 9999, t0)
		assert.True(t, errors.Is(err, apperr.NotFound))

		_, err = e.svc.Checkout(ctx, 9999, m.MemberID, t0)
		assert.True(t, errors.Is(err, apperr.NotFound))

		_, err = e.members.SetActive(ctx, m.MemberID, false)
		require.NoError(t, err)
		_, err = e.svc.Checkout(ctx, b.BookID, m.MemberID, t0)
		assert.True(t, errors.Is(err, apperr.MemberInactive))

		// どの失敗でも在庫は動かない
		assert.Equal(t, 1, e.available(t, b.BookID))
		s, err := e.svc.Stats(ctx, t0)
		require.NoError(t, err)
		assert.Zero(t, s.OnLoan)
	})
}

func TestLendingScenario(t *testing.T) {
	eachEnv(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		b := e.addBook(t, "222", 2)
		m1 := e.addMember(t, "a@x.y")
		m2 := e.addMember(t, "b@x.y")
		m3 := e.addMember(t, "c@x.y")

		loan1, err := e.svc.Checkout(ctx, b.BookID, m1.MemberID, t0)
		require.NoError(t, err)
		_, err = e.svc.Checkout(ctx, b.BookID, m2.MemberID, t0)
		require.NoError(t, err)
		assert.Equal(t, 0, e.available(t, b.BookID))

		_, err = e.svc.Checkout(ctx, b.BookID, m3.MemberID, t0)
		assert.True(t, errors.Is(err, apperr.NoCopiesAvailable))
		assert.Equal(t, 0, e.available(t, b.BookID))
		e.assertStock(t, b.BookID)

		// 20日目に返却: 期限14日、6日遅れ × 0.50
		at := t0.Add(20 * day)
		e.clk.Set(at)
		q, err := e.svc.Quote(ctx, loan1.LoanID, at)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusOverdue, q.Status)
		assert.Equal(t, 6, q.DaysOverdue)
		assert.Equal(t, "3.00", q.Fine.StringFixed(2))

		ret, err := e.svc.ReturnBook(ctx, loan1.LoanID, at)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusReturned, ret.Status)
		assert.Equal(t, "3.00", ret.Fine.StringFixed(2))
		assert.Equal(t, 1, e.available(t, b.BookID))
		e.assertStock(t, b.BookID)

		// 二重返却は在庫を増やさない
		_, err = e.svc.ReturnBook(ctx, loan1.LoanID, at)
		assert.True(t, errors.Is(err, apperr.AlreadyReturned))
		assert.Equal(t, 1, e.available(t, b.BookID))
		e.assertStock(t, b.BookID)

		// 空いた1冊を m3 が借りて返す
		loan3, err := e.svc.Checkout(ctx, b.BookID, m3.MemberID, at)
		require.NoError(t, err)
		e.assertStock(t, b.BookID)
		_, err = e.svc.ReturnBook(ctx, loan3.LoanID, at)
		require.NoError(t, err)
		e.assertStock(t, b.BookID)

		// 返却後しばらく経っても罰金は固定
		e.clk.Set(at.Add(10 * day))
		v, err := e.svc.Loan(ctx, loan1.LoanID)
		require.NoError(t, err)
		assert.Equal(t, "3.00", v.Fine.StringFixed(2))
		assert.Equal(t, "Member a@x.y", v.MemberName)
		assert.Equal(t, "Book 222", v.BookTitle)

		s, err := e.svc.Stats(ctx, at)
		require.NoError(t, err)
		assert.Equal(t, int64(1), s.OnLoan)
		assert.Equal(t, int64(1), s.Overdue)
		assert.Equal(t, int64(2), s.ReturnedLoans)
		assert.Equal(t, int64(2), s.TotalCopies)
		assert.Equal(t, int64(1), s.AvailableCopies)
		assert.Equal(t, int64(3), s.Members)
		assert.Equal(t, "3.00", s.CollectedFines.StringFixed(2))
		assert.Equal(t, "3.00", s.OutstandingFines.StringFixed(2))
		e.assertStock(t, b.BookID)
	})
}

func TestCheckout_ConcurrentSingleCopy(t *testing.T) {
	eachEnv(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		b := e.addBook(t, "333", 1)
		ids := make([]int64, 8)
		for i := range ids {
			ids[i] = e.addMember(t, string(rune('a'+i))+"@x.y").MemberID
		}

		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			ok  int
			bad int
		)
		for _, id := range ids {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := e.svc.Checkout(ctx, b.BookID, id, t0)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if errors.Is(err, apperr.NoCopiesAvailable) {
					bad++
				}
			}(id)
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, len(ids)-1, bad)
		assert.Equal(t, 0, e.available(t, b.BookID))
		e.assertStock(t, b.BookID)
	})
}

func TestReturn_ConcurrentOnlyOneReleases(t *testing.T) {
	eachEnv(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		b := e.addBook(t, "444", 2)
		m := e.addMember(t, "a@x.y")
		loan, err := e.svc.Checkout(ctx, b.BookID, m.MemberID, t0)
		require.NoError(t, err)

		var (
			wg sync.WaitGroup
			mu sync.Mutex
			ok int
		)
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := e.svc.ReturnBook(ctx, loan.LoanID, t0); err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, 2, e.available(t, b.BookID))
		e.assertStock(t, b.BookID)
	})
}

func TestRenew(t *testing.T) {
	eachEnv(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		b := e.addBook(t, "555", 1)
		m := e.addMember(t, "a@x.y")
		loan, err := e.svc.Checkout(ctx, b.BookID, m.MemberID, t0)
		require.NoError(t, err)

		e.clk.Set(t0.Add(10 * day))
		got, err := e.svc.Renew(ctx, loan.LoanID, e.clk.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, got.Renewals)
		assert.True(t, got.DueDate.Equal(loan.DueDate.Add(14*day)))

		_, err = e.svc.Renew(ctx, loan.LoanID, e.clk.Now())
		assert.True(t, errors.Is(err, apperr.RenewNotAllowed))
	})
}

func TestListings(t *testing.T) {
	eachEnv(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		gatsby, err := e.books.Create(ctx, catalog.CreateBookRequest{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "g"})
		require.NoError(t, err)
		hobbit, err := e.books.Create(ctx, catalog.CreateBookRequest{Title: "The Hobbit", Author: "J.R.R. Tolkien", ISBN: "h"})
		require.NoError(t, err)
		alice := e.addMember(t, "alice@x.y")
		bob := e.addMember(t, "bob@x.y")

		l1, err := e.svc.Checkout(ctx, gatsby.BookID, alice.MemberID, t0)
		require.NoError(t, err)
		_, err = e.svc.Checkout(ctx, hobbit.BookID, bob.MemberID, t0.Add(time.Hour))
		require.NoError(t, err)

		views, total, err := e.svc.CurrentLoans(ctx, "", "", ledger.Page{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, views, 2)

		views, total, err = e.svc.CurrentLoans(ctx, "gatsby", "", ledger.Page{})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		assert.Equal(t, l1.LoanID, views[0].LoanID)

		views, _, err = e.svc.CurrentLoans(ctx, "BOB@", "", ledger.Page{})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "The Hobbit", views[0].BookTitle)

		_, total, err = e.svc.CurrentLoans(ctx, "nothing matches", "", ledger.Page{})
		require.NoError(t, err)
		assert.Zero(t, total)

		_, _, err = e.svc.CurrentLoans(ctx, "", ledger.StatusReturned, ledger.Page{})
		assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

		_, err = e.svc.ReturnBook(ctx, l1.LoanID, t0.Add(day))
		require.NoError(t, err)

		cur, err := e.svc.MemberLoans(ctx, alice.MemberID, true)
		require.NoError(t, err)
		assert.Empty(t, cur)
		hist, err := e.svc.MemberLoans(ctx, alice.MemberID, false)
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.Equal(t, ledger.StatusReturned, hist[0].Status)

		_, err = e.svc.MemberLoans(ctx, 9999, false)
		assert.True(t, errors.Is(err, apperr.NotFound))

		views, total, err = e.svc.History(ctx, ledger.LoanFilter{Status: ledger.StatusReturned}, ledger.Page{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "Member alice@x.y", views[0].MemberName)
	})
}
