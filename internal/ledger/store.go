package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/db"
)

// Store は追記型。既存行への書き込みは返却と延長の2つだけで、どちらも
// returned_at IS NULL を条件にした1文の UPDATE
type Store interface {
	Insert(ctx context.Context, l Loan) error
	Get(ctx context.Context, id string) (Loan, error)
	MarkReturned(ctx context.Context, id string, at time.Time, fine decimal.Decimal) error
	Extend(ctx context.Context, id string, due time.Time, renewals int) error
	List(ctx context.Context, f LoanFilter, now time.Time, p Page) ([]Loan, int64, error)
	CountActive(ctx context.Context, memberID int64) (int, error)
	Counts(ctx context.Context, now time.Time) (active, overdue, returned int64, err error)
	OverdueDueDates(ctx context.Context, now time.Time) ([]time.Time, error)
	ReturnedFines(ctx context.Context) (decimal.Decimal, error)
}

type SQLStore struct{ db *sql.DB }

func NewSQLStore(conn *sql.DB) *SQLStore { return &SQLStore{db: conn} }

const loanColumns = `loan_id, book_id, member_id, borrowed_at, due_at, returned_at, fine, renewals`

func scanLoan(row interface{ Scan(...any) error }) (Loan, error) {
	var (
		l        Loan
		returned sql.NullTime
	)
	err := row.Scan(&l.LoanID, &l.BookID, &l.MemberID, &l.BorrowDate, &l.DueDate, &returned, &l.Fine, &l.Renewals)
	if err != nil {
		return Loan{}, err
	}
	l.BorrowDate = l.BorrowDate.UTC()
	l.DueDate = l.DueDate.UTC()
	if returned.Valid {
		t := returned.Time.UTC()
		l.ReturnDate = &t
		l.Status = StatusReturned
	}
	return l, nil
}

func (s *SQLStore) Insert(ctx context.Context, l Loan) error {
	const q = `
	INSERT INTO loans (loan_id, book_id, member_id, borrowed_at, due_at, returned_at, fine, renewals)
	VALUES (?, ?, ?, ?, ?, NULL, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, l.LoanID, l.BookID, l.MemberID, l.BorrowDate, l.DueDate, l.Fine, l.Renewals)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return apperr.ErrConflict("loan id already exists")
		}
		if db.IsForeignKeyViolation(err) {
			return apperr.ErrNotFound("book or member not found")
		}
		return errors.Wrap(err, "insert loan")
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE loan_id = ?`
	l, err := scanLoan(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Loan{}, apperr.ErrNotFound(fmt.Sprintf("loan %s not found", id))
		}
		return Loan{}, errors.Wrap(err, "select loan")
	}
	return l, nil
}

func (s *SQLStore) MarkReturned(ctx context.Context, id string, at time.Time, fine decimal.Decimal) error {
	const q = `UPDATE loans SET returned_at = ?, fine = ? WHERE loan_id = ? AND returned_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, at, fine, id)
	if err != nil {
		return errors.Wrap(err, "mark returned")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "mark returned")
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return apperr.ErrAlreadyReturned(fmt.Sprintf("loan %s already returned", id))
}

// Extend は renewals が読んだ値のままの時だけ期限を延ばす（同時延長は片方だけ通る）
func (s *SQLStore) Extend(ctx context.Context, id string, due time.Time, renewals int) error {
	const q = `UPDATE loans SET due_at = ?, renewals = renewals + 1 WHERE loan_id = ? AND returned_at IS NULL AND renewals = ?`
	res, err := s.db.ExecContext(ctx, q, due, id, renewals)
	if err != nil {
		return errors.Wrap(err, "extend loan")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "extend loan")
	}
	if n == 1 {
		return nil
	}
	l, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !l.Active() {
		return apperr.ErrAlreadyReturned(fmt.Sprintf("loan %s already returned", id))
	}
	return apperr.ErrRenewNotAllowed(fmt.Sprintf("loan %s was renewed concurrently", id))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func whereClause(f LoanFilter, now time.Time) (string, []any) {
	var sb strings.Builder
	args := []any{}
	sb.WriteString(` WHERE 1=1`)

	if f.BookID > 0 {
		sb.WriteString(` AND book_id = ?`)
		args = append(args, f.BookID)
	}
	if f.MemberID > 0 {
		sb.WriteString(` AND member_id = ?`)
		args = append(args, f.MemberID)
	}
	if f.ActiveOnly {
		sb.WriteString(` AND returned_at IS NULL`)
	}
	switch f.Status {
	case StatusReturned:
		sb.WriteString(` AND returned_at IS NOT NULL`)
	case StatusOverdue:
		sb.WriteString(` AND returned_at IS NULL AND due_at < ?`)
		args = append(args, now)
	case StatusBorrowed:
		sb.WriteString(` AND returned_at IS NULL AND due_at >= ?`)
		args = append(args, now)
	}
	if m := f.AnyOf; m != nil {
		parts := []string{}
		if len(m.BookIDs) > 0 {
			parts = append(parts, `book_id IN (`+placeholders(len(m.BookIDs))+`)`)
			for _, id := range m.BookIDs {
				args = append(args, id)
			}
		}
		if len(m.MemberIDs) > 0 {
			parts = append(parts, `member_id IN (`+placeholders(len(m.MemberIDs))+`)`)
			for _, id := range m.MemberIDs {
				args = append(args, id)
			}
		}
		if len(parts) == 0 {
			sb.WriteString(` AND 1=0`)
		} else {
			sb.WriteString(` AND (` + strings.Join(parts, ` OR `) + `)`)
		}
	}
	return sb.String(), args
}

// List はページと総件数を同じスナップショットから読む
func (s *SQLStore) List(ctx context.Context, f LoanFilter, now time.Time, p Page) ([]Loan, int64, error) {
	p = p.normalize()
	where, args := whereClause(f, now)

	order := "DESC"
	if p.Order == "asc" {
		order = "ASC"
	}
	q := `SELECT ` + loanColumns + ` FROM loans` + where +
		` ORDER BY borrowed_at ` + order + `, loan_id ` + order + ` LIMIT ? OFFSET ?`

	var (
		list  []Loan
		total int64
	)
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		rows, err := tx.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
		if err != nil {
			return errors.Wrap(err, "list loans")
		}
		defer rows.Close()

		list = []Loan{}
		for rows.Next() {
			l, err := scanLoan(rows)
			if err != nil {
				return errors.Wrap(err, "scan loan")
			}
			list = append(list, l)
		}
		if err := rows.Err(); err != nil {
			return errors.Wrap(err, "list loans")
		}
		return errors.Wrap(
			tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans`+where, args...).Scan(&total),
			"count loans")
	})
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *SQLStore) CountActive(ctx context.Context, memberID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE member_id = ? AND returned_at IS NULL`, memberID).Scan(&n)
	return n, errors.Wrap(err, "count active loans")
}

func (s *SQLStore) Counts(ctx context.Context, now time.Time) (active, overdue, returned int64, err error) {
	const q = `
	SELECT
		COALESCE(SUM(CASE WHEN returned_at IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN returned_at IS NULL AND due_at < ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN returned_at IS NOT NULL THEN 1 ELSE 0 END), 0)
	FROM loans`
	err = s.db.QueryRowContext(ctx, q, now).Scan(&active, &overdue, &returned)
	return active, overdue, returned, errors.Wrap(err, "loan counts")
}

func (s *SQLStore) OverdueDueDates(ctx context.Context, now time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT due_at FROM loans WHERE returned_at IS NULL AND due_at < ?`, now)
	if err != nil {
		return nil, errors.Wrap(err, "overdue loans")
	}
	defer rows.Close()

	out := []time.Time{}
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(err, "scan due date")
		}
		out = append(out, t.UTC())
	}
	return out, errors.Wrap(rows.Err(), "overdue loans")
}

// 金額は Go 側で足す（SQLite は TEXT なので SUM が浮動小数になる）
func (s *SQLStore) ReturnedFines(ctx context.Context) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fine FROM loans WHERE returned_at IS NOT NULL`)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "returned fines")
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var f decimal.Decimal
		if err := rows.Scan(&f); err != nil {
			return decimal.Zero, errors.Wrap(err, "scan fine")
		}
		sum = sum.Add(f)
	}
	return sum, errors.Wrap(rows.Err(), "returned fines")
}
