package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/db"
)

// Store persists books. ReserveCopy/ReleaseCopy are the only paths that move
// available_copies by one; Update shifts it together with total_copies.
type Store interface {
	Get(ctx context.Context, id int64) (Book, error)
	List(ctx context.Context, f Filter, p Page) ([]Book, int64, error)
	Insert(ctx context.Context, b *Book) error
	Update(ctx context.Context, id int64, in UpdateBookRequest) (Book, error)
	ReserveCopy(ctx context.Context, id int64) error
	ReleaseCopy(ctx context.Context, id int64) error
	Categories(ctx context.Context) ([]string, error)
	Totals(ctx context.Context) (Totals, error)
}

type SQLStore struct{ db *sql.DB }

func NewSQLStore(conn *sql.DB) *SQLStore { return &SQLStore{db: conn} }

const bookColumns = `book_id, title, author, isbn, category, publish_year, description, cover_image, total_copies, available_copies, created_at`

type scanner interface{ Scan(dest ...any) error }

func scanBook(row scanner) (Book, error) {
	var b Book
	err := row.Scan(
		&b.BookID, &b.Title, &b.Author, &b.ISBN, &b.Category, &b.PublishYear,
		&b.Description, &b.CoverImage, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt,
	)
	b.CreatedAt = b.CreatedAt.UTC()
	return b, err
}

func (s *SQLStore) Get(ctx context.Context, id int64) (Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books WHERE book_id = ?`
	b, err := scanBook(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Book{}, apperr.ErrNotFound(fmt.Sprintf("book %d not found", id))
		}
		return Book{}, errors.Wrap(err, "select book")
	}
	return b, nil
}

// LIKE のエスケープ文字は MySQL / SQLite 共通で使える '!' にする
func likePattern(q string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}

func whereClause(f Filter) (string, []any) {
	var sb strings.Builder
	args := []any{}
	sb.WriteString(` WHERE 1=1`)

	if q := strings.TrimSpace(f.Query); q != "" {
		sb.WriteString(` AND (LOWER(title) LIKE ? ESCAPE '!' OR LOWER(author) LIKE ? ESCAPE '!' OR LOWER(isbn) LIKE ? ESCAPE '!')`)
		p := likePattern(q)
		args = append(args, p, p, p)
	}
	if f.Category != "" {
		sb.WriteString(` AND category = ?`)
		args = append(args, f.Category)
	}
	if f.Available != nil {
		if *f.Available {
			sb.WriteString(` AND available_copies > 0`)
		} else {
			sb.WriteString(` AND available_copies = 0`)
		}
	}
	return sb.String(), args
}

func (s *SQLStore) List(ctx context.Context, f Filter, p Page) ([]Book, int64, error) {
	p = p.normalize()
	where, args := whereClause(f)

	order := "ASC"
	if p.Order == "desc" {
		order = "DESC"
	}
	q := `SELECT ` + bookColumns + ` FROM books` + where +
		` ORDER BY title ` + order + `, book_id ` + order + ` LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list books")
	}
	defer rows.Close()

	list := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan book")
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "list books")
	}

	// 総件数（同じ WHERE を使う）
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count books")
	}
	return list, total, nil
}

func (s *SQLStore) Insert(ctx context.Context, b *Book) error {
	const q = `
	INSERT INTO books
	(title, author, isbn, category, publish_year, description, cover_image, total_copies, available_copies, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		b.Title, b.Author, b.ISBN, b.Category, b.PublishYear, b.Description, b.CoverImage,
		b.TotalCopies, b.AvailableCopies, b.CreatedAt,
	)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return apperr.ErrConflict("isbn already exists")
		}
		return errors.Wrap(err, "insert book")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "insert book")
	}
	b.BookID = id
	return nil
}

func (s *SQLStore) Update(ctx context.Context, id int64, in UpdateBookRequest) (Book, error) {
	// 動的アップデート
	sets := []string{}
	args := []any{}
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Author != nil {
		sets = append(sets, "author = ?")
		args = append(args, *in.Author)
	}
	if in.ISBN != nil {
		sets = append(sets, "isbn = ?")
		args = append(args, *in.ISBN)
	}
	if in.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *in.Category)
	}
	if in.PublishYear != nil {
		sets = append(sets, "publish_year = ?")
		args = append(args, *in.PublishYear)
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.CoverImage != nil {
		sets = append(sets, "cover_image = ?")
		args = append(args, *in.CoverImage)
	}

	where := ` WHERE book_id = ?`
	whereArgs := []any{id}
	if in.TotalCopies != nil {
		// MySQL は SET を左から評価するので available を先に書く（SQLite は常に旧値）
		sets = append(sets, "available_copies = available_copies + (? - total_copies)", "total_copies = ?")
		args = append(args, *in.TotalCopies, *in.TotalCopies)
		where += ` AND available_copies + (? - total_copies) >= 0`
		whereArgs = append(whereArgs, *in.TotalCopies)
	}
	if len(sets) == 0 {
		// 変更なしでも現行値を返す
		return s.Get(ctx, id)
	}

	q := `UPDATE books SET ` + strings.Join(sets, ", ") + where
	res, err := s.db.ExecContext(ctx, q, append(args, whereArgs...)...)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return Book{}, apperr.ErrConflict("isbn already exists")
		}
		return Book{}, errors.Wrap(err, "update book")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return Book{}, errors.Wrap(err, "update book")
	}
	if aff == 0 {
		// 存在しないのか冊数条件で弾かれたのかを見分ける。値が同じ更新も MySQL では 0 行になる
		cur, err := s.Get(ctx, id)
		if err != nil {
			return Book{}, err
		}
		if in.TotalCopies != nil && cur.AvailableCopies+(*in.TotalCopies-cur.TotalCopies) < 0 {
			return Book{}, apperr.ErrConflict("totalCopies cannot be lower than the copies on loan")
		}
		return cur, nil
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) ReserveCopy(ctx context.Context, id int64) error {
	const q = `UPDATE books SET available_copies = available_copies - 1 WHERE book_id = ? AND available_copies > 0`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return errors.Wrap(err, "reserve copy")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reserve copy")
	}
	if aff == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return apperr.ErrNoCopies(fmt.Sprintf("no copies of book %d available", id))
}

func (s *SQLStore) ReleaseCopy(ctx context.Context, id int64) error {
	const q = `UPDATE books SET available_copies = available_copies + 1 WHERE book_id = ? AND available_copies < total_copies`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return errors.Wrap(err, "release copy")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "release copy")
	}
	if aff == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return apperr.ErrInconsistent(fmt.Sprintf("book %d: release would exceed totalCopies", id))
}

func (s *SQLStore) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM books WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scan category")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "list categories")
}

func (s *SQLStore) Totals(ctx context.Context) (Totals, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(total_copies), 0), COALESCE(SUM(available_copies), 0) FROM books`
	var t Totals
	if err := s.db.QueryRowContext(ctx, q).Scan(&t.Titles, &t.TotalCopies, &t.AvailableCopies); err != nil {
		return Totals{}, errors.Wrap(err, "book totals")
	}
	return t, nil
}
