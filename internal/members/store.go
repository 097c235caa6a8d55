package members

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/db"
)

type Store interface {
	Get(ctx context.Context, id int64) (Member, error)
	GetByEmail(ctx context.Context, email string) (Member, error)
	List(ctx context.Context, f Filter, p Page) ([]Member, int64, error)
	Insert(ctx context.Context, m *Member) error
	SetActive(ctx context.Context, id int64, active bool) error
	UpdateProfile(ctx context.Context, id int64, in ProfileUpdate) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	Counts(ctx context.Context) (Counts, error)
}

type SQLStore struct{ db *sql.DB }

func NewSQLStore(conn *sql.DB) *SQLStore { return &SQLStore{db: conn} }

const memberColumns = `member_id, name, email, phone, password_hash, role, is_active, joined_at`

func scanMember(row interface{ Scan(...any) error }) (Member, error) {
	var (
		m      Member
		active int
	)
	err := row.Scan(&m.MemberID, &m.Name, &m.Email, &m.Phone, &m.PasswordHash, &m.Role, &active, &m.JoinedAt)
	m.Active = active != 0
	m.JoinedAt = m.JoinedAt.UTC()
	return m, err
}

func (s *SQLStore) getBy(ctx context.Context, col string, arg any, label string) (Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members WHERE ` + col + ` = ? LIMIT 1`
	m, err := scanMember(s.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, apperr.ErrNotFound(fmt.Sprintf("member %v not found", label))
		}
		return Member{}, errors.Wrap(err, "select member")
	}
	return m, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (Member, error) {
	return s.getBy(ctx, "member_id", id, fmt.Sprint(id))
}

func (s *SQLStore) GetByEmail(ctx context.Context, email string) (Member, error) {
	return s.getBy(ctx, "email", email, email)
}

func (s *SQLStore) List(ctx context.Context, f Filter, p Page) ([]Member, int64, error) {
	p = p.normalize()

	where := ` WHERE 1=1`
	args := []any{}
	if q := strings.TrimSpace(f.Query); q != "" {
		r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
		pat := "%" + r.Replace(strings.ToLower(q)) + "%"
		where += ` AND (LOWER(name) LIKE ? ESCAPE '!' OR LOWER(email) LIKE ? ESCAPE '!')`
		args = append(args, pat, pat)
	}
	if f.Role != "" {
		where += ` AND role = ?`
		args = append(args, f.Role)
	}
	if f.Active != nil {
		where += ` AND is_active = ?`
		args = append(args, boolInt(*f.Active))
	}

	q := `SELECT ` + memberColumns + ` FROM members` + where + ` ORDER BY member_id ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list members")
	}
	defer rows.Close()

	list := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan member")
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "list members")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count members")
	}
	return list, total, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLStore) Insert(ctx context.Context, m *Member) error {
	const q = `
	INSERT INTO members (name, email, phone, password_hash, role, is_active, joined_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, m.Name, m.Email, m.Phone, m.PasswordHash, m.Role, boolInt(m.Active), m.JoinedAt)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return apperr.ErrConflict("email already registered")
		}
		return errors.Wrap(err, "insert member")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "insert member")
	}
	m.MemberID = id
	return nil
}

// exec1 は1行更新を期待する。0行なら存在確認して NOT_FOUND を返す
func (s *SQLStore) exec1(ctx context.Context, id int64, op, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n == 0 {
		// MySQL は値が変わらないと 0 を返すので存在で判定する
		_, err := s.Get(ctx, id)
		return err
	}
	return nil
}

func (s *SQLStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.exec1(ctx, id, "set member active",
		`UPDATE members SET is_active = ? WHERE member_id = ?`, boolInt(active), id)
}

func (s *SQLStore) UpdateProfile(ctx context.Context, id int64, in ProfileUpdate) error {
	sets := []string{}
	args := []any{}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *in.Phone)
	}
	if len(sets) == 0 {
		_, err := s.Get(ctx, id)
		return err
	}
	q := `UPDATE members SET ` + strings.Join(sets, ", ") + ` WHERE member_id = ?`
	return s.exec1(ctx, id, "update member profile", q, append(args, id)...)
}

func (s *SQLStore) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	return s.exec1(ctx, id, "set password",
		`UPDATE members SET password_hash = ? WHERE member_id = ?`, hash, id)
}

func (s *SQLStore) Counts(ctx context.Context) (Counts, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_active <> 0 THEN 1 ELSE 0 END), 0) FROM members`
	var c Counts
	if err := s.db.QueryRowContext(ctx, q).Scan(&c.Total, &c.Active); err != nil {
		return Counts{}, errors.Wrap(err, "member counts")
	}
	return c, nil
}
