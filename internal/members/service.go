package members

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/clock"
)

const minPasswordLen = 6

// gin の binding と同じ validator。CLI や seed からの登録も同じ規則で検査する
var validate = validator.New()

type Service struct {
	store Store
	clock clock.Clock
	cost  int
}

func NewService(store Store, clk clock.Clock) *Service {
	return &Service{store: store, clock: clk, cost: bcrypt.DefaultCost}
}

// WithHashCost lowers the bcrypt cost (tests and demo seeding).
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (s *Service) Get(ctx context.Context, id int64) (Member, error) {
	if id <= 0 {
		return Member{}, apperr.ErrInvalid("memberId must be positive")
	}
	return s.store.Get(ctx, id)
}

// IsActive は存在しない会員に NOT_FOUND を返す
func (s *Service) IsActive(ctx context.Context, id int64) (bool, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return m.Active, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (Member, error) {
	return s.store.GetByEmail(ctx, normalizeEmail(email))
}

func (s *Service) List(ctx context.Context, f Filter, p Page) ([]Member, int64, error) {
	return s.store.List(ctx, f, p.normalize())
}

func (s *Service) Count(ctx context.Context) (Counts, error) {
	return s.store.Counts(ctx)
}

func (s *Service) Create(ctx context.Context, in NewMember) (Member, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" {
		return Member{}, apperr.ErrInvalid("name and email are required")
	}
	if err := validate.Var(email, "email"); err != nil {
		return Member{}, apperr.ErrInvalid("invalid email")
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return Member{}, apperr.ErrInvalid("role must be admin or user")
	}
	if len(in.Password) < minPasswordLen {
		return Member{}, apperr.ErrInvalid("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Member{}, err
	}

	m := Member{
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		JoinedAt:     clock.Stamp(s.clock.Now()),
	}
	if err := s.store.Insert(ctx, &m); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Authenticate checks email/password. Deactivated members can still sign in;
// deactivation only blocks new checkouts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Member, error) {
	m, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.NotFound) {
			return Member{}, apperr.ErrUnauthenticated("invalid email or password")
		}
		return Member{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return Member{}, apperr.ErrUnauthenticated("invalid email or password")
	}
	return m, nil
}

func (s *Service) SetActive(ctx context.Context, id int64, active bool) (Member, error) {
	if id <= 0 {
		return Member{}, apperr.ErrInvalid("memberId must be positive")
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return Member{}, err
	}
	return s.store.Get(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id int64, in ProfileUpdate) (Member, error) {
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if n == "" {
			return Member{}, apperr.ErrInvalid("name must not be empty")
		}
		in.Name = &n
	}
	if in.Phone != nil {
		p := strings.TrimSpace(*in.Phone)
		in.Phone = &p
	}
	if err := s.store.UpdateProfile(ctx, id, in); err != nil {
		return Member{}, err
	}
	return s.store.Get(ctx, id)
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(current)); err != nil {
		return apperr.ErrInvalid("current password is incorrect")
	}
	if len(next) < minPasswordLen {
		return apperr.ErrInvalid("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}
	return s.store.SetPasswordHash(ctx, id, string(hash))
}
