package catalog

import (
	"context"
	"strings"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/clock"
)

type Service struct {
	store Store
	clock clock.Clock
}

func NewService(store Store, clk clock.Clock) *Service {
	return &Service{store: store, clock: clk}
}

func (s *Service) Get(ctx context.Context, id int64) (Book, error) {
	if id <= 0 {
		return Book{}, apperr.ErrInvalid("bookId must be positive")
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, p Page) ([]Book, int64, error) {
	return s.store.List(ctx, f, p.normalize())
}

// ReserveCopy takes one copy off the shelf or fails with NO_COPIES_AVAILABLE
// without waiting.
func (s *Service) ReserveCopy(ctx context.Context, id int64) error {
	return s.store.ReserveCopy(ctx, id)
}

// ReleaseCopy puts one copy back. Going above totalCopies is reported as
// INTERNAL_INCONSISTENCY.
func (s *Service) ReleaseCopy(ctx context.Context, id int64) error {
	return s.store.ReleaseCopy(ctx, id)
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.store.Categories(ctx)
}

func (s *Service) Totals(ctx context.Context) (Totals, error) {
	return s.store.Totals(ctx)
}

// ===== admin =====

func (s *Service) Create(ctx context.Context, in CreateBookRequest) (Book, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	isbn := strings.TrimSpace(in.ISBN)
	if title == "" || author == "" || isbn == "" {
		return Book{}, apperr.ErrInvalid("title, author, isbn are required")
	}
	copies := 1
	if in.TotalCopies != nil {
		copies = *in.TotalCopies
	}
	if copies < 0 {
		return Book{}, apperr.ErrInvalid("totalCopies must be >= 0")
	}
	if in.PublishYear < 0 {
		return Book{}, apperr.ErrInvalid("publishYear must be >= 0")
	}

	b := Book{
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		Category:        strings.TrimSpace(in.Category),
		PublishYear:     in.PublishYear,
		Description:     in.Description,
		CoverImage:      in.CoverImage,
		TotalCopies:     copies,
		AvailableCopies: copies,
		CreatedAt:       clock.Stamp(s.clock.Now()),
	}
	if err := s.store.Insert(ctx, &b); err != nil {
		return Book{}, err
	}
	return b, nil
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateBookRequest) (Book, error) {
	if id <= 0 {
		return Book{}, apperr.ErrInvalid("bookId must be positive")
	}
	if in.empty() {
		return Book{}, apperr.ErrInvalid("no fields to update")
	}
	for name, v := range map[string]*string{"title": in.Title, "author": in.Author, "isbn": in.ISBN} {
		if v != nil {
			t := strings.TrimSpace(*v)
			if t == "" {
				return Book{}, apperr.ErrInvalid(name + " must not be empty")
			}
			*v = t
		}
	}
	if in.TotalCopies != nil && *in.TotalCopies < 0 {
		return Book{}, apperr.ErrInvalid("totalCopies must be >= 0")
	}
	if in.PublishYear != nil && *in.PublishYear < 0 {
		return Book{}, apperr.ErrInvalid("publishYear must be >= 0")
	}
	return s.store.Update(ctx, id, in)
}
