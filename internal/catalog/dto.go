package catalog

import "time"

// ===== Requests =====

type CreateBookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	ISBN        string `json:"isbn" binding:"required"`
	Category    string `json:"category"`
	PublishYear int    `json:"publishYear"`
	Description string `json:"description"`
	CoverImage  string `json:"coverImage"`
	TotalCopies *int   `json:"totalCopies"` // 未指定なら 1
}

type UpdateBookRequest struct {
	Title       *string `json:"title,omitempty"`
	Author      *string `json:"author,omitempty"`
	ISBN        *string `json:"isbn,omitempty"`
	Category    *string `json:"category,omitempty"`
	PublishYear *int    `json:"publishYear,omitempty"`
	Description *string `json:"description,omitempty"`
	CoverImage  *string `json:"coverImage,omitempty"`
	TotalCopies *int    `json:"totalCopies,omitempty"` // 貸出中の冊数を下回る値は CONFLICT
}

func (in UpdateBookRequest) empty() bool {
	return in.Title == nil && in.Author == nil && in.ISBN == nil && in.Category == nil &&
		in.PublishYear == nil && in.Description == nil && in.CoverImage == nil && in.TotalCopies == nil
}

// ===== Responses =====

const (
	StatusAvailable  = "available"
	StatusCheckedOut = "checked-out"
)

type BookResponse struct {
	BookID          int64     `json:"bookId"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Category        string    `json:"category"`
	PublishYear     int       `json:"publishYear"`
	Description     string    `json:"description,omitempty"`
	CoverImage      string    `json:"coverImage,omitempty"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	Status          string    `json:"status"` // 単冊モデルの画面向け
	CreatedAt       time.Time `json:"createdAt"`
}

type ListBooksResult struct {
	Items      []BookResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"nextOffset"`
}

func (b Book) toDTO() BookResponse {
	status := StatusCheckedOut
	if b.AvailableCopies > 0 {
		status = StatusAvailable
	}
	return BookResponse{
		BookID:          b.BookID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		Category:        b.Category,
		PublishYear:     b.PublishYear,
		Description:     b.Description,
		CoverImage:      b.CoverImage,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Status:          status,
		CreatedAt:       b.CreatedAt,
	}
}
