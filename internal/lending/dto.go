package lending

import (
	"time"

	"LIBRA-backend/internal/ledger"
)

// LoanView is a loan with the names the screens show next to it.
type LoanView struct {
	ledger.Loan
	BookTitle   string
	BookAuthor  string
	BookCover   string
	MemberName  string
	DaysOverdue int
}

type BorrowRequest struct {
	BookID   int64 `json:"bookId" binding:"required"`
	MemberID int64 `json:"memberId"` // 省略時は本人
}

type LoanResponse struct {
	LoanID         string     `json:"loanId"`
	BookID         int64      `json:"bookId"`
	BookTitle      string     `json:"bookTitle"`
	BookAuthor     string     `json:"bookAuthor"`
	BookCoverImage string     `json:"bookCoverImage,omitempty"`
	MemberID       int64      `json:"memberId"`
	MemberName     string     `json:"memberName"`
	BorrowDate     time.Time  `json:"borrowDate"`
	DueDate        time.Time  `json:"dueDate"`
	ReturnDate     *time.Time `json:"returnDate,omitempty"`
	Status         string     `json:"status"`
	Fine           float64    `json:"fine"`
	DaysOverdue    int        `json:"daysOverdue"`
	Renewals       int        `json:"renewals"`
}

type ListLoansResult struct {
	Items      []LoanResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"nextOffset"`
}

type StatsResponse struct {
	TotalTitles      int64   `json:"totalTitles"`
	TotalCopies      int64   `json:"totalCopies"`
	AvailableCopies  int64   `json:"availableCopies"`
	OnLoan           int64   `json:"onLoan"`
	Overdue          int64   `json:"overdue"`
	ReturnedLoans    int64   `json:"returnedLoans"`
	Members          int64   `json:"members"`
	ActiveMembers    int64   `json:"activeMembers"`
	OutstandingFines float64 `json:"outstandingFines"`
	CollectedFines   float64 `json:"collectedFines"`
}

func (v LoanView) toDTO() LoanResponse {
	return LoanResponse{
		LoanID:         v.LoanID,
		BookID:         v.BookID,
		BookTitle:      v.BookTitle,
		BookAuthor:     v.BookAuthor,
		BookCoverImage: v.BookCover,
		MemberID:       v.MemberID,
		MemberName:     v.MemberName,
		BorrowDate:     v.BorrowDate,
		DueDate:        v.DueDate,
		ReturnDate:     v.ReturnDate,
		Status:         string(v.Status),
		Fine:           v.Fine.Round(2).InexactFloat64(),
		DaysOverdue:    v.DaysOverdue,
		Renewals:       v.Renewals,
	}
}

func toDTOs(views []LoanView) []LoanResponse {
	out := make([]LoanResponse, 0, len(views))
	for _, v := range views {
		out = append(out, v.toDTO())
	}
	return out
}

func (s Stats) toDTO() StatsResponse {
	return StatsResponse{
		TotalTitles:      s.TotalTitles,
		TotalCopies:      s.TotalCopies,
		AvailableCopies:  s.AvailableCopies,
		OnLoan:           s.OnLoan,
		Overdue:          s.Overdue,
		ReturnedLoans:    s.ReturnedLoans,
		Members:          s.Members,
		ActiveMembers:    s.ActiveMembers,
		OutstandingFines: s.OutstandingFines.Round(2).InexactFloat64(),
		CollectedFines:   s.CollectedFines.Round(2).InexactFloat64(),
	}
}
