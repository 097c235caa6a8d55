package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusBorrowed Status = "borrowed"
	StatusReturned Status = "returned"
	StatusOverdue  Status = "overdue"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusBorrowed, StatusReturned, StatusOverdue:
		return Status(s), true
	}
	return "", false
}

// Loan は1冊分の貸出記録。Status と（未返却時の）Fine は読み出し時に決まる
type Loan struct {
	LoanID     string
	BookID     int64
	MemberID   int64
	BorrowDate time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	Status     Status
	Fine       decimal.Decimal
	Renewals   int
}

// Active means not yet returned (borrowed or overdue).
func (l Loan) Active() bool { return l.ReturnDate == nil }

// IDMatch limits results to loans whose book or member is in the given sets.
type IDMatch struct {
	BookIDs   []int64
	MemberIDs []int64
}

type LoanFilter struct {
	BookID     int64
	MemberID   int64
	Status     Status // 空なら全件
	ActiveOnly bool
	AnyOf      *IDMatch
}

type Page struct {
	Limit  int
	Offset int
	Order  string // 貸出日順、既定は "desc"
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

type Summary struct {
	Active           int64
	Overdue          int64
	Returned         int64
	OutstandingFines decimal.Decimal
	CollectedFines   decimal.Decimal
}
