package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

type Policy struct {
	LoanPeriod  time.Duration
	FinePerDay  decimal.Decimal
	MaxRenewals int
}

func DefaultPolicy() Policy {
	return Policy{
		LoanPeriod:  14 * day,
		FinePerDay:  decimal.RequireFromString("0.50"),
		MaxRenewals: 1,
	}
}

// DaysLate は期限を過ぎた「満」日数。期限ちょうどや期限前は 0
func (p Policy) DaysLate(due, at time.Time) int {
	if !at.After(due) {
		return 0
	}
	return int(at.Sub(due) / day)
}

func (p Policy) Fine(due, at time.Time) decimal.Decimal {
	return p.FinePerDay.Mul(decimal.NewFromInt(int64(p.DaysLate(due, at))))
}

// RefreshStatus derives status and fine as of now. Returned loans keep the fine
// fixed at return; every read path goes through here.
func (p Policy) RefreshStatus(l Loan, now time.Time) Loan {
	switch {
	case l.ReturnDate != nil:
		l.Status = StatusReturned
	case now.After(l.DueDate):
		l.Status = StatusOverdue
		l.Fine = p.Fine(l.DueDate, now)
	default:
		l.Status = StatusBorrowed
		l.Fine = decimal.Zero
	}
	return l
}

// DaysOverdue is the day count behind the current fine.
func (p Policy) DaysOverdue(l Loan, now time.Time) int {
	if l.ReturnDate != nil {
		return p.DaysLate(l.DueDate, *l.ReturnDate)
	}
	return p.DaysLate(l.DueDate, now)
}
