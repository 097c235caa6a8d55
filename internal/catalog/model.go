package catalog

import "time"

// Book は books テーブルの1行（1タイトル分、冊数を持つ）
type Book struct {
	BookID          int64
	Title           string
	Author          string
	ISBN            string
	Category        string
	PublishYear     int
	Description     string
	CoverImage      string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
}

// OnLoan is the number of copies currently lent out.
func (b Book) OnLoan() int { return b.TotalCopies - b.AvailableCopies }

// 一覧の絞り込み条件
type Filter struct {
	Query     string // title / author / isbn の部分一致
	Category  string
	Available *bool
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"（タイトル順）
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
	if p.Order != "desc" {
		p.Order = "asc"
	}
	return p
}

type Totals struct {
	Titles          int64
	TotalCopies     int64
	AvailableCopies int64
}
