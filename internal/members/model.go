package members

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Member は members テーブルの1行。PasswordHash は外に出さない
type Member struct {
	MemberID     int64
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
	Active       bool
	JoinedAt     time.Time
}

type Filter struct {
	Query  string // name / email の部分一致
	Role   string
	Active *bool
}

type Page struct {
	Limit  int
	Offset int
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
	return p
}

type Counts struct {
	Total  int64
	Active int64
}

// NewMember is the input to Service.Create; Password is plain text.
type NewMember struct {
	Name     string
	Email    string
	Phone    string
	Role     string
	Password string
}

type ProfileUpdate struct {
	Name  *string
	Phone *string
}
