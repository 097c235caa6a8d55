package members

import "time"

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone"`
}

// 管理者による会員登録（role 指定可）
type CreateMemberRequest struct {
	RegisterRequest
	Role string `json:"role"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type AuthUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type AuthResponse struct {
	Token string   `json:"token"`
	User  AuthUser `json:"user"`
}

type MemberResponse struct {
	MemberID        int64     `json:"memberId"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Role            string    `json:"role"`
	IsActive        bool      `json:"isActive"`
	Status          string    `json:"status"`
	MemberSince     time.Time `json:"memberSince"`
	BooksCheckedOut int       `json:"booksCheckedOut"`
}

type ListMembersResult struct {
	Items      []MemberResponse `json:"items"`
	Total      int64            `json:"total"`
	NextOffset int              `json:"nextOffset"`
}

func (m Member) toAuthUser() AuthUser {
	return AuthUser{ID: m.MemberID, Name: m.Name, Email: m.Email, Role: m.Role}
}

func (m Member) toDTO(checkedOut int) MemberResponse {
	status := "inactive"
	if m.Active {
		status = "active"
	}
	return MemberResponse{
		MemberID:        m.MemberID,
		Name:            m.Name,
		Email:           m.Email,
		Phone:           m.Phone,
		Role:            m.Role,
		IsActive:        m.Active,
		Status:          status,
		MemberSince:     m.JoinedAt,
		BooksCheckedOut: checkedOut,
	}
}
