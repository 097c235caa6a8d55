package members

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/httpx"
)

// ActiveLoanCounter fills booksCheckedOut. The ledger implements it.
type ActiveLoanCounter interface {
	ActiveLoanCount(ctx context.Context, memberID int64) (int, error)
}

type TokenIssuer interface {
	Issue(memberID int64, role, email string) (string, error)
}

type Handler struct {
	svc    *Service
	tokens TokenIssuer
	loans  ActiveLoanCounter
}

func RegisterRoutes(public, authed, admin gin.IRoutes, svc *Service, tokens TokenIssuer, loans ActiveLoanCounter) {
	h := &Handler{svc: svc, tokens: tokens, loans: loans}

	public.POST("/auth/login", h.Login)
	public.POST("/auth/register", h.Register)

	authed.GET("/auth/profile", h.GetProfile)
	authed.PUT("/auth/profile", h.UpdateProfile)
	authed.POST("/auth/change-password", h.ChangePassword)
	authed.GET("/users/:id", h.GetMember)

	admin.GET("/users", h.ListMembers)
	admin.POST("/users", h.CreateMember)
	admin.POST("/users/:id/deactivate", h.Deactivate)
	admin.POST("/users/:id/activate", h.Activate)
}

func (h *Handler) respond(c *gin.Context, status int, m Member) {
	n, err := h.loans.ActiveLoanCount(c.Request.Context(), m.MemberID)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(status, m.toDTO(n))
}

func (h *Handler) issue(c *gin.Context, status int, m Member) {
	token, err := h.tokens.Issue(m.MemberID, m.Role, m.Email)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(status, AuthResponse{Token: token, User: m.toAuthUser()})
}

// ===== auth =====

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteInvalid(c, "email and password are required")
		return
	}
	m, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.issue(c, http.StatusOK, m)
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteInvalid(c, "name, email and password are required")
		return
	}
	// 自己登録は常に user
	m, err := h.svc.Create(c.Request.Context(), NewMember{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Role:     RoleUser,
		Password: req.Password,
	})
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.issue(c, http.StatusCreated, m)
}

func (h *Handler) GetProfile(c *gin.Context) {
	me, ok := auth.MustCurrent(c)
	if !ok {
		return
	}
	m, err := h.svc.Get(c.Request.Context(), me.MemberID)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.respond(c, http.StatusOK, m)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	me, ok := auth.MustCurrent(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteInvalid(c, "invalid json")
		return
	}
	m, err := h.svc.UpdateProfile(c.Request.Context(), me.MemberID, ProfileUpdate{Name: req.Name, Phone: req.Phone})
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.respond(c, http.StatusOK, m)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	me, ok := auth.MustCurrent(c)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteInvalid(c, "currentPassword and newPassword are required")
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), me.MemberID, req.CurrentPassword, req.NewPassword); err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// ===== users =====

func (h *Handler) GetMember(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	me, ok := auth.MustCurrent(c)
	if !ok {
		return
	}
	if !me.CanActFor(id) {
		httpx.WriteError(c, apperr.ErrForbidden("cannot view another member"))
		return
	}
	m, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.respond(c, http.StatusOK, m)
}

func (h *Handler) ListMembers(c *gin.Context) {
	f := Filter{
		Query:  c.Query("q"),
		Role:   c.Query("role"),
		Active: httpx.ParseBoolPtr(c.Query("active")),
	}
	p := Page{
		Limit:  httpx.ParseIntDefault(c.Query("limit"), 50),
		Offset: httpx.ParseIntDefault(c.Query("offset"), 0),
	}.normalize()

	list, total, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	items := make([]MemberResponse, 0, len(list))
	for _, m := range list {
		n, err := h.loans.ActiveLoanCount(c.Request.Context(), m.MemberID)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		items = append(items, m.toDTO(n))
	}
	c.JSON(http.StatusOK, ListMembersResult{
		Items:      items,
		Total:      total,
		NextOffset: httpx.NextOffset(total, p.Offset, p.Limit),
	})
}

func (h *Handler) CreateMember(c *gin.Context) {
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteInvalid(c, "name, email and password are required")
		return
	}
	m, err := h.svc.Create(c.Request.Context(), NewMember{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Role:     strings.ToLower(strings.TrimSpace(req.Role)),
		Password: req.Password,
	})
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.Header("Location", "/api/users/"+strconv.FormatInt(m.MemberID, 10))
	c.JSON(http.StatusCreated, m.toDTO(0))
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	m, err := h.svc.SetActive(c.Request.Context(), id, active)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.respond(c, http.StatusOK, m)
}

func (h *Handler) Deactivate(c *gin.Context) { h.setActive(c, false) }
func (h *Handler) Activate(c *gin.Context)   { h.setActive(c, true) }
