package lending

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/ledger"
	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/httpx"
)

type Handler struct{ svc *Service }

func RegisterRoutes(authed, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	authed.POST("/borrow", h.Borrow)
	authed.POST("/return/:loanId", h.Return)
	authed.GET("/borrows/:loanId", h.GetLoan)
	authed.POST("/borrows/:loanId/renew", h.Renew)
	authed.GET("/borrows/:loanId/fine", h.Fine)
	authed.GET("/users/:id/current-borrows", h.MemberCurrent)
	authed.GET("/users/:id/borrow-history", h.MemberHistory)

	admin.POST("/borrows/:loanId/return", h.AdminReturn)
	admin.GET("/borrows/current", h.Current)
	admin.GET("/borrows/history", h.History)
	admin.GET("/stats", h.Stats)
}

func loanPage(c *gin.Context) ledger.Page {
	return ledger.Page{
		Limit:  httpx.ParseIntDefault(c.Query("limit"), 50),
		Offset: httpx.ParseIntDefault(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}
}

func statusQuery(c *gin.Context) (ledger.Status, bool) {
	v := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if v == "" || v == "all" {
		return "", true
	}
	st, ok := ledger.ParseStatus(v)
	if !ok {
		httpx.WriteInvalid(c, "status must be borrowed, returned or overdue")
	}
	return st, ok
}

// loanFor は対象の貸出を読み、本人か管理者でなければ 403
func (h *Handler) loanFor(c *gin.Context) (LoanView, bool) {
	me, ok := auth.MustCurrent(c)
	if !ok {
		return LoanView{}, false
	}
	v, err := h.svc.Loan(c.Request.Context(), c.Param("loanId"))
	if err != nil {
		httpx.WriteError(c, err)
		return LoanView{}, false
	}
	if !me.CanActFor(v.MemberID) {
		httpx.WriteError(c, apperr.ErrForbidden("loan belongs to another member"))
		return LoanView{}, false
	}
	return v, true
}

func (h *Handler) respond(c *gin.Context, status int, loanID string) {
	v, err := h.svc.Loan(c.Request.Context(), loanID)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(status, v.toDTO())
}

// ===== 貸出・返却 =====

func (h *Handler) Borrow(c *gin.Context) {
	me, ok := auth.MustCurrent(c)
	if !ok {
		return
	}
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteInvalid(c, "bookId is required")
		return
	}
	if req.MemberID == 0 {
		req.MemberID = me.MemberID
	}
	if !me.CanActFor(req.MemberID) {
		httpx.WriteError(c, apperr.ErrForbidden("cannot borrow for another member"))
		return
	}

	loan, err := h.svc.Checkout(c.Request.Context(), req.BookID, req.MemberID, h.svc.Now())
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.Header("Location", "/api/borrows/"+loan.LoanID)
	h.respond(c, http.StatusCreated, loan.LoanID)
}

func (h *Handler) doReturn(c *gin.Context, loanID string) {
	loan, err := h.svc.ReturnBook(c.Request.Context(), loanID, h.svc.Now())
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.respond(c, http.StatusOK, loan.LoanID)
}

func (h *Handler) Return(c *gin.Context) {
	v, ok := h.loanFor(c)
	if !ok {
		return
	}
	h.doReturn(c, v.LoanID)
}

func (h *Handler) AdminReturn(c *gin.Context) {
	h.doReturn(c, c.Param("loanId"))
}

func (h *Handler) Renew(c *gin.Context) {
	v, ok := h.loanFor(c)
	if !ok {
		return
	}
	loan, err := h.svc.Renew(c.Request.Context(), v.LoanID, h.svc.Now())
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.respond(c, http.StatusOK, loan.LoanID)
}

func (h *Handler) GetLoan(c *gin.Context) {
	v, ok := h.loanFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, v.toDTO())
}

func (h *Handler) Fine(c *gin.Context) {
	v, ok := h.loanFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loanId":      v.LoanID,
		"status":      v.Status,
		"dueDate":     v.DueDate,
		"daysOverdue": v.DaysOverdue,
		"fine":        v.Fine.Round(2).InexactFloat64(),
	})
}

// ===== 会員ごとの一覧 =====

func (h *Handler) memberLoans(c *gin.Context, activeOnly bool) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	me, ok := auth.MustCurrent(c)
	if !ok {
		return
	}
	if !me.CanActFor(id) {
		httpx.WriteError(c, apperr.ErrForbidden("cannot view another member's loans"))
		return
	}
	views, err := h.svc.MemberLoans(c.Request.Context(), id, activeOnly)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": toDTOs(views)})
}

func (h *Handler) MemberCurrent(c *gin.Context) { h.memberLoans(c, true) }
func (h *Handler) MemberHistory(c *gin.Context) { h.memberLoans(c, false) }

// ===== admin =====

func (h *Handler) writeList(c *gin.Context, views []LoanView, total int64, p ledger.Page) {
	limit := p.Limit
	switch {
	case limit <= 0:
		limit = 50
	case limit > 500:
		limit = 500
	}
	c.JSON(http.StatusOK, ListLoansResult{
		Items:      toDTOs(views),
		Total:      total,
		NextOffset: httpx.NextOffset(total, p.Offset, limit),
	})
}

func (h *Handler) Current(c *gin.Context) {
	st, ok := statusQuery(c)
	if !ok {
		return
	}
	p := loanPage(c)
	views, total, err := h.svc.CurrentLoans(c.Request.Context(), c.Query("q"), st, p)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.writeList(c, views, total, p)
}

func (h *Handler) History(c *gin.Context) {
	st, ok := statusQuery(c)
	if !ok {
		return
	}
	f := ledger.LoanFilter{Status: st}
	if v := c.Query("memberId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			httpx.WriteInvalid(c, "memberId must be a positive integer")
			return
		}
		f.MemberID = id
	}
	if v := c.Query("bookId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			httpx.WriteInvalid(c, "bookId must be a positive integer")
			return
		}
		f.BookID = id
	}
	p := loanPage(c)
	views, total, err := h.svc.History(c.Request.Context(), f, p)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.writeList(c, views, total, p)
}

func (h *Handler) Stats(c *gin.Context) {
	s, err := h.svc.Stats(c.Request.Context(), h.svc.Now())
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.toDTO())
}
