package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/httpx"
)

type Handler struct{ svc *Service }

// RegisterRoutes: 参照系は authed、登録・更新は admin グループに載せる
func RegisterRoutes(authed, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	authed.GET("/books", h.ListBooks)
	authed.GET("/books/search", h.SearchBooks)
	authed.GET("/books/available", h.AvailableBooks)
	authed.GET("/books/category/:category", h.BooksByCategory)
	authed.GET("/books/:id", h.GetBook)
	authed.GET("/categories", h.ListCategories)

	admin.POST("/books", h.CreateBook)
	admin.PUT("/books/:id", h.UpdateBook)
}

func pageFrom(c *gin.Context) Page {
	return Page{
		Limit:  httpx.ParseIntDefault(c.Query("limit"), 50),
		Offset: httpx.ParseIntDefault(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "asc")),
	}.normalize()
}

func (h *Handler) list(c *gin.Context, f Filter) {
	p := pageFrom(c)
	books, total, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	items := make([]BookResponse, 0, len(books))
	for _, b := range books {
		items = append(items, b.toDTO())
	}
	c.JSON(http.StatusOK, ListBooksResult{
		Items:      items,
		Total:      total,
		NextOffset: httpx.NextOffset(total, p.Offset, p.Limit),
	})
}

func (h *Handler) ListBooks(c *gin.Context) {
	h.list(c, Filter{
		Query:     c.Query("q"),
		Category:  c.Query("category"),
		Available: httpx.ParseBoolPtr(c.Query("available")),
	})
}

func (h *Handler) SearchBooks(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		httpx.WriteInvalid(c, "q is required")
		return
	}
	h.list(c, Filter{Query: q, Category: c.Query("category")})
}

func (h *Handler) AvailableBooks(c *gin.Context) {
	yes := true
	h.list(c, Filter{Query: c.Query("q"), Available: &yes})
}

func (h *Handler) BooksByCategory(c *gin.Context) {
	h.list(c, Filter{Category: c.Param("category")})
}

func (h *Handler) GetBook(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	b, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, b.toDTO())
}

func (h *Handler) ListCategories(c *gin.Context) {
	cats, err := h.svc.Categories(c.Request.Context())
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": cats})
}

// ===== admin =====

func (h *Handler) CreateBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteInvalid(c, "invalid json")
		return
	}
	b, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.Header("Location", "/api/books/"+strconv.FormatInt(b.BookID, 10))
	c.JSON(http.StatusCreated, b.toDTO())
}

func (h *Handler) UpdateBook(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.WriteInvalid(c, "invalid json")
		return
	}
	b, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, b.toDTO())
}
