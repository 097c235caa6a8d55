package httpx

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"LIBRA-backend/internal/platform/apperr"
)

const (
	RequestIDHeader = "X-Request-ID"
	ctxRequestIDKey = "request_id"
)

// RequestID は X-Request-ID を引き継ぐか新規採番してレスポンスにも返す
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(ctxRequestIDKey)
}

// WriteError maps err to the JSON error envelope. 5xx are logged with the
// request id since their detail is not sent to the client.
func WriteError(c *gin.Context, err error) {
	status := apperr.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s (req=%s): %v", c.Request.Method, c.Request.URL.Path, GetRequestID(c), err)
	}
	c.JSON(status, apperr.FromErr(err))
}

func WriteInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, msg))
}

func ParseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

// ParseID parses a positive int64 path parameter.
func ParseID(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		WriteInvalid(c, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

// ParseBoolPtr returns nil when the query value is absent or not a bool.
func ParseBoolPtr(s string) *bool {
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &b
}

// NextOffset は次ページの offset。最後のページなら 0
func NextOffset(total int64, offset, limit int) int {
	n := offset + limit
	if n >= int(total) {
		return 0
	}
	return n
}
