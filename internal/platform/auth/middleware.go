package auth

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"LIBRA-backend/internal/platform/apperr"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"

	RoleAdmin = "admin"
	RoleUser  = "user"
)

func abort(c *gin.Context, err *apperr.APIError) {
	c.AbortWithStatusJSON(apperr.ToHTTPStatus(err), apperr.FromErr(err))
}

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role を詰める
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			abort(c, apperr.ErrUnauthenticated("missing Authorization header"))
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, apperr.ErrUnauthenticated("invalid Authorization header"))
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			abort(c, apperr.ErrUnauthenticated("empty token"))
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			// alg 固定（none攻撃とか回避）
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || token == nil || !token.Valid {
			abort(c, apperr.ErrUnauthenticated("invalid token"))
			return
		}

		if _, err := strconv.ParseInt(claims.Subject, 10, 64); err != nil {
			abort(c, apperr.ErrUnauthenticated("invalid sub"))
			return
		}

		c.Set(CtxUserIDKey, claims.Subject)
		c.Set(CtxRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole: 例) admin のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if role == "" {
			abort(c, apperr.ErrForbidden("missing role"))
			return
		}
		if _, allowed := roleSet[role]; !allowed {
			abort(c, apperr.ErrForbidden("forbidden"))
			return
		}
		c.Next()
	}
}

// Identity is the caller as established by RequireAuth.
type Identity struct {
	MemberID int64
	Role     string
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// CanActFor reports whether the caller may read or act on memberID's loans
// and profile: admins for anyone, users only for themselves.
func (id Identity) CanActFor(memberID int64) bool {
	return id.IsAdmin() || id.MemberID == memberID
}

// Current は RequireAuth 済みのリクエストから呼び出し元を取り出す
func Current(c *gin.Context) (Identity, bool) {
	sub := c.GetString(CtxUserIDKey)
	if sub == "" {
		return Identity{}, false
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Identity{}, false
	}
	return Identity{MemberID: id, Role: c.GetString(CtxRoleKey)}, true
}

// MustCurrent writes 401 and returns false when there is no caller.
func MustCurrent(c *gin.Context) (Identity, bool) {
	id, ok := Current(c)
	if !ok {
		abort(c, apperr.ErrUnauthenticated("not signed in"))
	}
	return id, ok
}

// SetIdentity is used by tests and by handlers mounted without RequireAuth.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(CtxUserIDKey, strconv.FormatInt(id.MemberID, 10))
	c.Set(CtxRoleKey, id.Role)
}
