package members

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/clock"
)

type fakeLoans map[int64]int

func (f fakeLoans) ActiveLoanCount(_ context.Context, id int64) (int, error) { return f[id], nil }

var testSecret = []byte("members-test")

func newService() *Service {
	return NewService(NewMemStore(), clock.NewManual(joined)).WithHashCost(bcrypt.MinCost)
}

func newTestRouter(t *testing.T, loans fakeLoans) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newService()
	r := gin.New()
	api := r.Group("/api")
	authed := api.Group("", auth.RequireAuth(testSecret))
	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))
	RegisterRoutes(api, authed, admin, svc, auth.NewIssuer(testSecret, time.Hour, clock.Real{}), loans)
	return r, svc
}

func call(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r http.Handler, email, password string) AuthResponse {
	t.Helper()
	w := call(r, http.MethodPost, "/api/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestService_Create(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	tests := []struct {
		name string
		in   NewMember
	}{
		{"no name", NewMember{Email: "a@b.c", Password: "secret1"}},
		{"bad email", NewMember{Name: "A", Email: "not-an-email", Password: "secret1"}},
		{"display-name email", NewMember{Name: "A", Email: "Demo <demo@center.com>", Password: "secret1"}},
		{"double at", NewMember{Name: "A", Email: "demo@@center.com", Password: "secret1"}},
		{"short password", NewMember{Name: "A", Email: "a@b.c", Password: "123"}},
		{"bad role", NewMember{Name: "A", Email: "a@b.c", Password: "secret1", Role: "root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
		})
	}

	m, err := svc.Create(ctx, NewMember{Name: " Demo User ", Email: " User@Center.com ", Password: "user123"})
	require.NoError(t, err)
	assert.Equal(t, "Demo User", m.Name)
	assert.Equal(t, "user@center.com", m.Email)
	assert.Equal(t, RoleUser, m.Role)
	assert.True(t, m.Active)
	assert.NotEqual(t, "user123", m.PasswordHash)

	_, err = svc.Create(ctx, NewMember{Name: "Again", Email: "user@center.com", Password: "user123"})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestService_AuthenticateAndPassword(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	m, err := svc.Create(ctx, NewMember{Name: "U", Email: "user@center.com", Password: "user123"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "user@center.com", "wrong")
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
	_, err = svc.Authenticate(ctx, "ghost@center.com", "user123")
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	got, err := svc.Authenticate(ctx, "USER@center.com", "user123")
	require.NoError(t, err)
	assert.Equal(t, m.MemberID, got.MemberID)

	err = svc.ChangePassword(ctx, m.MemberID, "nope", "newpass1")
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
	require.NoError(t, svc.ChangePassword(ctx, m.MemberID, "user123", "newpass1"))

	_, err = svc.Authenticate(ctx, "user@center.com", "newpass1")
	assert.NoError(t, err)

	// 無効化されてもログインはできる
	_, err = svc.SetActive(ctx, m.MemberID, false)
	require.NoError(t, err)
	active, err := svc.IsActive(ctx, m.MemberID)
	require.NoError(t, err)
	assert.False(t, active)
	_, err = svc.Authenticate(ctx, "user@center.com", "newpass1")
	assert.NoError(t, err)

	_, err = svc.IsActive(ctx, 999)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestHandler_RegisterLoginProfile(t *testing.T) {
	r, _ := newTestRouter(t, fakeLoans{1: 2})

	w := call(r, http.MethodPost, "/api/auth/register", "",
		`{"name":"Demo User","email":"user@center.com","password":"user123","phone":"555-0100"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, AuthUser{ID: 1, Name: "Demo User", Email: "user@center.com", Role: RoleUser}, reg.User)

	res := login(t, r, "user@center.com", "user123")

	w = call(r, http.MethodGet, "/api/auth/profile", res.Token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var prof MemberResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prof))
	assert.Equal(t, 2, prof.BooksCheckedOut)
	assert.Equal(t, "active", prof.Status)

	w = call(r, http.MethodPut, "/api/auth/profile", res.Token, `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Renamed"`)

	w = call(r, http.MethodPost, "/api/auth/change-password", res.Token,
		`{"currentPassword":"user123","newPassword":"user456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	login(t, r, "user@center.com", "user456")

	w = call(r, http.MethodPost, "/api/auth/login", "", `{"email":"user@center.com","password":"user123"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodGet, "/api/auth/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_AdminAndOwnership(t *testing.T) {
	r, svc := newTestRouter(t, fakeLoans{})
	ctx := context.Background()
	_, err := svc.Create(ctx, NewMember{Name: "Admin", Email: "admin@center.com", Password: "admin123", Role: RoleAdmin})
	require.NoError(t, err)
	_, err = svc.Create(ctx, NewMember{Name: "User", Email: "user@center.com", Password: "user123"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, NewMember{Name: "Other", Email: "other@center.com", Password: "other123"})
	require.NoError(t, err)

	admin := login(t, r, "admin@center.com", "admin123").Token
	user := login(t, r, "user@center.com", "user123").Token

	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/users/2", user, "").Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/users/3", user, "").Code)
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/users/3", admin, "").Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, "/api/users/42", admin, "").Code)

	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/users", user, "").Code)
	w := call(r, http.MethodGet, "/api/users?role=user", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ListMembersResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(2), list.Total)

	w = call(r, http.MethodPost, "/api/users/3/deactivate", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"inactive"`)
	w = call(r, http.MethodPost, "/api/users/3/activate", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isActive":true`)

	w = call(r, http.MethodPost, "/api/users", admin,
		`{"name":"Librarian","email":"lib@center.com","password":"libpass","role":"admin"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	// 自己登録で admin にはなれない
	w = call(r, http.MethodPost, "/api/auth/register", "",
		`{"name":"Sneaky","email":"sneaky@center.com","password":"sneaky1","role":"admin"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"user"`)
}
