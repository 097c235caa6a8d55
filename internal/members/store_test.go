package members

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/db/dbtest"
)

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, NewSQLStore(dbtest.Open(t))) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemStore()) })
}

var joined = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func insertMember(t *testing.T, s Store, name, email, role string) Member {
	t.Helper()
	m := Member{Name: name, Email: email, Role: role, Active: true, PasswordHash: "x", JoinedAt: joined}
	require.NoError(t, s.Insert(context.Background(), &m))
	return m
}

func TestStore_InsertGet(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		m := insertMember(t, s, "John Smith", "john.smith@email.com", RoleUser)

		got, err := s.Get(ctx, m.MemberID)
		require.NoError(t, err)
		assert.Equal(t, "John Smith", got.Name)
		assert.True(t, got.Active)
		assert.True(t, joined.Equal(got.JoinedAt))

		got, err = s.GetByEmail(ctx, "john.smith@email.com")
		require.NoError(t, err)
		assert.Equal(t, m.MemberID, got.MemberID)

		_, err = s.Get(ctx, 404)
		assert.True(t, errors.Is(err, apperr.NotFound))
		_, err = s.GetByEmail(ctx, "nobody@email.com")
		assert.True(t, errors.Is(err, apperr.NotFound))

		dup := Member{Name: "Other", Email: "john.smith@email.com", Role: RoleUser, JoinedAt: joined}
		assert.True(t, errors.Is(s.Insert(ctx, &dup), apperr.Conflict))
	})
}

func TestStore_Updates(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		m := insertMember(t, s, "Sarah Johnson", "sarah.j@email.com", RoleUser)

		require.NoError(t, s.SetActive(ctx, m.MemberID, false))
		// 同じ値での更新も成功扱い
		require.NoError(t, s.SetActive(ctx, m.MemberID, false))
		got, err := s.Get(ctx, m.MemberID)
		require.NoError(t, err)
		assert.False(t, got.Active)

		phone := "555-0102"
		require.NoError(t, s.UpdateProfile(ctx, m.MemberID, ProfileUpdate{Phone: &phone}))
		require.NoError(t, s.SetPasswordHash(ctx, m.MemberID, "new-hash"))
		got, err = s.Get(ctx, m.MemberID)
		require.NoError(t, err)
		assert.Equal(t, "555-0102", got.Phone)
		assert.Equal(t, "Sarah Johnson", got.Name)
		assert.Equal(t, "new-hash", got.PasswordHash)

		assert.True(t, errors.Is(s.SetActive(ctx, 99, true), apperr.NotFound))
		assert.True(t, errors.Is(s.UpdateProfile(ctx, 99, ProfileUpdate{Phone: &phone}), apperr.NotFound))
		assert.True(t, errors.Is(s.SetPasswordHash(ctx, 99, "h"), apperr.NotFound))
	})
}

func TestStore_ListAndCounts(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		insertMember(t, s, "Admin", "admin@center.com", RoleAdmin)
		insertMember(t, s, "John Smith", "john.smith@email.com", RoleUser)
		emily := insertMember(t, s, "Emily Davis", "emily.d@email.com", RoleUser)
		require.NoError(t, s.SetActive(ctx, emily.MemberID, false))

		list, total, err := s.List(ctx, Filter{Role: RoleUser}, Page{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, list, 2)
		assert.Equal(t, "John Smith", list[0].Name)

		inactive := false
		list, total, err = s.List(ctx, Filter{Active: &inactive}, Page{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "Emily Davis", list[0].Name)

		list, _, err = s.List(ctx, Filter{Query: "SMITH"}, Page{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "john.smith@email.com", list[0].Email)

		list, total, err = s.List(ctx, Filter{}, Page{Limit: 1, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, list, 1)
		assert.Equal(t, emily.MemberID, list[0].MemberID)

		c, err := s.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, Counts{Total: 3, Active: 2}, c)
	})
}
