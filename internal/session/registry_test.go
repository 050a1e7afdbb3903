package session_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/session"
)

func newRegistry(t *testing.T, timeout, refresh time.Duration) *session.Registry {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return session.NewRegistry(session.Config{Timeout: timeout, RefreshThreshold: refresh}, logger)
}

func testUser() models.UserData {
	return models.UserData{ID: "u1", Username: "alice", Role: "admin", Permissions: []string{"users.manage"}}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r := newRegistry(t, time.Hour, time.Minute)

	token, err := r.Create("u1", testUser())
	require.NoError(t, err)
	assert.Len(t, token, 64)

	s, ok := r.Get(token, true)
	require.True(t, ok)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "alice", s.User.Username)
	assert.Equal(t, []string{"users.manage"}, s.User.Permissions)
}

func TestRegistry_UnknownTokenAbsent(t *testing.T) {
	r := newRegistry(t, time.Hour, time.Minute)

	_, ok := r.Get("deadbeef", true)
	assert.False(t, ok)
}

func TestRegistry_ExpiredSessionRemovedOnRead(t *testing.T) {
	r := newRegistry(t, time.Hour, time.Minute)
	token, err := r.Create("u1", testUser())
	require.NoError(t, err)

	now := time.Now()
	r.SetClock(func() time.Time { return now.Add(2 * time.Hour) })

	_, ok := r.Get(token, true)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_AbsentExactlyAtExpiry(t *testing.T) {
	r := newRegistry(t, time.Hour, time.Minute)

	now := time.Now()
	r.SetClock(func() time.Time { return now })
	token, err := r.Create("u1", testUser())
	require.NoError(t, err)

	r.SetClock(func() time.Time { return now.Add(time.Hour) })
	_, ok := r.Get(token, true)
	assert.False(t, ok)
}

func TestRegistry_RefreshOnlyWithinThreshold(t *testing.T) {
	r := newRegistry(t, time.Hour, 10*time.Minute)

	now := time.Now()
	r.SetClock(func() time.Time { return now })
	token, err := r.Create("u1", testUser())
	require.NoError(t, err)

	// Well before the threshold: expiry stays put.
	r.SetClock(func() time.Time { return now.Add(10 * time.Minute) })
	s, ok := r.Get(token, true)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)

	// Inside the refresh window: expiry slides by a full timeout.
	r.SetClock(func() time.Time { return now.Add(55 * time.Minute) })
	s, ok = r.Get(token, true)
	require.True(t, ok)
	assert.Equal(t, now.Add(55*time.Minute).Add(time.Hour), s.ExpiresAt)
}

func TestRegistry_NoRefreshWhenDisabled(t *testing.T) {
	r := newRegistry(t, time.Hour, 10*time.Minute)

	now := time.Now()
	r.SetClock(func() time.Time { return now })
	token, err := r.Create("u1", testUser())
	require.NoError(t, err)

	r.SetClock(func() time.Time { return now.Add(55 * time.Minute) })
	s, ok := r.Get(token, false)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)
}

func TestRegistry_GetIdempotentIdentity(t *testing.T) {
	r := newRegistry(t, time.Hour, time.Minute)
	token, err := r.Create("u1", testUser())
	require.NoError(t, err)

	s1, ok1 := r.Get(token, true)
	s2, ok2 := r.Get(token, true)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, s1.Token, s2.Token)
	assert.Equal(t, s1.UserID, s2.UserID)
	assert.Equal(t, s1.CreatedAt, s2.CreatedAt)
}

func TestRegistry_Delete(t *testing.T) {
	r := newRegistry(t, time.Hour, time.Minute)
	token, err := r.Create("u1", testUser())
	require.NoError(t, err)

	r.Delete(token)
	_, ok := r.Get(token, true)
	assert.False(t, ok)
}

func TestRegistry_Sweep(t *testing.T) {
	r := newRegistry(t, time.Hour, time.Minute)

	now := time.Now()
	r.SetClock(func() time.Time { return now })
	_, err := r.Create("u1", testUser())
	require.NoError(t, err)
	_, err = r.Create("u2", testUser())
	require.NoError(t, err)

	r.SetClock(func() time.Time { return now.Add(30 * time.Minute) })
	live, err := r.Create("u3", testUser())
	require.NoError(t, err)

	r.SetClock(func() time.Time { return now.Add(70 * time.Minute) })
	removed := r.Sweep()

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, r.Len())
	_, ok := r.Get(live, false)
	assert.True(t, ok)
}
