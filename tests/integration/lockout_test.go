package integration

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vndeals/backend/internal/repositories"
	"github.com/vndeals/backend/internal/services"
	"github.com/vndeals/backend/internal/session"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	if err := testDB.Teardown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to tear down test database: %v\n", err)
	}

	os.Exit(code)
}

func requireTestDB(t *testing.T) {
	t.Helper()
	if testing.Short() || testDB == nil {
		t.Skip("skipping integration test")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newLockoutService(repo *repositories.UserRepository, maxAttempts int, duration time.Duration) *services.LockoutService {
	return services.NewLockoutService(repo, services.LockoutConfig{
		MaxAttempts:     maxAttempts,
		LockoutDuration: duration,
	}, testLogger())
}

func uniqueUsername(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestLockoutRoundTrip(t *testing.T) {
	requireTestDB(t)
	ctx := context.Background()

	repo := repositories.NewUserRepository(testDB.DB)
	lockout := newLockoutService(repo, 3, 30*time.Minute)

	user, err := SeedAdminUser(ctx, testDB.Pool, uniqueUsername("lockout"), "TestPassword123!", "admin")
	require.NoError(t, err)

	// Two failures leave the account open with the counter moving.
	status := lockout.RegisterFailure(ctx, user.ID)
	assert.False(t, status.IsLocked)
	assert.Equal(t, 1, status.Attempts)

	status = lockout.RegisterFailure(ctx, user.ID)
	assert.False(t, status.IsLocked)
	assert.Equal(t, 2, status.Attempts)

	check := lockout.CheckLocked(ctx, user.ID)
	assert.False(t, check.IsLocked)
	assert.Equal(t, 2, check.Attempts)

	// The third failure trips the lock roughly thirty minutes out.
	status = lockout.RegisterFailure(ctx, user.ID)
	require.True(t, status.IsLocked)
	require.NotNil(t, status.LockedUntil)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), *status.LockedUntil, 30*time.Second)

	lockedUntil := *status.LockedUntil

	// Another failure while locked neither bumps the counter nor moves the
	// deadline.
	status = lockout.RegisterFailure(ctx, user.ID)
	require.True(t, status.IsLocked)
	require.NotNil(t, status.LockedUntil)
	assert.Equal(t, lockedUntil.Unix(), status.LockedUntil.Unix())
	assert.Equal(t, 3, status.Attempts)

	// Admin unlock resets everything.
	require.NoError(t, lockout.Clear(ctx, user.ID))

	check = lockout.CheckLocked(ctx, user.ID)
	assert.False(t, check.IsLocked)
	assert.Equal(t, 0, check.Attempts)
}

func TestExpiredLockIsClearedOnRead(t *testing.T) {
	requireTestDB(t)
	ctx := context.Background()

	repo := repositories.NewUserRepository(testDB.DB)
	lockout := newLockoutService(repo, 3, 30*time.Minute)

	user, err := SeedAdminUser(ctx, testDB.Pool, uniqueUsername("expired"), "TestPassword123!", "admin")
	require.NoError(t, err)

	_, err = testDB.Pool.Exec(ctx, `
		UPDATE admin_users
		SET failed_login_attempts = 3,
		    locked_until = timezone('utc', now()) - interval '1 minute'
		WHERE id = $1
	`, user.ID)
	require.NoError(t, err)

	check := lockout.CheckLocked(ctx, user.ID)
	assert.False(t, check.IsLocked)

	var lockedUntil *time.Time
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`SELECT locked_until FROM admin_users WHERE id = $1`, user.ID).Scan(&lockedUntil))
	assert.Nil(t, lockedUntil, "expired lock should be erased by the read")
}

func TestFailureAfterExpiredLockStartsFreshCount(t *testing.T) {
	requireTestDB(t)
	ctx := context.Background()

	repo := repositories.NewUserRepository(testDB.DB)
	lockout := newLockoutService(repo, 3, 30*time.Minute)

	user, err := SeedAdminUser(ctx, testDB.Pool, uniqueUsername("fresh"), "TestPassword123!", "admin")
	require.NoError(t, err)

	_, err = testDB.Pool.Exec(ctx, `
		UPDATE admin_users
		SET failed_login_attempts = 3,
		    locked_until = timezone('utc', now()) - interval '1 minute'
		WHERE id = $1
	`, user.ID)
	require.NoError(t, err)

	// The increment applies because the standing lock already expired, and
	// the expired deadline is wiped rather than re-armed.
	status := lockout.RegisterFailure(ctx, user.ID)
	assert.False(t, status.IsLocked)
	assert.Nil(t, status.LockedUntil)
	assert.Equal(t, 4, status.Attempts)
}

func TestLoginFlowLocksAndRecovers(t *testing.T) {
	requireTestDB(t)
	ctx := context.Background()

	repo := repositories.NewUserRepository(testDB.DB)
	lockout := newLockoutService(repo, 3, 30*time.Minute)
	sessions := session.NewRegistry(session.Config{
		Timeout:          time.Hour,
		RefreshThreshold: 10 * time.Minute,
	}, testLogger())
	auth := services.NewAuthService(repo, sessions, lockout, "test", testLogger())

	username := uniqueUsername("login")
	user, err := SeedAdminUser(ctx, testDB.Pool, username, "TestPassword123!", "admin")
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		result, err := auth.Login(ctx, username, "wrong-password")
		require.NoError(t, err)
		assert.Equal(t, services.LoginBadCredentials, result.Outcome)
		assert.Equal(t, i, result.Attempts)
		assert.Equal(t, 3-i, result.RemainingAttempts)
	}

	result, err := auth.Login(ctx, username, "wrong-password")
	require.NoError(t, err)
	assert.Equal(t, services.LoginLocked, result.Outcome)
	require.NotNil(t, result.Lock.LockedUntil)

	// The correct password is refused while the lock stands.
	result, err = auth.Login(ctx, username, "TestPassword123!")
	require.NoError(t, err)
	assert.Equal(t, services.LoginLocked, result.Outcome)

	require.NoError(t, repo.ClearLockout(ctx, user.ID))

	result, err = auth.Login(ctx, username, "TestPassword123!")
	require.NoError(t, err)
	require.Equal(t, services.LoginOK, result.Outcome)
	assert.Len(t, result.Token, 64)

	sess, ok := sessions.Get(result.Token, false)
	require.True(t, ok)
	assert.Equal(t, user.ID, sess.UserID)
	assert.Contains(t, sess.User.Permissions, "security.manage")
}

func TestUserRepositoryRoleJoins(t *testing.T) {
	requireTestDB(t)
	ctx := context.Background()

	repo := repositories.NewUserRepository(testDB.DB)

	username := uniqueUsername("roles")
	seeded, err := SeedAdminUser(ctx, testDB.Pool, username, "TestPassword123!", "editor")
	require.NoError(t, err)

	user, err := repo.GetByUsername(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, user.ID)
	assert.Equal(t, "editor", user.RoleName)
	assert.Equal(t, []string{"catalog.manage"}, user.Permissions)
}
