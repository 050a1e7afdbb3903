package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vndeals/backend/internal/database"
	"github.com/vndeals/backend/internal/models"
)

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// userColumns is the select list shared by every admin-user query. The role
// name and permission slugs come from the role joins; accounts without a
// role scan as empty.
const userColumns = `
	u.id, u.username, u.password_hash, u.status, u.role_id,
	COALESCE(r.name, ''),
	COALESCE(array_agg(p.slug ORDER BY p.slug) FILTER (WHERE p.slug IS NOT NULL), '{}'),
	u.failed_login_attempts, u.locked_until, u.created_at, u.updated_at
`

const userJoins = `
	FROM admin_users u
	LEFT JOIN roles r ON r.id = u.role_id
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id
`

const userGroupBy = ` GROUP BY u.id, r.name`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates an AdminUser from a row.
func scanUserRow(scanner rowScanner) (*models.AdminUser, error) {
	var user models.AdminUser
	var passwordHash, roleID *string
	var lockedUntil *time.Time

	err := scanner.Scan(
		&user.ID, &user.Username, &passwordHash, &user.Status, &roleID,
		&user.RoleName, &user.Permissions,
		&user.FailedLoginAttempts, &lockedUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	if roleID != nil {
		user.RoleID = *roleID
	}
	user.LockedUntil = lockedUntil

	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.AdminUser, error) {
	defer rows.Close()

	users := make([]*models.AdminUser, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.AdminUser, error) {
	query := `SELECT ` + userColumns + userJoins + ` WHERE u.id = $1` + userGroupBy

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	query := `SELECT ` + userColumns + userJoins + ` WHERE u.username = $1` + userGroupBy

	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.AdminUser, error) {
	query := `SELECT ` + userColumns + userJoins + userGroupBy + `
		ORDER BY u.created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Create(ctx context.Context, user *models.AdminUser) (*models.AdminUser, error) {
	user.ID = uuid.New().String()
	if user.Status == "" {
		user.Status = "active"
	}

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}
	var roleID *string
	if user.RoleID != "" {
		roleID = &user.RoleID
	}

	query := `
		INSERT INTO admin_users (id, username, password_hash, status, role_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	selectQuery := `SELECT ` + userColumns + userJoins + ` WHERE u.id = $1` + userGroupBy

	// The insert and the joined re-read run in one transaction so the
	// returned user reflects exactly the row that was written, role joins
	// included.
	var created *models.AdminUser
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, user.ID, user.Username, passwordHash, user.Status, roleID); err != nil {
			return database.MapPostgresError(err)
		}

		var err error
		created, err = scanUserRow(tx.QueryRow(ctx, selectQuery, user.ID))
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE admin_users SET password_hash = $1, updated_at = now() WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// LockState is the lockout snapshot of an account, evaluated by the
// database so wall-clock comparisons happen in one place, in UTC.
type LockState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
	Locked              bool
}

func (r *UserRepository) GetLockState(ctx context.Context, id string) (*LockState, error) {
	query := `
		SELECT failed_login_attempts, locked_until,
		       locked_until IS NOT NULL AND locked_until > timezone('utc', now())
		FROM admin_users WHERE id = $1
	`

	var st LockState
	err := r.pool.QueryRow(ctx, query, id).Scan(&st.FailedLoginAttempts, &st.LockedUntil, &st.Locked)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &st, nil
}

// ClearExpiredLock removes a lock whose end already passed. Reports whether
// a row was actually cleared.
func (r *UserRepository) ClearExpiredLock(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE admin_users SET locked_until = NULL, updated_at = now()
		WHERE id = $1
		  AND locked_until IS NOT NULL
		  AND locked_until <= timezone('utc', now())
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

// IncrementFailedAttempts bumps the counter and sets locked_until when the
// new count reaches maxAttempts, all in one statement so a concurrent
// attempt cannot race the threshold. Accounts that are locked right now do
// not match the WHERE clause: the returned pgx.ErrNoRows maps to
// models.ErrNotFound and callers re-read the lock state, which keeps an
// active lock from ever being extended. An expired lock is cleared as part
// of the same update.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id string, maxAttempts int, lockMinutes int) (*LockState, error) {
	query := `
		UPDATE admin_users SET
			failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE
				WHEN failed_login_attempts + 1 >= $2
					THEN timezone('utc', now()) + make_interval(mins => $3)
				ELSE NULL
			END,
			updated_at = now()
		WHERE id = $1
		  AND (locked_until IS NULL OR locked_until <= timezone('utc', now()))
		RETURNING failed_login_attempts, locked_until,
		          locked_until IS NOT NULL AND locked_until > timezone('utc', now())
	`

	var st LockState
	err := r.pool.QueryRow(ctx, query, id, maxAttempts, lockMinutes).
		Scan(&st.FailedLoginAttempts, &st.LockedUntil, &st.Locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, database.MapPostgresError(err)
	}
	return &st, nil
}

func (r *UserRepository) ClearLockout(ctx context.Context, id string) error {
	query := `
		UPDATE admin_users SET failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
