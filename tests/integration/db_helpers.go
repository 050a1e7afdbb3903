package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vndeals/backend/internal/database"
	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/pkg/password"
)

// TestDB manages the PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("vndeals"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a stdlib DB connection
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates the mutable tables for test isolation. Roles and
// permissions are migration-seeded and left alone.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"admin_users",
		"products",
		"categories",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedAdminUser inserts a test admin account with a hashed password and the
// named role. An empty roleName leaves the account roleless.
func SeedAdminUser(ctx context.Context, pool *pgxpool.Pool, username, plaintext, roleName string) (*models.AdminUser, error) {
	hashed, err := password.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var roleID *string
	if roleName != "" {
		var id string
		if err := pool.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, roleName).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to look up role %q: %w", roleName, err)
		}
		roleID = &id
	}

	query := `
		INSERT INTO admin_users (username, password_hash, status, role_id)
		VALUES ($1, $2, 'active', $3)
		RETURNING id, username, status, failed_login_attempts, created_at, updated_at
	`

	var user models.AdminUser
	err = pool.QueryRow(ctx, query, username, hashed, roleID).Scan(
		&user.ID,
		&user.Username,
		&user.Status,
		&user.FailedLoginAttempts,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert admin user: %w", err)
	}
	user.PasswordHash = hashed
	user.RoleName = roleName

	return &user, nil
}

// SeedCategory inserts a category row
func SeedCategory(ctx context.Context, pool *pgxpool.Pool, name, slug string, visible bool) (string, error) {
	var id string
	err := pool.QueryRow(ctx,
		`INSERT INTO categories (name, slug, visible) VALUES ($1, $2, $3) RETURNING id`,
		name, slug, visible,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert category: %w", err)
	}
	return id, nil
}

// SeedProduct inserts a saved product row
func SeedProduct(ctx context.Context, pool *pgxpool.Pool, name string, price int64) (string, error) {
	var id string
	err := pool.QueryRow(ctx,
		`INSERT INTO products (name, price, image_url, offer_link) VALUES ($1, $2, '', '') RETURNING id`,
		name, price,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert product: %w", err)
	}
	return id, nil
}
