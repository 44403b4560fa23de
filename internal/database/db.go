package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roast-machine/internal/config"
	"roast-machine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEmptyHash = errors.New("archived joke needs a content hash")

type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to database at %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectionError{
			Host: cfg.Host,
			Port: cfg.Port,
			Err:  err,
		}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &ConnectionError{
			Host: cfg.Host,
			Port: cfg.Port,
			Err:  err,
		}
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// JokeRepository archives generated jokes. Flat files remain the primary copy.
type JokeRepository struct {
	db *DB
}

func NewJokeRepository(db *DB) *JokeRepository {
	return &JokeRepository{db: db}
}

const insertJokeQuery = `
	INSERT INTO jokes (id, content, style, factoid, hash, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (hash) DO NOTHING
	RETURNING archived_at
`

// Create archives a joke and reports whether a row was inserted. A joke whose
// hash is already archived is skipped without error.
func (r *JokeRepository) Create(ctx context.Context, joke models.Joke, hash string) (bool, error) {
	if hash == "" {
		return false, ErrEmptyHash
	}

	var archivedAt time.Time
	err := r.db.Pool.QueryRow(ctx, insertJokeQuery,
		joke.ID, joke.Text, joke.Style, joke.Factoid, hash, joke.CreatedAt.UTC(),
	).Scan(&archivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to archive joke %s: %w", joke.ID, err)
	}

	return true, nil
}

func (r *JokeRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM jokes").Scan(&count)
	return count, err
}

func (r *JokeRepository) CountByStyle(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, "SELECT style, COUNT(*) FROM jokes GROUP BY style")
	if err != nil {
		return nil, err
	}

	var (
		style string
		n     int
	)
	counts := make(map[string]int)
	_, err = pgx.ForEachRow(rows, []any{&style, &n}, func() error {
		counts[style] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			last_interaction = CURRENT_TIMESTAMP
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		user.TelegramID, user.Username, user.FirstName, user.LastName,
	).Scan(&user.ID, &user.CreatedAt)
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}
