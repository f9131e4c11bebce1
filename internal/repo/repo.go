package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides typed access to the Postgres identity store and visit table.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// New opens a new connection pool to the database with the desired search_path.
func New(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		logger: logger.With("component", "repo"),
		schema: schema,
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx executes fn within a database transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// RunMigrations applies schema migrations on the connected database.
func (r *PostgresRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	sub, err := fs.Sub(filesystem, "postgres")
	if err != nil {
		return fmt.Errorf("open postgres migrations: %w", err)
	}
	return ApplyMigrations(ctx, r.pool, sub)
}

// ListActiveMappings returns every active mapping for the chat user joined to
// its account, lowest mapping id first.
func (r *PostgresRepository) ListActiveMappings(ctx context.Context, chatUserID int64) ([]Identity, error) {
	const q = `
SELECT m.id, m.chat_user_id, m.user_id, m.is_active,
       u.id, u.display_name, u.phone, u.user_type, u.is_active
FROM chat_user_mappings m
JOIN users u ON u.id = m.user_id
WHERE m.chat_user_id = $1 AND m.is_active
ORDER BY m.id ASC;
`
	rows, err := r.pool.Query(ctx, q, chatUserID)
	if err != nil {
		return nil, fmt.Errorf("list active mappings: %w", err)
	}
	defer rows.Close()

	var res []Identity
	for rows.Next() {
		var id Identity
		var userType string
		if err := rows.Scan(
			&id.Mapping.ID, &id.Mapping.ChatUserID, &id.Mapping.AccountID, &id.Mapping.Active,
			&id.Account.ID, &id.Account.DisplayName, &id.Account.Phone, &userType, &id.Account.Active,
		); err != nil {
			return nil, fmt.Errorf("scan active mapping: %w", err)
		}
		id.Account.Role = ParseRole(userType)
		res = append(res, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active mappings: %w", err)
	}
	return res, nil
}

// InsertVisit re-checks the authorising mapping and stores the visit in one
// transaction. ErrAccountVanished is returned, and nothing is written, when the
// mapping is gone.
func (r *PostgresRepository) InsertVisit(ctx context.Context, visit Visit) (*Visit, error) {
	if visit.ID == "" {
		visit.ID = uuid.NewString()
	}
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var accountID int64
		err := tx.QueryRow(ctx, `
SELECT m.user_id
FROM chat_user_mappings m
WHERE m.chat_user_id = $1 AND m.user_id = $2 AND m.is_active
ORDER BY m.id ASC
LIMIT 1;
`, visit.ChatUserID, visit.AccountID).Scan(&accountID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountVanished
		}
		if err != nil {
			return fmt.Errorf("recheck mapping: %w", err)
		}

		var createdAt time.Time
		if err := tx.QueryRow(ctx, `
INSERT INTO field_visits (id, user_id, chat_user_id, display_name, phone, latitude, longitude, visit_date, maps_link, customer_tag)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at;
`,
			visit.ID,
			accountID,
			visit.ChatUserID,
			visit.DisplayName,
			visit.Phone,
			visit.Latitude,
			visit.Longitude,
			visit.VisitDate,
			visit.MapsLink,
			visit.CustomerTag,
		).Scan(&createdAt); err != nil {
			return fmt.Errorf("insert visit: %w", err)
		}
		visit.CreatedAt = createdAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// CountVisits returns the number of stored visits.
func (r *PostgresRepository) CountVisits(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM field_visits;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return n, nil
}
