package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteTimeLayout = time.RFC3339Nano

// -- Identity --

func (r *SQLiteRepository) ListActiveMappings(ctx context.Context, chatUserID int64) ([]Identity, error) {
	const q = `
SELECT m.id, m.chat_user_id, m.user_id, m.is_active,
       u.id, u.display_name, u.phone, u.user_type, u.is_active
FROM chat_user_mappings m
JOIN users u ON u.id = m.user_id
WHERE m.chat_user_id = ? AND m.is_active = 1
ORDER BY m.id ASC;
`
	rows, err := r.db.QueryContext(ctx, q, chatUserID)
	if err != nil {
		return nil, fmt.Errorf("list active mappings: %w", err)
	}
	defer rows.Close()

	var res []Identity
	for rows.Next() {
		var (
			id       Identity
			phone    sql.NullString
			userType string
			active   sql.NullBool
		)
		if err := rows.Scan(
			&id.Mapping.ID, &id.Mapping.ChatUserID, &id.Mapping.AccountID, &id.Mapping.Active,
			&id.Account.ID, &id.Account.DisplayName, &phone, &userType, &active,
		); err != nil {
			return nil, fmt.Errorf("scan active mapping: %w", err)
		}
		if phone.Valid {
			id.Account.Phone = &phone.String
		}
		if active.Valid {
			id.Account.Active = &active.Bool
		}
		id.Account.Role = ParseRole(userType)
		res = append(res, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active mappings: %w", err)
	}
	return res, nil
}

// -- Visits --

func (r *SQLiteRepository) InsertVisit(ctx context.Context, visit Visit) (*Visit, error) {
	if visit.ID == "" {
		visit.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin visit tx: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback()
	}()

	var accountID int64
	err = tx.QueryRowContext(ctx, `
SELECT m.user_id
FROM chat_user_mappings m
WHERE m.chat_user_id = ? AND m.user_id = ? AND m.is_active = 1
ORDER BY m.id ASC
LIMIT 1;
`, visit.ChatUserID, visit.AccountID).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountVanished
	}
	if err != nil {
		return nil, fmt.Errorf("recheck mapping: %w", err)
	}

	var createdAt string
	if err := tx.QueryRowContext(ctx, `
INSERT INTO field_visits (id, user_id, chat_user_id, display_name, phone, latitude, longitude, visit_date, maps_link, customer_tag)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING created_at;
`,
		visit.ID,
		accountID,
		visit.ChatUserID,
		visit.DisplayName,
		nullableString(visit.Phone),
		visit.Latitude,
		visit.Longitude,
		visit.VisitDate.UTC().Format(sqliteTimeLayout),
		visit.MapsLink,
		nullableString(visit.CustomerTag),
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("insert visit: %w", err)
	}
	visit.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit visit: %w", err)
	}
	return &visit, nil
}

func (r *SQLiteRepository) CountVisits(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM field_visits;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return n, nil
}

// -- Helpers --

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
