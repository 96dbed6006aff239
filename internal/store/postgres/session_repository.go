// Copyright 2026 The HostelHub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hostelhub/hostelhub/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// SessionRepository implements session.Repository
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new booking session
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO sessions (id, name, phone_number, machine_number, start_time, duration_minutes, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		sess.ID, sess.Name, sess.PhoneNumber, sess.MachineNumber,
		sess.StartTime, sess.DurationMinutes, sess.IsActive,
		sess.CreatedAt, sess.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return session.ErrActiveSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// FindByID retrieves a session by ID
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, name, phone_number, machine_number, start_time, duration_minutes, is_active, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`, id)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

// FindActiveByMachine returns the active session for a machine. The partial
// unique index guarantees at most one; the ORDER BY is belt and braces for
// data that predates it.
func (r *SessionRepository) FindActiveByMachine(ctx context.Context, machineNumber int) (*session.Session, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, name, phone_number, machine_number, start_time, duration_minutes, is_active, created_at, updated_at
		FROM sessions
		WHERE machine_number = $1 AND is_active
		ORDER BY start_time DESC
		LIMIT 1
	`, machineNumber)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	return sess, nil
}

// ListAll returns sessions newest first, optionally only active ones
func (r *SessionRepository) ListAll(ctx context.Context, activeOnly bool) ([]*session.Session, error) {
	query := `
		SELECT id, name, phone_number, machine_number, start_time, duration_minutes, is_active, created_at, updated_at
		FROM sessions
		ORDER BY created_at DESC
	`
	if activeOnly {
		query = `
			SELECT id, name, phone_number, machine_number, start_time, duration_minutes, is_active, created_at, updated_at
			FROM sessions
			WHERE is_active
			ORDER BY created_at DESC
		`
	}

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListActive returns every active session
func (r *SessionRepository) ListActive(ctx context.Context) ([]*session.Session, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, phone_number, machine_number, start_time, duration_minutes, is_active, created_at, updated_at
		FROM sessions
		WHERE is_active
		ORDER BY machine_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// DeleteByID removes a session permanently
func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM sessions WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}

	return nil
}

// MarkInactive flips is_active to false. Re-applying it to an inactive
// session is a no-op success.
func (r *SessionRepository) MarkInactive(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, updated_at = now()
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}

	return nil
}

// MarkExpired deactivates active sessions whose window closed before now
func (r *SessionRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, updated_at = $1
		WHERE is_active
		  AND start_time + duration_minutes * interval '1 minute' < $1
	`, now)

	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}

	return result.RowsAffected(), nil
}

// PurgeInactiveBefore deletes inactive history older than the cutoff
func (r *SessionRepository) PurgeInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE NOT is_active AND created_at < $1
	`, cutoff)

	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var sess session.Session
	err := row.Scan(
		&sess.ID, &sess.Name, &sess.PhoneNumber, &sess.MachineNumber,
		&sess.StartTime, &sess.DurationMinutes, &sess.IsActive,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func collectSessions(rows pgx.Rows) ([]*session.Session, error) {
	sessions := make([]*session.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}
