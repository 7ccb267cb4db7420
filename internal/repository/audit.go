package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"studygroup-tracker/internal/constants"
	"studygroup-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// AuditRepository persists fetched rank-audit events. Events are
// immutable upstream, so an upsert keyed by event id is a no-op for rows
// already stored.
type AuditRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAuditRepository(sqlDB *sql.DB, logger zerolog.Logger) *AuditRepository {
	return &AuditRepository{db: sqlDB, logger: logger}
}

func (r *AuditRepository) UpsertBatch(ctx context.Context, events []domain.RankAuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rank_audit_events (id, riot_id, elo, wins, losses, created_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := 0; i < len(events); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(events) {
			end = len(events)
		}

		for _, e := range events[i:end] {
			id := e.ID
			if id == "" {
				id, err = gonanoid.New()
				if err != nil {
					return fmt.Errorf("failed to generate nanoid: %w", err)
				}
			}

			if _, err := stmt.ExecContext(ctx, id, e.RiotID, e.Elo, e.Wins, e.Losses, e.CreatedAt, now); err != nil {
				return fmt.Errorf("failed to upsert rank audit event %s: %w", id, err)
			}
		}
	}

	return tx.Commit()
}

func (r *AuditRepository) GetByRiotID(ctx context.Context, riotID string, since time.Time) ([]domain.RankAuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, riot_id, elo, wins, losses, created_at
		FROM rank_audit_events
		WHERE riot_id = ? AND created_at >= ?
		ORDER BY created_at ASC`, riotID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByRiotIDs returns all stored events for a set of players, used when
// the backend is unreachable and the local store has to carry the chart.
func (r *AuditRepository) GetByRiotIDs(ctx context.Context, riotIDs []string, since time.Time) ([]domain.RankAuditEvent, error) {
	if len(riotIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, riot_id, elo, wins, losses, created_at
		FROM rank_audit_events
		WHERE created_at >= ? AND riot_id IN (?` + strings.Repeat(",?", len(riotIDs)-1) + `)
		ORDER BY created_at ASC`

	args := make([]any, 0, len(riotIDs)+1)
	args = append(args, since)
	for _, id := range riotIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]domain.RankAuditEvent, error) {
	var events []domain.RankAuditEvent
	for rows.Next() {
		var e domain.RankAuditEvent
		if err := rows.Scan(&e.ID, &e.RiotID, &e.Elo, &e.Wins, &e.Losses, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rank audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
