package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studygroup-tracker/internal/domain"

	"github.com/rs/zerolog"
)

// MemberRepository persists the riot_id to display-name mapping per
// group, with a last-fetch timestamp driving the refresh TTL.
type MemberRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMemberRepository(sqlDB *sql.DB, logger zerolog.Logger) *MemberRepository {
	return &MemberRepository{db: sqlDB, logger: logger}
}

func (r *MemberRepository) UpsertNames(ctx context.Context, groupID int64, names domain.MemberNames) error {
	if len(names) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for riotID, displayName := range names {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO members (riot_id, group_id, display_name, last_fetch_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (riot_id) DO UPDATE SET
				group_id = excluded.group_id,
				display_name = excluded.display_name,
				last_fetch_at = excluded.last_fetch_at,
				updated_at = excluded.updated_at`,
			riotID, groupID, displayName, now, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert member %s: %w", riotID, err)
		}
	}

	return tx.Commit()
}

func (r *MemberRepository) GetNames(ctx context.Context, groupID int64) (domain.MemberNames, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT riot_id, display_name FROM members WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := domain.MemberNames{}
	for rows.Next() {
		var riotID, displayName string
		if err := rows.Scan(&riotID, &displayName); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		names[riotID] = displayName
	}
	return names, rows.Err()
}

// ShouldRefresh reports whether a group's member data is older than the
// TTL. An unknown group always refreshes.
func (r *MemberRepository) ShouldRefresh(ctx context.Context, groupID int64, ttl time.Duration) (bool, error) {
	var lastFetchAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(last_fetch_at) FROM members WHERE group_id = ?`, groupID).Scan(&lastFetchAt)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Int64("group_id", groupID).Msg("failed to read member fetch time")
		return false, err
	}
	if !lastFetchAt.Valid {
		return true, nil
	}

	timeSince := time.Since(lastFetchAt.Time)
	shouldRefresh := timeSince > ttl
	r.logger.Debug().
		Int64("group_id", groupID).
		Time("last_fetch_at", lastFetchAt.Time).
		Dur("time_since", timeSince).
		Dur("ttl", ttl).
		Bool("should_refresh", shouldRefresh).
		Msg("checking if members should refresh")

	return shouldRefresh, nil
}
