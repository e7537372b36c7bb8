package storage

import (
	"context"
	"database/sql"
	"time"
)

type Warning struct {
	ID          int64     `json:"id"`
	GuildID     string    `json:"guild_id"`
	UserID      string    `json:"user_id"`
	ModeratorID string    `json:"moderator_id"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// WarningSummary is one member's line in the warnings list.
type WarningSummary struct {
	UserID     string    `json:"user_id"`
	Count      int       `json:"count"`
	LastReason string    `json:"last_reason"`
	LastAt     time.Time `json:"last_at"`
}

// AddWarning stores w and returns the member's warning count including it.
func (s *Storage) AddWarning(ctx context.Context, w Warning) (int, error) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO warnings (guild_id, user_id, moderator_id, reason, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			w.GuildID, w.UserID, w.ModeratorID, w.Reason, unix(w.CreatedAt),
		); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM warnings WHERE guild_id = ? AND user_id = ?`, w.GuildID, w.UserID,
		).Scan(&count)
	})
	return count, err
}

func (s *Storage) CountWarnings(ctx context.Context, guildID, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM warnings WHERE guild_id = ? AND user_id = ?`, guildID, userID,
	).Scan(&count)
	return count, err
}

// ListWarnings returns a member's warnings, newest first.
func (s *Storage) ListWarnings(ctx context.Context, guildID, userID string) ([]Warning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, moderator_id, reason, created_at FROM warnings
		WHERE guild_id = ? AND user_id = ?
		ORDER BY id DESC`, guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Warning
	for rows.Next() {
		var w Warning
		var created int64
		if err := rows.Scan(&w.ID, &w.GuildID, &w.UserID, &w.ModeratorID, &w.Reason, &created); err != nil {
			return nil, err
		}
		w.CreatedAt = fromUnix(created)
		out = append(out, w)
	}
	return out, rows.Err()
}

// SummarizeWarnings lists every warned member of a guild, most warned first.
func (s *Storage) SummarizeWarnings(ctx context.Context, guildID string) ([]WarningSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.user_id, COUNT(*), MAX(w.created_at),
			(SELECT reason FROM warnings l WHERE l.guild_id = w.guild_id AND l.user_id = w.user_id ORDER BY l.id DESC LIMIT 1)
		FROM warnings w
		WHERE w.guild_id = ?
		GROUP BY w.user_id
		ORDER BY COUNT(*) DESC, MAX(w.created_at) DESC`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WarningSummary
	for rows.Next() {
		var ws WarningSummary
		var last int64
		if err := rows.Scan(&ws.UserID, &ws.Count, &last, &ws.LastReason); err != nil {
			return nil, err
		}
		ws.LastAt = fromUnix(last)
		out = append(out, ws)
	}
	return out, rows.Err()
}

// ResetWarnings deletes a member's warnings and returns how many there were.
func (s *Storage) ResetWarnings(ctx context.Context, guildID, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM warnings WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
