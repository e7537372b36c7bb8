package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type XPRecord struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	XP        int64     `json:"xp"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddXP adds amount (which may be negative) to a member's XP and returns the
// new total. XP never drops below zero.
func (s *Storage) AddXP(ctx context.Context, guildID, userID string, amount int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO levels (guild_id, user_id, xp, updated_at) VALUES (?, ?, MAX(0, ?), ?)
		ON CONFLICT (guild_id, user_id) DO UPDATE
			SET xp = MAX(0, levels.xp + ?), updated_at = excluded.updated_at
		RETURNING xp`,
		guildID, userID, amount, unix(time.Now()), amount,
	).Scan(&total)
	return total, err
}

// GetXP returns 0 for members that never earned anything.
func (s *Storage) GetXP(ctx context.Context, guildID, userID string) (int64, error) {
	var xp int64
	err := s.db.QueryRowContext(ctx,
		`SELECT xp FROM levels WHERE guild_id = ? AND user_id = ?`, guildID, userID,
	).Scan(&xp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return xp, err
}

// XPPosition is the 1-based leaderboard position of a member. Members
// without XP rank after everyone who has some.
func (s *Storage) XPPosition(ctx context.Context, guildID, userID string) (int, error) {
	xp, err := s.GetXP(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	var ahead int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM levels WHERE guild_id = ? AND xp > ?`, guildID, xp,
	).Scan(&ahead)
	return ahead + 1, err
}

// TopXP returns up to limit members ordered by XP, ties by who got there first.
func (s *Storage) TopXP(ctx context.Context, guildID string, limit int) ([]XPRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, user_id, xp, updated_at FROM levels
		WHERE guild_id = ? AND xp > 0
		ORDER BY xp DESC, updated_at ASC
		LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []XPRecord
	for rows.Next() {
		var r XPRecord
		var updated int64
		if err := rows.Scan(&r.GuildID, &r.UserID, &r.XP, &updated); err != nil {
			return nil, err
		}
		r.UpdatedAt = fromUnix(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}
