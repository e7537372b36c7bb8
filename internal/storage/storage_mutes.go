package storage

import (
	"context"
	"time"
)

// MuteRecord is a timed mute that still has to be lifted. It survives
// restarts so the unmute can be rescheduled.
type MuteRecord struct {
	GuildID string    `json:"guild_id"`
	UserID  string    `json:"user_id"`
	Until   time.Time `json:"until"`
	Reason  string    `json:"reason"`
}

func (s *Storage) SaveMute(ctx context.Context, m MuteRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutes (guild_id, user_id, until, reason) VALUES (?, ?, ?, ?)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET until = excluded.until, reason = excluded.reason`,
		m.GuildID, m.UserID, unix(m.Until), m.Reason)
	return err
}

func (s *Storage) DeleteMute(ctx context.Context, guildID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mutes WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return err
}

// PendingMutes returns every stored mute, soonest to expire first.
func (s *Storage) PendingMutes(ctx context.Context) ([]MuteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, user_id, until, reason FROM mutes ORDER BY until`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MuteRecord
	for rows.Next() {
		var m MuteRecord
		var until int64
		if err := rows.Scan(&m.GuildID, &m.UserID, &until, &m.Reason); err != nil {
			return nil, err
		}
		m.Until = fromUnix(until)
		out = append(out, m)
	}
	return out, rows.Err()
}
