package storage

import (
	"context"
	"database/sql"
	"time"
)

// commandHistoryLimit is how many commands are kept per guild.
const commandHistoryLimit = 200

type CommandHistoryRecord struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	GuildID     string    `json:"guild_id"`
	GuildName   string    `json:"guild_name"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Command     string    `json:"command"`
	Param       string    `json:"param"`
	Datetime    time.Time `json:"datetime"`
}

// AppendCommandToHistory stores a command and drops the oldest entries past
// commandHistoryLimit.
func (s *Storage) AppendCommandToHistory(ctx context.Context, rec CommandHistoryRecord) error {
	if rec.Datetime.IsZero() {
		rec.Datetime = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO command_history
				(guild_id, guild_name, channel_id, channel_name, user_id, username, command, param, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.GuildID, rec.GuildName, rec.ChannelID, rec.ChannelName,
			rec.UserID, rec.Username, rec.Command, rec.Param, unix(rec.Datetime),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM command_history
			WHERE guild_id = ? AND id NOT IN (
				SELECT id FROM command_history WHERE guild_id = ? ORDER BY id DESC LIMIT ?
			)`, rec.GuildID, rec.GuildID, commandHistoryLimit)
		return err
	})
}

// FetchCommandHistory returns up to limit commands of a guild, newest first.
func (s *Storage) FetchCommandHistory(ctx context.Context, guildID string, limit int) ([]CommandHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, guild_name, channel_id, channel_name, user_id, username, command, param, created_at
		FROM command_history
		WHERE guild_id = ?
		ORDER BY id DESC
		LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandHistoryRecord
	for rows.Next() {
		var r CommandHistoryRecord
		var at int64
		if err := rows.Scan(&r.GuildID, &r.GuildName, &r.ChannelID, &r.ChannelName,
			&r.UserID, &r.Username, &r.Command, &r.Param, &at); err != nil {
			return nil, err
		}
		r.Datetime = fromUnix(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneCommandHistory deletes commands older than cutoff in every guild.
func (s *Storage) PruneCommandHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM command_history WHERE created_at < ?`, unix(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
