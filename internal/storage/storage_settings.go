package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Setting keys.
const (
	SettingMutedRole  = "muted_role"
	SettingLogChannel = "log_channel"
)

func (s *Storage) SetGuildSetting(ctx context.Context, guildID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT (guild_id, key) DO UPDATE SET value = excluded.value`,
		guildID, key, value)
	return err
}

// GetGuildSetting returns ErrNotFound when the key was never set.
func (s *Storage) GetGuildSetting(ctx context.Context, guildID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM guild_settings WHERE guild_id = ? AND key = ?`, guildID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q for guild %s: %w", key, guildID, ErrNotFound)
	}
	return value, err
}

func (s *Storage) DeleteGuildSetting(ctx context.Context, guildID, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM guild_settings WHERE guild_id = ? AND key = ?`, guildID, key)
	return err
}
