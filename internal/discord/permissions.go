package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// HasAnyPermission reports whether the user holds at least one of perms in
// the channel. The developer, the guild owner and administrators pass.
func (b *Bot) HasAnyPermission(ctx context.Context, guildID, channelID, userID string, perms int64) (bool, error) {
	if b.cfg.DeveloperID != "" && userID == b.cfg.DeveloperID {
		return true, nil
	}

	// the owner gets PermissionAll from both lookups
	granted, err := b.dg.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		granted, err = b.dg.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
		if err != nil {
			return false, err
		}
	}
	return allows(granted, perms), nil
}

func allows(granted, perms int64) bool {
	if granted&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return granted&perms != 0
}
