package discord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/server-otaku/internal/moderation"
	"github.com/keshon/server-otaku/pkg/util"
)

// Permissions the muted role loses in every channel.
const mutedDeny = discordgo.PermissionSendMessages |
	discordgo.PermissionVoiceSpeak |
	discordgo.PermissionAddReactions

// concurrent permission overwrite requests
const overwriteWorkers = 4

func (b *Bot) FindRole(guildID, name string) (string, error) {
	roles, err := b.roles(guildID)
	if err != nil {
		return "", err
	}
	if r := findRoleByName(roles, name); r != nil {
		return r.ID, nil
	}
	return "", fmt.Errorf("%w: %s", moderation.ErrRoleNotFound, name)
}

func (b *Bot) RoleExists(guildID, roleID string) bool {
	if _, err := b.dg.State.Role(guildID, roleID); err == nil {
		return true
	}
	roles, err := b.dg.GuildRoles(guildID)
	if err != nil {
		return false
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}

// CreateMutedRole creates the role and denies it speaking in every channel.
// A channel that refuses the overwrite is logged and skipped.
func (b *Bot) CreateMutedRole(ctx context.Context, guildID, name string) (string, error) {
	noPerms := int64(0)
	role, err := b.dg.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Permissions: &noPerms,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create role %q: %w", name, err)
	}

	channels, err := b.dg.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return role.ID, fmt.Errorf("failed to list channels: %w", err)
	}
	err = util.Parallel(ctx, channels, overwriteWorkers, func(ctx context.Context, ch *discordgo.Channel) error {
		if err := b.dg.ChannelPermissionSet(ch.ID, role.ID, discordgo.PermissionOverwriteTypeRole, 0, mutedDeny, discordgo.WithContext(ctx)); err != nil {
			log.Printf("[WARN] [Moderation] Failed to restrict #%s for role %s: %v", ch.Name, name, err)
		}
		return nil
	})
	if err != nil {
		return role.ID, err
	}
	log.Printf("[INFO] [Moderation] Created role %q in guild %s", name, guildID)
	return role.ID, nil
}

func (b *Bot) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return b.dg.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (b *Bot) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return b.dg.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (b *Bot) Kick(ctx context.Context, guildID, userID, reason string) error {
	return b.dg.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
}

func (b *Bot) Ban(ctx context.Context, guildID, userID, reason string, deleteDays int) error {
	return b.dg.GuildBanCreateWithReason(guildID, userID, reason, deleteDays, discordgo.WithContext(ctx))
}

// Notify posts message to the first text channel named channelName.
// A guild without such a channel is not an error.
func (b *Bot) Notify(ctx context.Context, guildID, channelName, message string) error {
	if channelName == "" {
		return nil
	}
	channels, err := b.channels(ctx, guildID)
	if err != nil {
		return err
	}
	ch := findTextChannel(channels, channelName)
	if ch == nil {
		log.Printf("[DEBUG] No #%s channel in guild %s", channelName, guildID)
		return nil
	}
	_, err = b.dg.ChannelMessageSend(ch.ID, message, discordgo.WithContext(ctx))
	return err
}

func (b *Bot) roles(guildID string) ([]*discordgo.Role, error) {
	if g, err := b.dg.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
		return g.Roles, nil
	}
	return b.dg.GuildRoles(guildID)
}

func (b *Bot) channels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	if g, err := b.dg.State.Guild(guildID); err == nil && len(g.Channels) > 0 {
		return g.Channels, nil
	}
	return b.dg.GuildChannels(guildID, discordgo.WithContext(ctx))
}

func findRoleByName(roles []*discordgo.Role, name string) *discordgo.Role {
	for _, r := range roles {
		if strings.EqualFold(r.Name, name) {
			return r
		}
	}
	return nil
}

func findTextChannel(channels []*discordgo.Channel, name string) *discordgo.Channel {
	name = strings.TrimPrefix(name, "#")
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && strings.EqualFold(ch.Name, name) {
			return ch
		}
	}
	return nil
}
