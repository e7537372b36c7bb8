package command

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/server-otaku/internal/storage"
)

// Handler runs one invocation.
type Handler func(ctx context.Context, inv *Invocation) (Reply, error)

// Middleware wraps a handler (guild check, permissions, history).
type Middleware func(Handler) Handler

// Apply wraps h so that the first middleware is the outermost.
func Apply(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// PermissionChecker reports whether the user holds at least one of perms in
// the channel. Implementations let administrators through.
type PermissionChecker interface {
	HasAnyPermission(ctx context.Context, guildID, channelID, userID string, perms int64) (bool, error)
}

type HistoryStore interface {
	AppendCommandToHistory(ctx context.Context, rec storage.CommandHistoryRecord) error
	FetchCommandHistory(ctx context.Context, guildID string, limit int) ([]storage.CommandHistoryRecord, error)
}

func WithGuildOnly() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, inv *Invocation) (Reply, error) {
			if inv.GuildID == "" {
				return Reply{}, ErrGuildOnly
			}
			return next(ctx, inv)
		}
	}
}

func WithPermissions(checker PermissionChecker) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, inv *Invocation) (Reply, error) {
			required := inv.Kind.Permissions()
			if checker == nil || required == 0 {
				return next(ctx, inv)
			}

			ok, err := checker.HasAnyPermission(ctx, inv.GuildID, inv.ChannelID, inv.UserID, required)
			if err != nil {
				return Reply{}, fmt.Errorf("failed to get user permissions: %w", err)
			}
			if !ok {
				return Reply{}, fmt.Errorf("%w: you need one of `%s`", ErrForbidden, strings.Join(PermissionNames(required), "`, `"))
			}
			return next(ctx, inv)
		}
	}
}

// WithHistory records every invocation after it ran.
func WithHistory(store HistoryStore) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, inv *Invocation) (Reply, error) {
			rep, err := next(ctx, inv)
			if store == nil || inv.GuildID == "" {
				return rep, err
			}

			rec := storage.CommandHistoryRecord{
				GuildID:     inv.GuildID,
				GuildName:   inv.GuildName,
				ChannelID:   inv.ChannelID,
				ChannelName: inv.ChannelName,
				UserID:      inv.UserID,
				Username:    inv.Username,
				Command:     inv.Kind.FullName(),
				Param:       inv.Param(),
				Datetime:    time.Now(),
			}
			if e := store.AppendCommandToHistory(ctx, rec); e != nil {
				log.Printf("[WARN] Failed to log command %s: %v", inv.Kind.FullName(), e)
			}
			return rep, err
		}
	}
}

var permissionNames = []struct {
	bit  int64
	name string
}{
	{discordgo.PermissionAdministrator, "Administrator"},
	{discordgo.PermissionManageServer, "Manage Server"},
	{discordgo.PermissionManageRoles, "Manage Roles"},
	{discordgo.PermissionModerateMembers, "Moderate Members"},
	{discordgo.PermissionKickMembers, "Kick Members"},
	{discordgo.PermissionBanMembers, "Ban Members"},
}

// PermissionNames spells out the bits set in perms.
func PermissionNames(perms int64) []string {
	var out []string
	rest := perms
	for _, p := range permissionNames {
		if perms&p.bit != 0 {
			out = append(out, p.name)
			rest &^= p.bit
		}
	}
	if rest != 0 {
		out = append(out, fmt.Sprintf("0x%x", rest))
	}
	return out
}
