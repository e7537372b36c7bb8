package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/keshon/server-otaku/internal/storage"
	"github.com/samber/lo"
)

// target returns the user option, refusing self-moderation.
func target(inv *Invocation) (string, error) {
	id := inv.User(OptUser)
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingOption, OptUser)
	}
	if id == inv.UserID {
		return "", ErrSelfTarget
	}
	return id, nil
}

func (r *Router) warn(ctx context.Context, inv *Invocation) (Reply, error) {
	id, err := target(inv)
	if err != nil {
		return Reply{}, err
	}
	res, err := r.moderation.Warn(ctx, inv.GuildID, id, inv.UserID, strings.TrimSpace(inv.String(OptReason)))
	if err != nil {
		return Reply{}, err
	}

	desc := fmt.Sprintf("<@%s> has been warned (%d/%d).", id, res.Count, res.Limit)
	if res.Muted {
		desc += "\n🔇 Warning limit reached, they have been muted."
	}
	return reply("⚠️ Warning issued", desc), nil
}

func (r *Router) warnings(ctx context.Context, inv *Invocation) (Reply, error) {
	id := inv.User(OptUser)
	if id == "" {
		return Reply{}, fmt.Errorf("%w: %s", ErrMissingOption, OptUser)
	}
	list, err := r.moderation.Warnings(ctx, inv.GuildID, id)
	if err != nil {
		return Reply{}, err
	}
	if len(list) == 0 {
		rep := reply("📋 Warnings", fmt.Sprintf("<@%s> has no warnings.", id))
		rep.Ephemeral = true
		return rep, nil
	}

	lines := lo.Map(list, func(w storage.Warning, _ int) string {
		return fmt.Sprintf("• %s by <@%s>, %s", w.Reason, w.ModeratorID, humanize.Time(w.CreatedAt))
	})
	rep := reply("📋 Warnings", fmt.Sprintf("<@%s> has %d %s:\n%s", id, len(list), plural(len(list), "warning"), strings.Join(lines, "\n")))
	rep.Ephemeral = true
	return rep, nil
}

func (r *Router) resetWarnings(ctx context.Context, inv *Invocation) (Reply, error) {
	id := inv.User(OptUser)
	if id == "" {
		return Reply{}, fmt.Errorf("%w: %s", ErrMissingOption, OptUser)
	}
	n, err := r.moderation.ResetWarnings(ctx, inv.GuildID, id)
	if err != nil {
		return Reply{}, err
	}
	return reply("🧹 Warnings reset", fmt.Sprintf("Removed %d %s of <@%s>.", n, plural(int(n), "warning"), id)), nil
}

func (r *Router) mute(ctx context.Context, inv *Invocation) (Reply, error) {
	id, err := target(inv)
	if err != nil {
		return Reply{}, err
	}
	d := time.Duration(inv.IntOr(OptMinutes, 0)) * time.Minute
	reason := lo.CoalesceOrEmpty(strings.TrimSpace(inv.String(OptReason)), "no reason given")

	if err := r.moderation.Mute(ctx, inv.GuildID, id, d, reason); err != nil {
		return Reply{}, err
	}

	until := "until unmuted"
	if d > 0 {
		until = "for " + formatSpan(d)
	}
	return reply("🔇 Muted", fmt.Sprintf("<@%s> has been muted %s.", id, until)), nil
}

func (r *Router) unmute(ctx context.Context, inv *Invocation) (Reply, error) {
	id, err := target(inv)
	if err != nil {
		return Reply{}, err
	}
	if err := r.moderation.Unmute(ctx, inv.GuildID, id); err != nil {
		return Reply{}, err
	}
	return reply("🔊 Unmuted", fmt.Sprintf("<@%s> can speak again.", id)), nil
}

func (r *Router) kick(ctx context.Context, inv *Invocation) (Reply, error) {
	id, err := target(inv)
	if err != nil {
		return Reply{}, err
	}
	if err := r.moderation.Kick(ctx, inv.GuildID, id, inv.UserID, strings.TrimSpace(inv.String(OptReason))); err != nil {
		return Reply{}, err
	}
	return reply("👢 Kicked", fmt.Sprintf("<@%s> has been kicked.", id)), nil
}

func (r *Router) ban(ctx context.Context, inv *Invocation) (Reply, error) {
	id, err := target(inv)
	if err != nil {
		return Reply{}, err
	}
	days := int(inv.IntOr(OptDeleteDays, 0))
	if err := r.moderation.Ban(ctx, inv.GuildID, id, inv.UserID, strings.TrimSpace(inv.String(OptReason)), days); err != nil {
		return Reply{}, err
	}
	return reply("🔨 Banned", fmt.Sprintf("<@%s> has been banned.", id)), nil
}

func (r *Router) recentHistory(ctx context.Context, inv *Invocation) (Reply, error) {
	if r.history == nil {
		return reply("📜 History", "Command history is disabled."), nil
	}
	limit := int(inv.IntOr(OptLimit, 10))
	records, err := r.history.FetchCommandHistory(ctx, inv.GuildID, limit)
	if err != nil {
		return Reply{}, err
	}
	if len(records) == 0 {
		return reply("📜 History", "No commands recorded yet."), nil
	}

	lines := lo.Map(records, func(rec storage.CommandHistoryRecord, _ int) string {
		line := fmt.Sprintf("`%s` by **%s**", rec.Command, rec.Username)
		if rec.ChannelName != "" {
			line += " in #" + rec.ChannelName
		}
		return line + ", " + humanize.Time(rec.Datetime)
	})
	rep := reply("📜 History", strings.Join(lines, "\n"))
	rep.Ephemeral = true
	return rep, nil
}

// formatSpan renders a duration as "10 minutes" or "2 days".
func formatSpan(d time.Duration) string {
	origin := time.Unix(0, 0)
	return strings.TrimSpace(humanize.RelTime(origin, origin.Add(d), "", ""))
}
