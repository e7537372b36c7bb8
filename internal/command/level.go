package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/keshon/server-otaku/internal/leveling"
	"github.com/samber/lo"
)

func (r *Router) rank(ctx context.Context, inv *Invocation) (Reply, error) {
	target := lo.CoalesceOrEmpty(inv.User(OptUser), inv.UserID)

	p, err := r.leveling.Rank(ctx, inv.GuildID, target)
	if err != nil {
		return Reply{}, err
	}

	rep := reply("🏅 Rank", fmt.Sprintf("<@%s>", target))
	rep.Fields = []Field{
		{Name: "Level", Value: humanize.Comma(int64(p.Level)), Inline: true},
		{Name: "XP", Value: humanize.Comma(p.XP), Inline: true},
		{Name: "Position", Value: "#" + humanize.Comma(int64(p.Position)), Inline: true},
		{Name: "Next level", Value: fmt.Sprintf("%s XP to go", humanize.Comma(p.NextLevelXP()-p.XP))},
	}
	return rep, nil
}

func (r *Router) leaderboard(ctx context.Context, inv *Invocation) (Reply, error) {
	limit := int(inv.IntOr(OptLimit, 10))
	entries, err := r.leveling.Leaderboard(ctx, inv.GuildID, limit)
	if err != nil {
		return Reply{}, err
	}
	if len(entries) == 0 {
		return reply("🏆 Leaderboard", "Nobody has earned experience yet."), nil
	}

	lines := lo.Map(entries, func(e leveling.Entry, _ int) string {
		return fmt.Sprintf("%s <@%s> · level %d · %s XP", medal(e.Position), e.UserID, e.Level, humanize.Comma(e.XP))
	})
	return reply("🏆 Leaderboard", strings.Join(lines, "\n")), nil
}

func (r *Router) giveXP(ctx context.Context, inv *Invocation) (Reply, error) {
	target := inv.User(OptUser)
	amount, ok := inv.Int(OptAmount)
	if target == "" || !ok {
		return Reply{}, fmt.Errorf("%w: %s and %s are required", ErrMissingOption, OptUser, OptAmount)
	}

	p, err := r.leveling.Grant(ctx, inv.GuildID, target, amount)
	if err != nil {
		return Reply{}, err
	}

	desc := fmt.Sprintf("<@%s> now has **%s XP** (level %d).", target, humanize.Comma(p.XP), p.Level)
	if p.LeveledUp {
		desc += "\n🎉 Level up!"
	}
	return reply("✨ Experience updated", desc), nil
}

func medal(pos int) string {
	switch pos {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("`%s`", humanize.Ordinal(pos))
	}
}
