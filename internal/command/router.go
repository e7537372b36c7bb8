// Package command turns platform-neutral invocations into replies. The
// Discord adapter builds an Invocation from an interaction, calls
// Router.Dispatch and renders the Reply.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/server-otaku/internal/leveling"
	"github.com/keshon/server-otaku/internal/moderation"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/storage"
)

// Players hands out guild sessions.
type Players interface {
	// Join binds the caller's voice channel and returns the guild session,
	// creating it when needed. Events are announced in textChannelID.
	Join(ctx context.Context, guildID, textChannelID, userID string) (*player.Session, error)
	Lookup(guildID string) (*player.Session, bool)
	// Leave closes the guild session and leaves voice. It reports whether
	// there was a session.
	Leave(guildID string) bool
}

type Leveling interface {
	Rank(ctx context.Context, guildID, userID string) (leveling.Progress, error)
	Leaderboard(ctx context.Context, guildID string, limit int) ([]leveling.Entry, error)
	Grant(ctx context.Context, guildID, userID string, amount int64) (leveling.Progress, error)
}

type Moderation interface {
	Warn(ctx context.Context, guildID, targetID, moderatorID, reason string) (moderation.WarnResult, error)
	Warnings(ctx context.Context, guildID, targetID string) ([]storage.Warning, error)
	ResetWarnings(ctx context.Context, guildID, targetID string) (int64, error)
	Mute(ctx context.Context, guildID, targetID string, d time.Duration, reason string) error
	Unmute(ctx context.Context, guildID, targetID string) error
	Kick(ctx context.Context, guildID, targetID, moderatorID, reason string) error
	Ban(ctx context.Context, guildID, targetID, moderatorID, reason string, deleteDays int) error
}

type Deps struct {
	Players     Players
	Leveling    Leveling
	Moderation  Moderation
	History     HistoryStore
	Permissions PermissionChecker
}

type Router struct {
	players    Players
	leveling   Leveling
	moderation Moderation
	history    HistoryStore
	handler    Handler
}

func NewRouter(d Deps) *Router {
	r := &Router{
		players:    d.Players,
		leveling:   d.Leveling,
		moderation: d.Moderation,
		history:    d.History,
	}
	r.handler = Apply(r.dispatch,
		WithGuildOnly(),
		WithPermissions(d.Permissions),
		WithHistory(d.History),
	)
	return r
}

// Dispatch runs inv. On failure the returned Reply is already the
// user-facing error message; the error is returned for logging.
func (r *Router) Dispatch(ctx context.Context, inv *Invocation) (Reply, error) {
	rep, err := r.handler(ctx, inv)
	if err != nil {
		return errorReply(inv.Kind, err), err
	}
	return rep, nil
}

func (r *Router) dispatch(ctx context.Context, inv *Invocation) (Reply, error) {
	switch inv.Kind {
	case KindPlay:
		return r.play(ctx, inv)
	case KindPause:
		return r.pause(ctx, inv)
	case KindResume:
		return r.resume(ctx, inv)
	case KindSkip:
		return r.skip(ctx, inv)
	case KindStop:
		return r.stop(ctx, inv)
	case KindQueue:
		return r.queue(ctx, inv)
	case KindNowPlaying:
		return r.nowPlaying(ctx, inv)
	case KindRemove:
		return r.remove(ctx, inv)
	case KindShuffle:
		return r.shuffle(ctx, inv)
	case KindLoop:
		return r.loop(ctx, inv)
	case KindVolume:
		return r.volume(ctx, inv)
	case KindClear:
		return r.clear(ctx, inv)

	case KindRank:
		return r.rank(ctx, inv)
	case KindLeaderboard:
		return r.leaderboard(ctx, inv)
	case KindGiveXP:
		return r.giveXP(ctx, inv)

	case KindWarn:
		return r.warn(ctx, inv)
	case KindWarnings:
		return r.warnings(ctx, inv)
	case KindResetWarnings:
		return r.resetWarnings(ctx, inv)
	case KindMute:
		return r.mute(ctx, inv)
	case KindUnmute:
		return r.unmute(ctx, inv)
	case KindKick:
		return r.kick(ctx, inv)
	case KindBan:
		return r.ban(ctx, inv)

	case KindHistory:
		return r.recentHistory(ctx, inv)
	default:
		return Reply{}, fmt.Errorf("%w: %d", ErrUnknownCommand, int(inv.Kind))
	}
}
