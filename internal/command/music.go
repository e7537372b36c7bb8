package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/track"
	"github.com/samber/lo"
)

const queuePageSize = 10

func (r *Router) session(inv *Invocation) (*player.Session, error) {
	s, ok := r.players.Lookup(inv.GuildID)
	if !ok {
		return nil, player.ErrNoActiveTrack
	}
	return s, nil
}

func (r *Router) play(ctx context.Context, inv *Invocation) (Reply, error) {
	input := strings.TrimSpace(inv.String(OptInput))
	if input == "" {
		return Reply{}, fmt.Errorf("%w: %s", ErrMissingOption, OptInput)
	}

	s, err := r.players.Join(ctx, inv.GuildID, inv.ChannelID, inv.UserID)
	if err != nil {
		return Reply{}, err
	}
	res, err := s.Play(ctx, input, inv.Username)
	if err != nil {
		return Reply{}, err
	}

	first := res.Tracks[0]
	var rep Reply
	if res.Started {
		rep = reply(player.StatusPlaying.StringEmoji()+" Now playing", trackLine(first))
	} else {
		rep = reply(player.StatusAdded.StringEmoji()+" Added to queue", fmt.Sprintf("%s\nPosition **#%d**", trackLine(first), res.Position))
	}
	if extra := len(res.Tracks) - 1; extra > 0 {
		rep.Description += fmt.Sprintf("\n…and %s more %s", humanize.Comma(int64(extra)), plural(extra, "track"))
	}
	return rep, nil
}

func (r *Router) pause(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	if err := s.Pause(ctx); err != nil {
		return Reply{}, err
	}
	return reply(player.StatusPaused.StringEmoji()+" Paused", nowPlayingLine(s.View())), nil
}

func (r *Router) resume(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	if err := s.Resume(ctx); err != nil {
		return Reply{}, err
	}
	return reply(player.StatusResumed.StringEmoji()+" Resumed", nowPlayingLine(s.View())), nil
}

func (r *Router) skip(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	skipped, err := s.Skip(ctx)
	if err != nil {
		return Reply{}, err
	}
	desc := fmt.Sprintf("Skipped %s", trackLine(skipped))
	if v := s.View(); v.Current != nil {
		desc += "\nUp next: " + trackLine(*v.Current)
	}
	return reply(player.StatusSkipped.StringEmoji()+" Skipped", desc), nil
}

func (r *Router) stop(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	if err := s.Stop(ctx); err != nil {
		return Reply{}, err
	}
	r.players.Leave(inv.GuildID)
	return reply(player.StatusStopped.StringEmoji()+" Stopped", "Playback stopped, the queue was cleared and I left the voice channel."), nil
}

func (r *Router) queue(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	v := s.View()
	if v.Current == nil && len(v.Queue) == 0 {
		return reply("🎶 Queue", "The queue is empty."), nil
	}

	lines := lo.Map(lo.Slice(v.Queue, 0, queuePageSize), func(t track.Track, i int) string {
		return fmt.Sprintf("`%d.` %s", i+1, trackLine(t))
	})
	if rest := len(v.Queue) - queuePageSize; rest > 0 {
		lines = append(lines, fmt.Sprintf("…and %d more", rest))
	}
	if len(lines) == 0 {
		lines = []string{"Nothing queued."}
	}

	rep := reply("🎶 Queue", strings.Join(lines, "\n"))
	rep.Fields = append(rep.Fields,
		Field{Name: "Now playing", Value: nowPlayingLine(v)},
		Field{Name: "Total", Value: queueLength(v.Queue), Inline: true},
		Field{Name: "Loop", Value: onOff(v.Loop), Inline: true},
		Field{Name: "Volume", Value: fmt.Sprintf("%d%%", v.Volume), Inline: true},
	)
	return rep, nil
}

func (r *Router) nowPlaying(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	v := s.View()
	if v.Current == nil {
		return Reply{}, player.ErrNoActiveTrack
	}

	rep := reply(player.StatusPlaying.StringEmoji()+" Now playing", trackLine(*v.Current))
	rep.Fields = []Field{
		{Name: "State", Value: v.State.String(), Inline: true},
		{Name: "Requested by", Value: lo.CoalesceOrEmpty(v.Current.RequestedBy, "unknown"), Inline: true},
		{Name: "Up next", Value: fmt.Sprintf("%d %s", len(v.Queue), plural(len(v.Queue), "track")), Inline: true},
	}
	return rep, nil
}

func (r *Router) remove(ctx context.Context, inv *Invocation) (Reply, error) {
	pos, ok := inv.Int(OptPosition)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrMissingOption, OptPosition)
	}
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	removed, err := s.Remove(ctx, int(pos))
	if err != nil {
		return Reply{}, err
	}
	return reply("🗑 Removed", trackLine(removed)), nil
}

func (r *Router) shuffle(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	if err := s.Shuffle(ctx); err != nil {
		return Reply{}, err
	}
	return reply("🔀 Shuffled", fmt.Sprintf("Shuffled %s.", queueLength(s.View().Queue))), nil
}

func (r *Router) loop(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}

	on, given := inv.Bool(OptEnabled)
	if given {
		err = s.SetLoop(ctx, on)
	} else {
		on, err = s.ToggleLoop(ctx)
	}
	if err != nil {
		return Reply{}, err
	}
	return reply("🔁 Loop", "Repeat is now **"+onOff(on)+"**."), nil
}

func (r *Router) volume(ctx context.Context, inv *Invocation) (Reply, error) {
	level, ok := inv.Int(OptLevel)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrMissingOption, OptLevel)
	}
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	if err := s.SetVolume(ctx, int(level)); err != nil {
		return Reply{}, err
	}
	return reply("🔊 Volume", fmt.Sprintf("Volume set to **%d%%**.", level)), nil
}

func (r *Router) clear(ctx context.Context, inv *Invocation) (Reply, error) {
	s, err := r.session(inv)
	if err != nil {
		return Reply{}, err
	}
	if err := s.Clear(ctx); err != nil {
		return Reply{}, err
	}
	return reply("🧹 Cleared", "Upcoming tracks were removed."), nil
}

func trackLine(t track.Track) string {
	label := t.Display()
	if strings.HasPrefix(t.Locator, "http") {
		label = fmt.Sprintf("[%s](%s)", label, t.Locator)
	}
	return fmt.Sprintf("**%s** `%s`", label, formatDuration(t))
}

func nowPlayingLine(v player.View) string {
	if v.Current == nil {
		return "Nothing"
	}
	line := trackLine(*v.Current)
	if v.State == player.StatePaused {
		line += " (paused)"
	}
	return line
}

func queueLength(q []track.Track) string {
	total := lo.SumBy(q, func(t track.Track) time.Duration { return t.Duration })
	s := fmt.Sprintf("%d %s", len(q), plural(len(q), "track"))
	if total > 0 {
		s += ", " + formatClock(total)
	}
	return s
}

// formatDuration renders 3:07 or 1:02:03; unknown durations are live streams.
func formatDuration(t track.Track) string {
	if !t.DurationKnown() {
		return "live"
	}
	return formatClock(t.Duration)
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
