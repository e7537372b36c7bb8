package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/server-otaku/internal/leveling"
	"github.com/keshon/server-otaku/internal/moderation"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/track"
	"github.com/keshon/server-otaku/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHandle struct {
	done chan error
	once sync.Once
}

func (h *testHandle) Done() <-chan error { return h.done }

func (h *testHandle) finish() {
	h.once.Do(func() {
		h.done <- nil
		close(h.done)
	})
}

// testTransport plays forever until stopped.
type testTransport struct{}

func (testTransport) Start(ctx context.Context, t track.Track, volume int) (player.Handle, error) {
	return &testHandle{done: make(chan error, 1)}, nil
}
func (testTransport) Pause(h player.Handle) error { return nil }
func (testTransport) Resume(h player.Handle) error { return nil }
func (testTransport) Stop(h player.Handle) error { h.(*testHandle).finish(); return nil }
func (testTransport) SetVolume(h player.Handle, v int) error { return nil }
func (testTransport) Close() error { return nil }

type testResolver struct{}

func (testResolver) Resolve(ctx context.Context, input, requestedBy string) ([]track.Track, error) {
	switch input {
	case "missing":
		return nil, errors.New("no results")
	case "playlist":
		return []track.Track{
			{Title: "p1", Locator: "https://youtu.be/aaaaaaaaaaa", Duration: time.Minute, RequestedBy: requestedBy},
			{Title: "p2", Locator: "https://youtu.be/bbbbbbbbbbb", Duration: time.Minute, RequestedBy: requestedBy},
			{Title: "p3", Locator: "https://youtu.be/ccccccccccc", Duration: time.Minute, RequestedBy: requestedBy},
		}, nil
	default:
		return []track.Track{{Title: input, Locator: input, Duration: 3*time.Minute + 7*time.Second, RequestedBy: requestedBy}}, nil
	}
}

type testPlayers struct {
	reg *player.Registry

	mu   sync.Mutex
	left []string
}

func (p *testPlayers) Join(ctx context.Context, guildID, textChannelID, userID string) (*player.Session, error) {
	if userID == "not-in-voice" {
		return nil, ErrNotInVoice
	}
	s, _ := p.reg.GetOrCreate(guildID, func() *player.Session {
		return player.New(player.Options{GuildID: guildID, Transport: testTransport{}, Resolver: testResolver{}, Volume: 100})
	})
	return s, nil
}

func (p *testPlayers) Lookup(guildID string) (*player.Session, bool) { return p.reg.Get(guildID) }

func (p *testPlayers) Leave(guildID string) bool {
	p.mu.Lock()
	p.left = append(p.left, guildID)
	p.mu.Unlock()
	return p.reg.Remove(guildID)
}

type modCall struct {
	op, target, reason string
	d                  time.Duration
	days               int
}

type fakeModeration struct {
	mu    sync.Mutex
	calls []modCall
	count int
}

func (m *fakeModeration) record(c modCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *fakeModeration) Warn(ctx context.Context, guildID, targetID, moderatorID, reason string) (moderation.WarnResult, error) {
	if reason == "" {
		return moderation.WarnResult{}, moderation.ErrEmptyReason
	}
	m.record(modCall{op: "warn", target: targetID, reason: reason})
	m.count++
	return moderation.WarnResult{Count: m.count, Limit: 3, Muted: m.count >= 3}, nil
}

func (m *fakeModeration) Warnings(ctx context.Context, guildID, targetID string) ([]storage.Warning, error) {
	return []storage.Warning{{Reason: "spam", ModeratorID: "mod", CreatedAt: time.Now().Add(-time.Hour)}}, nil
}

func (m *fakeModeration) ResetWarnings(ctx context.Context, guildID, targetID string) (int64, error) {
	m.record(modCall{op: "reset", target: targetID})
	return 2, nil
}

func (m *fakeModeration) Mute(ctx context.Context, guildID, targetID string, d time.Duration, reason string) error {
	m.record(modCall{op: "mute", target: targetID, d: d, reason: reason})
	return nil
}

func (m *fakeModeration) Unmute(ctx context.Context, guildID, targetID string) error {
	m.record(modCall{op: "unmute", target: targetID})
	return nil
}

func (m *fakeModeration) Kick(ctx context.Context, guildID, targetID, moderatorID, reason string) error {
	m.record(modCall{op: "kick", target: targetID, reason: reason})
	return nil
}

func (m *fakeModeration) Ban(ctx context.Context, guildID, targetID, moderatorID, reason string, deleteDays int) error {
	m.record(modCall{op: "ban", target: targetID, reason: reason, days: deleteDays})
	return nil
}

type fakePerms struct {
	mods map[string]bool
	err  error
}

func (f fakePerms) HasAnyPermission(ctx context.Context, guildID, channelID, userID string, perms int64) (bool, error) {
	return f.mods[userID], f.err
}

type fixture struct {
	router  *Router
	reg     *player.Registry
	players *testPlayers
	store   *storage.Storage
	mod     *fakeModeration
	lvl     *leveling.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.New(":memory:")
	require.NoError(t, err)

	reg := player.NewRegistry()
	t.Cleanup(func() {
		reg.CloseAll()
		st.Close()
	})

	f := &fixture{reg: reg, players: &testPlayers{reg: reg}, store: st, mod: &fakeModeration{}, lvl: leveling.New(st, 10, time.Minute)}
	f.router = NewRouter(Deps{
		Players:     f.players,
		Leveling:    f.lvl,
		Moderation:  f.mod,
		History:     st,
		Permissions: fakePerms{mods: map[string]bool{"mod": true}},
	})
	return f
}

func inv(kind Kind, user string, opts map[string]any) *Invocation {
	return &Invocation{
		Kind: kind, GuildID: "g", GuildName: "Guild", ChannelID: "c", ChannelName: "general",
		UserID: user, Username: user, Options: opts,
	}
}

func (f *fixture) run(t *testing.T, kind Kind, user string, opts map[string]any) (Reply, error) {
	t.Helper()
	return f.router.Dispatch(context.Background(), inv(kind, user, opts))
}

func TestKinds_Complete(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Kinds() {
		assert.NotEqual(t, "unknown", k.String(), "kind %d has no name", int(k))
		assert.NotEmpty(t, k.Group(), "kind %s has no group", k)
		assert.NotEmpty(t, k.Description(), "kind %s has no description", k)
		assert.False(t, seen[k.FullName()], "duplicate %s", k.FullName())
		seen[k.FullName()] = true

		parsed, err := ParseKind(k.FullName())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)

		for _, o := range k.Options() {
			assert.NotEmpty(t, o.Description, "%s option %s", k, o.Name)
			assert.LessOrEqual(t, o.Min, o.Max, "%s option %s", k, o.Name)
		}
	}
	assert.Len(t, Kinds(), 23)

	total := 0
	for _, g := range Groups() {
		total += len(InGroup(g))
	}
	assert.Equal(t, len(Kinds()), total, "every kind belongs to a listed group")
}

func TestKinds_AllDispatch(t *testing.T) {
	f := newFixture(t)
	for _, k := range Kinds() {
		_, err := f.run(t, k, "mod", map[string]any{OptUser: "someone"})
		assert.NotErrorIs(t, err, ErrUnknownCommand, "kind %s", k)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("play")
	require.NoError(t, err)
	assert.Equal(t, KindPlay, k)

	k, err = ParseKind(" /MOD warn ")
	require.NoError(t, err)
	assert.Equal(t, KindWarn, k)

	_, err = ParseKind("/level warn")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = ParseKind("dance")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "/music now-playing", KindNowPlaying.FullName())
}

func TestDispatch_UnknownKind(t *testing.T) {
	f := newFixture(t)
	rep, err := f.run(t, KindUnknown, "u", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.True(t, rep.Ephemeral)
	assert.Equal(t, ColorError, rep.Color)
}

func TestDispatch_GuildOnly(t *testing.T) {
	f := newFixture(t)
	i := inv(KindRank, "u", nil)
	i.GuildID = ""

	rep, err := f.router.Dispatch(context.Background(), i)
	assert.ErrorIs(t, err, ErrGuildOnly)
	assert.Equal(t, ErrGuildOnly.Error(), rep.Description)
}

func TestDispatch_Permissions(t *testing.T) {
	f := newFixture(t)

	rep, err := f.run(t, KindWarn, "member", map[string]any{OptUser: "x", OptReason: "r"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, rep.Description, "Moderate Members")
	assert.Empty(t, f.mod.calls)

	_, err = f.run(t, KindWarn, "mod", map[string]any{OptUser: "x", OptReason: "r"})
	assert.NoError(t, err)

	// open commands skip the check entirely
	_, err = f.run(t, KindRank, "member", nil)
	assert.NoError(t, err)
}

func TestDispatch_PermissionLookupFails(t *testing.T) {
	r := NewRouter(Deps{Moderation: &fakeModeration{}, Permissions: fakePerms{err: errors.New("gateway down")}})
	_, err := r.Dispatch(context.Background(), inv(KindKick, "mod", map[string]any{OptUser: "x"}))
	assert.ErrorContains(t, err, "gateway down")
}

func TestDispatch_RecordsHistory(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, KindPlay, "alice", map[string]any{OptInput: "lofi beats"})
	require.NoError(t, err)
	_, err = f.run(t, KindPause, "bob", nil)
	require.NoError(t, err)

	recs, err := f.store.FetchCommandHistory(context.Background(), "g", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "/music pause", recs[0].Command)
	assert.Equal(t, "/music play", recs[1].Command)
	assert.Equal(t, "input=lofi beats", recs[1].Param)
	assert.Equal(t, "general", recs[1].ChannelName)

	rep, err := f.run(t, KindHistory, "mod", nil)
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "`/music play` by **alice** in #general")
}

func TestMusic_PlayAndQueue(t *testing.T) {
	f := newFixture(t)

	rep, err := f.run(t, KindPlay, "alice", map[string]any{OptInput: "first"})
	require.NoError(t, err)
	assert.Contains(t, rep.Title, "Now playing")
	assert.Contains(t, rep.Description, "**first** `3:07`")

	rep, err = f.run(t, KindPlay, "alice", map[string]any{OptInput: "second"})
	require.NoError(t, err)
	assert.Contains(t, rep.Title, "Added to queue")
	assert.Contains(t, rep.Description, "Position **#1**")

	rep, err = f.run(t, KindPlay, "alice", map[string]any{OptInput: "playlist"})
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "Position **#2**")
	assert.Contains(t, rep.Description, "…and 2 more tracks")

	rep, err = f.run(t, KindQueue, "alice", nil)
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "`1.` **second**")
	assert.Contains(t, rep.Description, "`2.` **[p1](https://youtu.be/aaaaaaaaaaa)**")
	require.Len(t, rep.Fields, 4)
	assert.Equal(t, "4 tracks, 6:07", rep.Fields[1].Value)

	rep, err = f.run(t, KindNowPlaying, "alice", nil)
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "first")
	assert.Equal(t, "Playing", rep.Fields[0].Value)
	assert.Equal(t, "alice", rep.Fields[1].Value)
}

func TestMusic_PlayErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, KindPlay, "alice", map[string]any{OptInput: "  "})
	assert.ErrorIs(t, err, ErrMissingOption)

	rep, err := f.run(t, KindPlay, "not-in-voice", map[string]any{OptInput: "x"})
	assert.ErrorIs(t, err, ErrNotInVoice)
	assert.Equal(t, ErrNotInVoice.Error(), rep.Description)

	rep, err = f.run(t, KindPlay, "alice", map[string]any{OptInput: "missing"})
	assert.ErrorIs(t, err, player.ErrTrackResolutionFailed)
	assert.Equal(t, "Couldn't find anything playable for that input.", rep.Description)
}

func TestMusic_NoSession(t *testing.T) {
	f := newFixture(t)
	for _, k := range []Kind{KindPause, KindResume, KindSkip, KindStop, KindQueue, KindNowPlaying, KindShuffle, KindLoop, KindClear} {
		rep, err := f.run(t, k, "alice", nil)
		assert.ErrorIs(t, err, player.ErrNoActiveTrack, "kind %s", k)
		assert.Equal(t, "Nothing is playing right now.", rep.Description)
	}
}

func TestMusic_Controls(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, KindPlay, "alice", map[string]any{OptInput: "a"})
	require.NoError(t, err)
	_, err = f.run(t, KindPlay, "alice", map[string]any{OptInput: "b"})
	require.NoError(t, err)

	_, err = f.run(t, KindPause, "alice", nil)
	require.NoError(t, err)
	rep, err := f.run(t, KindPause, "alice", nil)
	assert.ErrorIs(t, err, player.ErrAlreadyPaused)
	assert.Equal(t, "Playback is already paused.", rep.Description)

	_, err = f.run(t, KindResume, "alice", nil)
	require.NoError(t, err)

	rep, err = f.run(t, KindLoop, "alice", nil)
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "**on**")
	rep, err = f.run(t, KindLoop, "alice", map[string]any{OptEnabled: false})
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "**off**")

	_, err = f.run(t, KindVolume, "alice", map[string]any{OptLevel: int64(150)})
	assert.ErrorIs(t, err, player.ErrInvalidArgument)
	rep, err = f.run(t, KindVolume, "alice", map[string]any{OptLevel: 40.0})
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "40%")

	_, err = f.run(t, KindRemove, "alice", map[string]any{OptPosition: int64(5)})
	assert.ErrorIs(t, err, player.ErrOutOfRange)

	rep, err = f.run(t, KindSkip, "alice", nil)
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "Skipped **a**")
	assert.Contains(t, rep.Description, "Up next: **b**")

	s, ok := f.reg.Get("g")
	require.True(t, ok)
	rep, err = f.run(t, KindStop, "alice", nil)
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "left the voice channel")
	assert.Equal(t, player.StateStopped, s.View().State)
	assert.True(t, s.Closed())
}

func TestMusic_StopLeavesVoice(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, KindPlay, "alice", map[string]any{OptInput: "a"})
	require.NoError(t, err)

	_, err = f.run(t, KindStop, "alice", nil)
	require.NoError(t, err)

	f.players.mu.Lock()
	assert.Equal(t, []string{"g"}, f.players.left)
	f.players.mu.Unlock()
	_, ok := f.reg.Get("g")
	assert.False(t, ok, "stop destroys the session")

	// the next play builds a fresh session
	rep, err := f.run(t, KindPlay, "alice", map[string]any{OptInput: "b"})
	require.NoError(t, err)
	assert.Contains(t, rep.Title, "Now playing")
}

func TestLevel_Commands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.lvl.Grant(ctx, "g", "alice", 450)
	require.NoError(t, err)
	_, err = f.lvl.Grant(ctx, "g", "bob", 120)
	require.NoError(t, err)

	rep, err := f.run(t, KindRank, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, "<@bob>", rep.Description)
	assert.Equal(t, "1", rep.Fields[0].Value)
	assert.Equal(t, "#2", rep.Fields[2].Value)
	assert.Equal(t, "280 XP to go", rep.Fields[3].Value)

	rep, err = f.run(t, KindLeaderboard, "bob", nil)
	require.NoError(t, err)
	lines := strings.Split(rep.Description, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "🥇 <@alice> · level 2 · 450 XP", lines[0])

	_, err = f.run(t, KindGiveXP, "bob", map[string]any{OptUser: "bob", OptAmount: int64(1000)})
	assert.ErrorIs(t, err, ErrForbidden)

	rep, err = f.run(t, KindGiveXP, "mod", map[string]any{OptUser: "bob", OptAmount: int64(1000)})
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "1,120 XP")
	assert.Contains(t, rep.Description, "Level up")
}

func TestMod_Commands(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, KindWarn, "mod", map[string]any{OptUser: "mod", OptReason: "x"})
	assert.ErrorIs(t, err, ErrSelfTarget)

	_, err = f.run(t, KindWarn, "mod", map[string]any{OptUser: "troll"})
	assert.ErrorIs(t, err, moderation.ErrEmptyReason)

	for range 2 {
		_, err = f.run(t, KindWarn, "mod", map[string]any{OptUser: "troll", OptReason: "rude"})
		require.NoError(t, err)
	}
	rep, err := f.run(t, KindWarn, "mod", map[string]any{OptUser: "troll", OptReason: "rude"})
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "(3/3)")
	assert.Contains(t, rep.Description, "muted")

	rep, err = f.run(t, KindMute, "mod", map[string]any{OptUser: "troll", OptMinutes: int64(10)})
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "muted for 10 minutes")

	rep, err = f.run(t, KindMute, "mod", map[string]any{OptUser: "troll"})
	require.NoError(t, err)
	assert.Contains(t, rep.Description, "until unmuted")

	rep, err = f.run(t, KindWarnings, "mod", map[string]any{OptUser: "troll"})
	require.NoError(t, err)
	assert.True(t, rep.Ephemeral)
	assert.Contains(t, rep.Description, "spam by <@mod>, 1 hour ago")

	_, err = f.run(t, KindBan, "mod", map[string]any{OptUser: "troll", OptReason: "raid", OptDeleteDays: int64(3)})
	require.NoError(t, err)

	last := f.mod.calls[len(f.mod.calls)-1]
	assert.Equal(t, modCall{op: "ban", target: "troll", reason: "raid", days: 3}, last)

	mute := f.mod.calls[3]
	assert.Equal(t, 10*time.Minute, mute.d)
	assert.Equal(t, "no reason given", mute.reason)
}

func TestApply_Order(t *testing.T) {
	var trace []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, inv *Invocation) (Reply, error) {
				trace = append(trace, name)
				return next(ctx, inv)
			}
		}
	}
	h := Apply(func(ctx context.Context, inv *Invocation) (Reply, error) {
		trace = append(trace, "handler")
		return Reply{}, nil
	}, mw("outer"), mw("inner"))

	_, _ = h(context.Background(), &Invocation{})
	assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
}

func TestInvocationGetters(t *testing.T) {
	i := &Invocation{Options: map[string]any{
		"s": "text", "i": int64(3), "f": 4.0, "n": 5, "b": true,
	}}
	assert.Equal(t, "text", i.String("s"))
	assert.Empty(t, i.String("i"))

	for name, want := range map[string]int64{"i": 3, "f": 4, "n": 5} {
		got, ok := i.Int(name)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := i.Int("missing")
	assert.False(t, ok)
	assert.Equal(t, int64(9), i.IntOr("missing", 9))

	b, ok := i.Bool("b")
	assert.True(t, ok)
	assert.True(t, b)

	assert.Equal(t, "b=true f=4 i=3 n=5 s=text", i.Param())
}

func TestPermissionNames(t *testing.T) {
	assert.Equal(t, []string{"Manage Roles", "Moderate Members"}, PermissionNames(moderatorPerms))
	assert.Equal(t, []string{fmt.Sprintf("0x%x", discordgo.PermissionSendMessages)}, PermissionNames(discordgo.PermissionSendMessages))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "3:07", formatClock(3*time.Minute+7*time.Second))
	assert.Equal(t, "1:02:03", formatClock(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "live", formatDuration(track.Track{}))
	assert.Equal(t, "10 minutes", formatSpan(10*time.Minute))
	assert.Equal(t, "🥉", medal(3))
	assert.Equal(t, "`4th`", medal(4))
}

func TestErrorReply_HidesInternalErrors(t *testing.T) {
	rep := errorReply(KindPlay, errors.New("sql: database is locked"))
	assert.Equal(t, "Something went wrong, please try again later.", rep.Description)
	assert.True(t, rep.Ephemeral)
}
