package discord

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/server-otaku/internal/command"
	"github.com/keshon/server-otaku/internal/config"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/stream"
	"github.com/keshon/server-otaku/internal/music/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findDef(defs []*discordgo.ApplicationCommand, name string) *discordgo.ApplicationCommand {
	for _, d := range defs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func findOpt(opts []*discordgo.ApplicationCommandOption, name string) *discordgo.ApplicationCommandOption {
	for _, o := range opts {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func TestSlashDefinitions(t *testing.T) {
	defs := slashDefinitions()
	require.Len(t, defs, len(command.Groups()))

	total := 0
	for _, d := range defs {
		total += len(d.Options)
		for _, sub := range d.Options {
			assert.Equal(t, discordgo.ApplicationCommandOptionSubCommand, sub.Type)
			assert.NotEmpty(t, sub.Description, "/%s %s", d.Name, sub.Name)
		}
	}
	assert.Equal(t, len(command.Kinds()), total)

	music := findDef(defs, "music")
	require.NotNil(t, music)
	play := findOpt(music.Options, "play")
	require.NotNil(t, play)
	require.Len(t, play.Options, 1)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, play.Options[0].Type)
	assert.True(t, play.Options[0].Required)

	volume := findOpt(music.Options, "volume")
	require.NotNil(t, volume)
	level := volume.Options[0]
	assert.Equal(t, discordgo.ApplicationCommandOptionInteger, level.Type)
	require.NotNil(t, level.MinValue)
	assert.Equal(t, 0.0, *level.MinValue)
	assert.Equal(t, 100.0, level.MaxValue)

	mod := findDef(defs, "mod")
	require.NotNil(t, mod)
	warn := findOpt(mod.Options, "warn")
	require.NotNil(t, warn)
	assert.Equal(t, discordgo.ApplicationCommandOptionUser, findOpt(warn.Options, command.OptUser).Type)

	history := findDef(defs, "history")
	require.NotNil(t, history)
	assert.NotNil(t, findOpt(history.Options, "recent"))
}

func TestSlashDefinitions_RequiredFirst(t *testing.T) {
	for _, d := range slashDefinitions() {
		for _, sub := range d.Options {
			optional := false
			for _, o := range sub.Options {
				if !o.Required {
					optional = true
					continue
				}
				assert.False(t, optional, "/%s %s: required option %s after an optional one", d.Name, sub.Name, o.Name)
			}
		}
	}
}

func TestHashCommand(t *testing.T) {
	a := slashDefinitions()[0]
	b := slashDefinitions()[0]
	assert.Equal(t, hashCommand(a), hashCommand(b))

	// option order is irrelevant
	b.Options[0], b.Options[1] = b.Options[1], b.Options[0]
	assert.Equal(t, hashCommand(a), hashCommand(b))

	b.Options[0].Description = "changed"
	assert.NotEqual(t, hashCommand(a), hashCommand(b))

	c := slashDefinitions()[0]
	perms := int64(discordgo.PermissionManageServer)
	c.DefaultMemberPermissions = &perms
	assert.NotEqual(t, hashCommand(a), hashCommand(c))
}

func TestHashCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands", "g1.json")

	assert.Empty(t, loadHashes(path))

	require.NoError(t, saveHashes(path, map[string]string{"music": "abc"}))
	assert.Equal(t, map[string]string{"music": "abc"}, loadHashes(path))
}

func interaction(data discordgo.ApplicationCommandInteractionData) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "alice"}},
		Data:      data,
	}}
}

func TestToInvocation(t *testing.T) {
	st := discordgo.NewState()
	require.NoError(t, st.GuildAdd(&discordgo.Guild{
		ID:       "g1",
		Name:     "Otaku Club",
		Channels: []*discordgo.Channel{{ID: "c1", GuildID: "g1", Name: "general", Type: discordgo.ChannelTypeGuildText}},
	}))
	s := &discordgo.Session{State: st}
	b := &Bot{}

	inv, err := b.toInvocation(s, interaction(discordgo.ApplicationCommandInteractionData{
		Name: "mod",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Name: "ban",
			Type: discordgo.ApplicationCommandOptionSubCommand,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: command.OptUser, Type: discordgo.ApplicationCommandOptionUser, Value: "u2"},
				{Name: command.OptReason, Type: discordgo.ApplicationCommandOptionString, Value: "raid"},
				{Name: command.OptDeleteDays, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
			},
		}},
	}))
	require.NoError(t, err)

	assert.Equal(t, command.KindBan, inv.Kind)
	assert.Equal(t, "g1", inv.GuildID)
	assert.Equal(t, "Otaku Club", inv.GuildName)
	assert.Equal(t, "general", inv.ChannelName)
	assert.Equal(t, "u1", inv.UserID)
	assert.Equal(t, "alice", inv.Username)
	assert.Equal(t, "u2", inv.User(command.OptUser))
	assert.Equal(t, "raid", inv.String(command.OptReason))
	days, ok := inv.Int(command.OptDeleteDays)
	assert.True(t, ok)
	assert.EqualValues(t, 3, days)
}

func TestToInvocation_Unknown(t *testing.T) {
	s := &discordgo.Session{State: discordgo.NewState()}
	_, err := (&Bot{}).toInvocation(s, interaction(discordgo.ApplicationCommandInteractionData{Name: "purge"}))
	assert.ErrorIs(t, err, command.ErrUnknownCommand)
}

func TestOptionValues_Boolean(t *testing.T) {
	v := optionValues([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: command.OptEnabled, Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
	})
	assert.Equal(t, map[string]any{command.OptEnabled: true}, v)
}

func TestInteractionUser_DM(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "u9"}}}
	assert.Equal(t, "u9", interactionUser(i).ID)
}

func TestRenderReply(t *testing.T) {
	e := renderReply(command.Reply{
		Title:       "🎶 Queue",
		Description: "1 track",
		Color:       command.ColorDefault,
		Fields: []command.Field{
			{Name: "Now playing", Value: "song"},
			{Name: "Loop", Value: "off", Inline: true},
		},
	})
	assert.Equal(t, "🎶 Queue", e.Title)
	assert.Equal(t, "1 track", e.Description)
	assert.Equal(t, command.ColorDefault, e.Color)
	require.Len(t, e.Fields, 2)
	assert.False(t, e.Fields[0].Inline)
	assert.True(t, e.Fields[1].Inline)
}

func TestEventEmbed(t *testing.T) {
	tr := track.Track{Title: "Cruel Angel's Thesis", RequestedBy: "alice"}

	playing := eventEmbed(player.Event{Status: player.StatusPlaying, Track: &tr})
	require.NotNil(t, playing)
	assert.Contains(t, playing.Description, "Cruel Angel's Thesis")
	assert.Contains(t, playing.Description, "alice")

	failed := eventEmbed(player.Event{Status: player.StatusError, Track: &tr, Err: errors.New("boom")})
	require.NotNil(t, failed)
	assert.Equal(t, command.ColorError, failed.Color)
	assert.NotContains(t, failed.Description, "boom")

	assert.NotNil(t, eventEmbed(player.Event{Status: player.StatusQueueEnded}))
	assert.Nil(t, eventEmbed(player.Event{Status: player.StatusPaused, Track: &tr}))
	assert.Nil(t, eventEmbed(player.Event{Status: player.StatusPlaying}))
}

func TestFindRoleAndChannel(t *testing.T) {
	roles := []*discordgo.Role{{ID: "r1", Name: "Member"}, {ID: "r2", Name: "Muted"}}
	require.NotNil(t, findRoleByName(roles, "muted"))
	assert.Equal(t, "r2", findRoleByName(roles, "muted").ID)
	assert.Nil(t, findRoleByName(roles, "Admin"))

	channels := []*discordgo.Channel{
		{ID: "v1", Name: "welcome", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "t1", Name: "welcome", Type: discordgo.ChannelTypeGuildText},
	}
	ch := findTextChannel(channels, "#Welcome")
	require.NotNil(t, ch)
	assert.Equal(t, "t1", ch.ID)
	assert.Nil(t, findTextChannel(channels, "moderation-log"))
}

func TestAllows(t *testing.T) {
	assert.True(t, allows(discordgo.PermissionAdministrator, discordgo.PermissionBanMembers))
	assert.True(t, allows(discordgo.PermissionKickMembers, discordgo.PermissionKickMembers|discordgo.PermissionBanMembers))
	assert.False(t, allows(discordgo.PermissionSendMessages, discordgo.PermissionManageServer))
}

func TestHasAnyPermission_Developer(t *testing.T) {
	b := &Bot{cfg: &config.Config{DeveloperID: "dev"}}
	ok, err := b.HasAnyPermission(context.Background(), "g1", "c1", "dev", discordgo.PermissionBanMembers)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsGuildBlacklisted(t *testing.T) {
	b := &Bot{cfg: &config.Config{DiscordGuildBlacklist: []string{"bad"}}}
	assert.True(t, b.isGuildBlacklisted("bad"))
	assert.False(t, b.isGuildBlacklisted("good"))
}

func TestVoiceStateUpdate_IgnoresOwnDisconnect(t *testing.T) {
	st := discordgo.NewState()
	st.User = &discordgo.User{ID: "bot"}
	dg := &discordgo.Session{State: st}

	reg := player.NewRegistry()
	t.Cleanup(reg.CloseAll)
	b := &Bot{dg: dg, players: reg}

	tr := stream.NewTransport(dg, "g", nil)
	s, _ := reg.GetOrCreate("g", func() *player.Session {
		return player.New(player.Options{GuildID: "g", Transport: tr})
	})
	b.voice.Store("g", &voiceBinding{session: s, transport: tr})

	b.onVoiceStateUpdate(dg, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{UserID: "bot", GuildID: "g", ChannelID: "voice-2"},
	})
	assert.Equal(t, "voice-2", tr.ChannelID())

	// a transport without a live connection closed it itself or has not joined yet
	b.onVoiceStateUpdate(dg, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{UserID: "bot", GuildID: "g"},
	})
	got, ok := reg.Get("g")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.False(t, s.Closed())
}

func TestLeave(t *testing.T) {
	reg := player.NewRegistry()
	b := &Bot{players: reg}
	s, _ := reg.GetOrCreate("g", func() *player.Session {
		return player.New(player.Options{GuildID: "g", Transport: stream.NewTransport(nil, "g", nil)})
	})

	assert.True(t, b.Leave("g"))
	assert.True(t, s.Closed())
	assert.False(t, b.Leave("g"))
}
