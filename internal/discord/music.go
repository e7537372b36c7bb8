package discord

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	embed "github.com/clinet/discordgo-embed"
	"github.com/keshon/server-otaku/internal/command"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/stream"
)

// voiceBinding pairs a session with the transport it was created with.
type voiceBinding struct {
	session   *player.Session
	transport *stream.Transport
}

// Join binds the caller's voice channel to the guild session and remembers
// textChannelID for announcements.
func (b *Bot) Join(ctx context.Context, guildID, textChannelID, userID string) (*player.Session, error) {
	channelID, err := b.EnsureVoice(guildID, userID)
	if err != nil {
		return nil, err
	}

	var vb *voiceBinding
	s, created := b.players.GetOrCreate(guildID, func() *player.Session {
		tr := stream.NewTransport(b.dg, guildID, b.resolver)
		s := player.New(player.Options{
			GuildID:   guildID,
			Transport: tr,
			Resolver:  b.resolver,
			Volume:    b.cfg.PlayerDefaultVolume,
		})
		vb = &voiceBinding{session: s, transport: tr}
		b.voice.Store(guildID, vb)
		return s
	})

	if v, ok := b.voice.Load(guildID); ok {
		v.(*voiceBinding).transport.SetChannel(channelID)
	}
	b.announce.Store(guildID, textChannelID)

	if created {
		go b.forwardEvents(vb)
	}
	return s, nil
}

// Leave closes the guild session and disconnects from voice.
func (b *Bot) Leave(guildID string) bool {
	return b.players.Remove(guildID)
}

// EnsureVoice returns the voice channel the user is connected to.
func (b *Bot) EnsureVoice(guildID, userID string) (string, error) {
	vs, err := b.dg.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", command.ErrNotInVoice
	}
	return vs.ChannelID, nil
}

func (b *Bot) Lookup(guildID string) (*player.Session, bool) {
	return b.players.Get(guildID)
}

// forwardEvents announces the session's events until it closes.
func (b *Bot) forwardEvents(vb *voiceBinding) {
	s := vb.session
	guildID := s.GuildID()
	defer func() {
		// a new session may already own the guild
		b.voice.CompareAndDelete(guildID, vb)
		log.Printf("[INFO] [Player] Session for guild %s closed", guildID)
	}()

	for ev := range s.Events() {
		msg := eventEmbed(ev)
		if msg == nil {
			continue
		}
		v, ok := b.announce.Load(guildID)
		if !ok {
			continue
		}
		if _, err := b.dg.ChannelMessageSendEmbed(v.(string), msg); err != nil {
			log.Printf("[WARN] [Player] Failed to announce in guild %s: %v", guildID, err)
		}
	}
}

// eventEmbed renders the events worth announcing; nil means stay quiet.
func eventEmbed(ev player.Event) *discordgo.MessageEmbed {
	title := ev.Status.StringEmoji() + " " + string(ev.Status)
	switch ev.Status {
	case player.StatusPlaying:
		if ev.Track == nil {
			return nil
		}
		desc := fmt.Sprintf("**%s**", ev.Track.Display())
		if ev.Track.RequestedBy != "" {
			desc += "\nRequested by " + ev.Track.RequestedBy
		}
		return embed.NewEmbed().SetColor(command.ColorDefault).SetTitle(title).SetDescription(desc).MessageEmbed
	case player.StatusQueueEnded:
		return embed.NewEmbed().SetColor(command.ColorDefault).SetTitle(title).
			SetDescription("Nothing left to play.").MessageEmbed
	case player.StatusError:
		desc := "Playback failed."
		if ev.Track != nil {
			desc = fmt.Sprintf("Couldn't play **%s**, skipping it.", ev.Track.Display())
		}
		return embed.NewEmbed().SetColor(command.ColorError).SetTitle(title).SetDescription(desc).MessageEmbed
	default:
		return nil
	}
}

// onVoiceStateUpdate drops the session when the bot is disconnected from
// voice by someone else.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State == nil || s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}
	v, ok := b.voice.Load(vs.GuildID)
	if !ok {
		return
	}
	vb := v.(*voiceBinding)
	if vs.ChannelID != "" {
		vb.transport.SetChannel(vs.ChannelID)
		return
	}
	if b.dropDisconnected(vs.GuildID, vb) {
		log.Printf("[INFO] [Player] Disconnected from voice in guild %s, session removed", vs.GuildID)
	}
}

// dropDisconnected removes the session bound to vb after an external
// disconnect. Our own Close clears the connection first, and a session that
// has not joined yet has none, so both are skipped.
func (b *Bot) dropDisconnected(guildID string, vb *voiceBinding) bool {
	if !vb.transport.Connected() {
		return false
	}
	return b.players.RemoveSession(guildID, vb.session)
}
