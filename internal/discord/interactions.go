package discord

import (
	"context"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	embed "github.com/clinet/discordgo-embed"
	"github.com/keshon/server-otaku/internal/command"
)

// Music commands may resolve playlists and join voice, which can take
// longer than the 3 seconds Discord waits for a response.
const commandTimeout = 30 * time.Second

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	inv, err := b.toInvocation(s, i)
	if err != nil {
		log.Printf("[WARN] Ignoring interaction %q: %v", i.ApplicationCommandData().Name, err)
		b.respond(s, i, command.Reply{
			Title:       "Unknown command",
			Description: "This command is no longer available.",
			Color:       command.ColorError,
			Ephemeral:   true,
		})
		return
	}

	deferred := inv.Kind.Group() == command.GroupMusic
	if deferred {
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			log.Printf("[ERR] Failed to defer %s: %v", inv.Kind.FullName(), err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	rep, err := b.router.Dispatch(ctx, inv)
	if err != nil {
		log.Printf("[WARN] %s by %s in guild %s failed: %v", inv.Kind.FullName(), inv.Username, inv.GuildID, err)
	}

	if deferred {
		b.editResponse(s, i, rep)
		return
	}
	b.respond(s, i, rep)
}

// toInvocation flattens "/group sub opt:value" into an Invocation.
func (b *Bot) toInvocation(s *discordgo.Session, i *discordgo.InteractionCreate) (*command.Invocation, error) {
	data := i.ApplicationCommandData()
	name := data.Name
	var opts []*discordgo.ApplicationCommandInteractionDataOption
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		name += " " + data.Options[0].Name
		opts = data.Options[0].Options
	}

	kind, err := command.ParseKind(name)
	if err != nil {
		return nil, err
	}

	inv := &command.Invocation{
		Kind:      kind,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Options:   optionValues(opts),
	}
	if u := interactionUser(i); u != nil {
		inv.UserID = u.ID
		inv.Username = u.Username
	}
	if i.GuildID != "" && s.State != nil {
		if g, err := s.State.Guild(i.GuildID); err == nil {
			inv.GuildName = g.Name
		}
		if ch, err := s.State.Channel(i.ChannelID); err == nil {
			inv.ChannelName = ch.Name
		}
	}
	return inv, nil
}

func optionValues(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]any {
	values := make(map[string]any, len(opts))
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionString:
			values[o.Name] = o.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			values[o.Name] = o.IntValue()
		case discordgo.ApplicationCommandOptionBoolean:
			values[o.Name] = o.BoolValue()
		case discordgo.ApplicationCommandOptionUser:
			// without a session UserValue only fills in the ID
			values[o.Name] = o.UserValue(nil).ID
		}
	}
	return values
}

// interactionUser is the member in guilds and the user in DMs.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func renderReply(rep command.Reply) *discordgo.MessageEmbed {
	e := embed.NewEmbed().
		SetColor(rep.Color).
		SetTitle(rep.Title).
		SetDescription(rep.Description)
	for _, f := range rep.Fields {
		e.AddField(f.Name, f.Value)
		e.Fields[len(e.Fields)-1].Inline = f.Inline
	}
	return e.MessageEmbed
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, rep command.Reply) {
	data := &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{renderReply(rep)},
	}
	if rep.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		log.Printf("[ERR] Failed to respond to interaction: %v", err)
	}
}

// editResponse fills in a deferred response. A deferred response is public,
// so ephemeral replies go out as a follow-up instead.
func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, rep command.Reply) {
	embeds := []*discordgo.MessageEmbed{renderReply(rep)}
	if rep.Ephemeral {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Embeds: embeds,
			Flags:  discordgo.MessageFlagsEphemeral,
		}); err != nil {
			log.Printf("[ERR] Failed to send follow-up: %v", err)
		}
		if err := s.InteractionResponseDelete(i.Interaction); err != nil {
			log.Printf("[WARN] Failed to delete deferred response: %v", err)
		}
		return
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &embeds,
	}); err != nil {
		log.Printf("[ERR] Failed to edit deferred response: %v", err)
	}
}
