package discord

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
)

const eventTimeout = 10 * time.Second

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	muted, err := b.moderation.CheckMessage(ctx, m.GuildID, m.Author.ID, m.Author.Username)
	if err != nil {
		log.Printf("[ERR] [Moderation] Spam check for %s failed: %v", m.Author.ID, err)
	}
	if muted {
		if _, err := s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("⚠️ <@%s> has been muted for spamming.", m.Author.ID)); err != nil {
			log.Printf("[WARN] Failed to send spam notice: %v", err)
		}
		return
	}

	p, err := b.leveling.Award(ctx, m.GuildID, m.Author.ID)
	if err != nil {
		log.Printf("[ERR] [Leveling] Awarding XP to %s failed: %v", m.Author.ID, err)
		return
	}
	if p.LeveledUp {
		if _, err := s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("🎉 <@%s> reached level %d!", m.Author.ID, p.Level)); err != nil {
			log.Printf("[WARN] Failed to send level-up notice: %v", err)
		}
	}
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	b.moderation.MemberJoined(ctx, m.GuildID, m.User.ID, m.User.Username)
}

func (b *Bot) onGuildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil || m.User.Bot {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	b.moderation.MemberLeft(ctx, m.GuildID, m.User.Username)
}
