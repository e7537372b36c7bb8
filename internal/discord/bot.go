package discord

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/server-otaku/internal/command"
	"github.com/keshon/server-otaku/internal/config"
	"github.com/keshon/server-otaku/internal/leveling"
	"github.com/keshon/server-otaku/internal/moderation"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/resolver"
	"github.com/keshon/server-otaku/internal/music/stream"
	"github.com/keshon/server-otaku/internal/storage"
	"github.com/keshon/server-otaku/pkg/jobmgr"
)

// Bot is a Discord bot
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	players  *player.Registry
	resolver *resolver.Resolver

	router     *command.Router
	leveling   *leveling.Service
	moderation *moderation.Service

	// guild ID -> text channel that gets the player's announcements
	announce   sync.Map
	voice      sync.Map // guild ID -> *voiceBinding

	hashDir string
}

// Deps are the services the bot shares with the rest of the process.
type Deps struct {
	Storage  *storage.Storage
	Players  *player.Registry
	Resolver *resolver.Resolver
	Jobs     *jobmgr.Manager
	Leveling *leveling.Service
}

func New(cfg *config.Config, d Deps) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	b := &Bot{
		dg:       dg,
		cfg:      cfg,
		players:  d.Players,
		resolver: d.Resolver,
		leveling: d.Leveling,
		hashDir:  filepath.Join(filepath.Dir(cfg.StoragePath), "commands"),
	}

	b.moderation = moderation.New(d.Storage, b, b, d.Jobs, moderation.Options{
		WarningLimit:        cfg.WarningLimit,
		WarningMuteDuration: cfg.WarningMuteDuration,
		SpamThreshold:       cfg.SpamThreshold,
		SpamWindow:          cfg.SpamWindow,
		MutedRoleName:       cfg.MutedRoleName,
		LogChannelName:      cfg.LogChannelName,
		WelcomeChannelName:  cfg.WelcomeChannelName,
		DefaultRoleName:     cfg.DefaultRoleName,
	})
	b.router = command.NewRouter(command.Deps{
		Players:     b,
		Leveling:    b.leveling,
		Moderation:  b.moderation,
		History:     d.Storage,
		Permissions: b,
	})
	return b, nil
}

// Run connects to the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.configureIntents()
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onGuildMemberAdd)
	b.dg.AddHandler(b.onGuildMemberRemove)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	if _, err := b.moderation.ResumeMutes(ctx); err != nil {
		log.Printf("[WARN] Failed to resume saved mutes: %v", err)
	}

	<-ctx.Done()
	log.Println("[INFO] ❎ Shutdown signal received. Cleaning up...")
	b.players.CloseAll()
	return nil
}

func (b *Bot) configureIntents() {
	b.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		if b.isGuildBlacklisted(g.ID) {
			b.leaveGuild(s, g.ID, g.Name)
		}
	}
	log.Printf("[INFO] ✅ Discord bot %v is running in %d guild(s).", r.User.Username, len(r.Guilds))
}

// onGuildCreate fires for every guild at startup and whenever the bot joins one.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.isGuildBlacklisted(g.ID) {
		b.leaveGuild(s, g.ID, g.Name)
		return
	}
	log.Printf("[INFO] Guild available: %s (%s)", g.ID, g.Name)

	if !b.cfg.InitSlashCommands {
		log.Println("[INFO] Registering slash commands skipped")
		return
	}
	go func() {
		if err := b.registerCommands(context.Background(), g.ID); err != nil {
			log.Printf("[ERR] Failed to register commands for guild %s: %v", g.ID, err)
		}
	}()
}

func (b *Bot) leaveGuild(s *discordgo.Session, guildID, name string) {
	log.Printf("[INFO] Leaving blacklisted guild: %s (%s)", guildID, name)
	if err := s.GuildLeave(guildID); err != nil {
		log.Printf("[ERR] Failed to leave guild %s: %v", guildID, err)
	}
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return slices.Contains(b.cfg.DiscordGuildBlacklist, guildID)
}

var (
	_ command.Players           = (*Bot)(nil)
	_ command.PermissionChecker = (*Bot)(nil)
	_ moderation.Guild          = (*Bot)(nil)
	_ moderation.Notifier       = (*Bot)(nil)
	_ stream.URLSource          = (*resolver.Resolver)(nil)
)
