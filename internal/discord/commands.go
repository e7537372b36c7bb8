package discord

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/server-otaku/internal/command"
	"golang.org/x/time/rate"
)

// Discord allows 50 requests per second; stay under it.
var registerLimit = rate.Every(time.Second / 40)

// slashDefinitions builds one top-level command per group with a
// subcommand per kind, e.g. /music play. Permissions are checked per
// subcommand when the command runs.
func slashDefinitions() []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, g := range command.Groups() {
		def := &discordgo.ApplicationCommand{
			Name:        string(g),
			Description: g.Description(),
			Type:        discordgo.ChatApplicationCommand,
		}
		for _, k := range command.InGroup(g) {
			def.Options = append(def.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        k.String(),
				Description: k.Description(),
				Options:     slashOptions(k.Options()),
			})
		}
		defs = append(defs, def)
	}
	return defs
}

func slashOptions(opts []command.Option) []*discordgo.ApplicationCommandOption {
	out := make([]*discordgo.ApplicationCommandOption, 0, len(opts))
	for _, o := range opts {
		opt := &discordgo.ApplicationCommandOption{
			Type:        optionType(o.Type),
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		}
		if o.Type == command.OptionInteger && (o.Min != 0 || o.Max != 0) {
			lo, hi := float64(o.Min), float64(o.Max)
			opt.MinValue = &lo
			opt.MaxValue = hi
		}
		out = append(out, opt)
	}
	return out
}

func optionType(t command.OptionType) discordgo.ApplicationCommandOptionType {
	switch t {
	case command.OptionInteger:
		return discordgo.ApplicationCommandOptionInteger
	case command.OptionBoolean:
		return discordgo.ApplicationCommandOptionBoolean
	case command.OptionUser:
		return discordgo.ApplicationCommandOptionUser
	default:
		return discordgo.ApplicationCommandOptionString
	}
}

// registerCommands makes the guild's slash commands match slashDefinitions.
// Unchanged commands are skipped using the hashes cached on disk.
func (b *Bot) registerCommands(ctx context.Context, guildID string) error {
	appID := b.appID()
	if appID == "" {
		return fmt.Errorf("application ID is not known yet")
	}

	defs := slashDefinitions()
	wanted := make(map[string]bool, len(defs))
	for _, d := range defs {
		wanted[d.Name] = true
	}

	remote, err := b.dg.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to fetch registered commands: %w", err)
	}
	registered := make(map[string]bool, len(remote))
	for _, rc := range remote {
		if wanted[rc.Name] {
			registered[rc.Name] = true
			continue
		}
		if err := b.dg.ApplicationCommandDelete(appID, guildID, rc.ID, discordgo.WithContext(ctx)); err != nil {
			log.Printf("[ERR] Failed to delete obsolete command /%s in guild %s: %v", rc.Name, guildID, err)
			continue
		}
		log.Printf("[INFO] Deleted obsolete command /%s in guild %s", rc.Name, guildID)
	}

	cache := loadHashes(b.hashPath(guildID))
	limiter := rate.NewLimiter(registerLimit, 1)
	updated := 0
	for _, def := range defs {
		hash := hashCommand(def)
		if registered[def.Name] && cache[def.Name] == hash {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		// create overwrites an existing command with the same name
		if _, err := b.dg.ApplicationCommandCreate(appID, guildID, def, discordgo.WithContext(ctx)); err != nil {
			log.Printf("[ERR] Failed to register /%s in guild %s: %v", def.Name, guildID, err)
			continue
		}
		cache[def.Name] = hash
		updated++
	}

	if updated > 0 {
		if err := saveHashes(b.hashPath(guildID), cache); err != nil {
			log.Printf("[WARN] Failed to save command hashes for guild %s: %v", guildID, err)
		}
	}
	log.Printf("[INFO] Slash commands for guild %s: %d updated, %d unchanged", guildID, updated, len(defs)-updated)
	return nil
}

func (b *Bot) appID() string {
	if b.dg.State != nil && b.dg.State.User != nil {
		return b.dg.State.User.ID
	}
	return ""
}

func (b *Bot) hashPath(guildID string) string {
	return filepath.Join(b.hashDir, guildID+".json")
}

type normalizedCommand struct {
	Name        string                           `json:"name"`
	Description string                           `json:"description"`
	Type        discordgo.ApplicationCommandType `json:"type"`
	Permissions int64                            `json:"permissions"`
	Options     []normalizedOption               `json:"options"`
}

type normalizedOption struct {
	Type        discordgo.ApplicationCommandOptionType `json:"type"`
	Name        string                                 `json:"name"`
	Description string                                 `json:"description"`
	Required    bool                                   `json:"required"`
	Min         float64                                `json:"min"`
	Max         float64                                `json:"max"`
	Options     []normalizedOption                     `json:"options"`
}

// hashCommand fingerprints the parts of a command Discord cares about.
// Option order does not change the hash.
func hashCommand(cmd *discordgo.ApplicationCommand) string {
	n := normalizedCommand{
		Name:        cmd.Name,
		Description: cmd.Description,
		Type:        cmd.Type,
		Options:     normalizeOptions(cmd.Options),
	}
	if cmd.DefaultMemberPermissions != nil {
		n.Permissions = *cmd.DefaultMemberPermissions
	}
	data, _ := json.Marshal(n)
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []normalizedOption {
	out := make([]normalizedOption, 0, len(opts))
	for _, o := range opts {
		n := normalizedOption{
			Type:        o.Type,
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
			Max:         o.MaxValue,
			Options:     normalizeOptions(o.Options),
		}
		if o.MinValue != nil {
			n.Min = *o.MinValue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func loadHashes(path string) map[string]string {
	cache := map[string]string{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cache
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		log.Printf("[WARN] Ignoring corrupt command cache %s: %v", path, err)
		return map[string]string{}
	}
	return cache
}

func saveHashes(path string, cache map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
