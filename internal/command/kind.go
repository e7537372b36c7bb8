package command

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Kind is the closed set of commands the bot understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindPlay
	KindPause
	KindResume
	KindSkip
	KindStop
	KindQueue
	KindNowPlaying
	KindRemove
	KindShuffle
	KindLoop
	KindVolume
	KindClear
	KindRank
	KindLeaderboard
	KindGiveXP
	KindWarn
	KindWarnings
	KindResetWarnings
	KindMute
	KindUnmute
	KindKick
	KindBan
	KindHistory
	kindCount
)

type Group string

const (
	GroupMusic   Group = "music"
	GroupLevel   Group = "level"
	GroupMod     Group = "mod"
	GroupHistory Group = "history"
)

// Groups lists the groups in display order.
func Groups() []Group {
	return []Group{GroupMusic, GroupLevel, GroupMod, GroupHistory}
}

func (g Group) Description() string {
	switch g {
	case GroupMusic:
		return "Play music in your voice channel"
	case GroupLevel:
		return "Levels and experience"
	case GroupMod:
		return "Moderation tools"
	case GroupHistory:
		return "Recently used commands"
	default:
		return string(g)
	}
}

type kindInfo struct {
	name        string
	group       Group
	description string
	perms       int64
	options     []Option
}

const moderatorPerms = discordgo.PermissionModerateMembers | discordgo.PermissionManageRoles

var kinds = [kindCount]kindInfo{
	KindPlay: {name: "play", group: GroupMusic, description: "Play a link or search YouTube",
		options: []Option{{Name: OptInput, Description: "YouTube link, stream URL or song name", Type: OptionString, Required: true}}},
	KindPause:      {name: "pause", group: GroupMusic, description: "Pause playback"},
	KindResume:     {name: "resume", group: GroupMusic, description: "Resume playback"},
	KindSkip:       {name: "skip", group: GroupMusic, description: "Skip the current track"},
	KindStop:       {name: "stop", group: GroupMusic, description: "Stop playback and clear the queue"},
	KindQueue:      {name: "queue", group: GroupMusic, description: "Show the queue"},
	KindNowPlaying: {name: "now-playing", group: GroupMusic, description: "Show the current track"},
	KindRemove: {name: "remove", group: GroupMusic, description: "Remove a queued track",
		options: []Option{{Name: OptPosition, Description: "Position in the queue", Type: OptionInteger, Required: true, Min: 1, Max: 1000}}},
	KindShuffle: {name: "shuffle", group: GroupMusic, description: "Shuffle the queue"},
	KindLoop: {name: "loop", group: GroupMusic, description: "Repeat the current track",
		options: []Option{{Name: OptEnabled, Description: "Turn repeat on or off (toggles when omitted)", Type: OptionBoolean}}},
	KindVolume: {name: "volume", group: GroupMusic, description: "Set the volume",
		options: []Option{{Name: OptLevel, Description: "Volume from 0 to 100", Type: OptionInteger, Required: true, Min: 0, Max: 100}}},
	KindClear: {name: "clear", group: GroupMusic, description: "Clear upcoming tracks"},

	KindRank: {name: "rank", group: GroupLevel, description: "Show a member's level",
		options: []Option{{Name: OptUser, Description: "Member (defaults to you)", Type: OptionUser}}},
	KindLeaderboard: {name: "leaderboard", group: GroupLevel, description: "Top members by experience",
		options: []Option{{Name: OptLimit, Description: "How many members to show", Type: OptionInteger, Min: 1, Max: 25}}},
	KindGiveXP: {name: "give-xp", group: GroupLevel, description: "Give or take experience",
		perms: discordgo.PermissionManageServer,
		options: []Option{
			{Name: OptUser, Description: "Member", Type: OptionUser, Required: true},
			{Name: OptAmount, Description: "Experience to add (negative removes)", Type: OptionInteger, Required: true},
		}},

	KindWarn: {name: "warn", group: GroupMod, description: "Warn a member", perms: moderatorPerms,
		options: []Option{
			{Name: OptUser, Description: "Member to warn", Type: OptionUser, Required: true},
			{Name: OptReason, Description: "Why", Type: OptionString, Required: true},
		}},
	KindWarnings: {name: "warnings", group: GroupMod, description: "List a member's warnings", perms: moderatorPerms,
		options: []Option{{Name: OptUser, Description: "Member", Type: OptionUser, Required: true}}},
	KindResetWarnings: {name: "reset-warnings", group: GroupMod, description: "Clear a member's warnings", perms: moderatorPerms,
		options: []Option{{Name: OptUser, Description: "Member", Type: OptionUser, Required: true}}},
	KindMute: {name: "mute", group: GroupMod, description: "Mute a member", perms: moderatorPerms,
		options: []Option{
			{Name: OptUser, Description: "Member to mute", Type: OptionUser, Required: true},
			{Name: OptMinutes, Description: "Duration in minutes (until unmuted when omitted)", Type: OptionInteger, Min: 1, Max: 40320},
			{Name: OptReason, Description: "Why", Type: OptionString},
		}},
	KindUnmute: {name: "unmute", group: GroupMod, description: "Unmute a member", perms: moderatorPerms,
		options: []Option{{Name: OptUser, Description: "Member to unmute", Type: OptionUser, Required: true}}},
	KindKick: {name: "kick", group: GroupMod, description: "Kick a member", perms: discordgo.PermissionKickMembers,
		options: []Option{
			{Name: OptUser, Description: "Member to kick", Type: OptionUser, Required: true},
			{Name: OptReason, Description: "Why", Type: OptionString},
		}},
	KindBan: {name: "ban", group: GroupMod, description: "Ban a member", perms: discordgo.PermissionBanMembers,
		options: []Option{
			{Name: OptUser, Description: "Member to ban", Type: OptionUser, Required: true},
			{Name: OptReason, Description: "Why", Type: OptionString},
			{Name: OptDeleteDays, Description: "Delete this many days of their messages", Type: OptionInteger, Min: 0, Max: 7},
		}},

	KindHistory: {name: "recent", group: GroupHistory, description: "Show recently used commands",
		perms:   discordgo.PermissionManageServer,
		options: []Option{{Name: OptLimit, Description: "How many entries to show", Type: OptionInteger, Min: 1, Max: 50}}},
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindUnknown + 1; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) valid() bool { return k > KindUnknown && k < kindCount }

// String is the subcommand name, e.g. "now-playing".
func (k Kind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return kinds[k].name
}

func (k Kind) Group() Group {
	if !k.valid() {
		return ""
	}
	return kinds[k].group
}

// FullName is how users type it: "/music now-playing".
func (k Kind) FullName() string {
	return fmt.Sprintf("/%s %s", k.Group(), k)
}

func (k Kind) Description() string {
	if !k.valid() {
		return ""
	}
	return kinds[k].description
}

// Permissions is the set of permissions of which the caller needs at least
// one. Zero means anyone may run the command.
func (k Kind) Permissions() int64 {
	if !k.valid() {
		return 0
	}
	return kinds[k].perms
}

func (k Kind) Options() []Option {
	if !k.valid() {
		return nil
	}
	return kinds[k].options
}

// InGroup lists the kinds of one group in declaration order.
func InGroup(g Group) []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if k.Group() == g {
			out = append(out, k)
		}
	}
	return out
}

// ParseKind accepts "play", "music play" or "/music play".
func ParseKind(s string) (Kind, error) {
	s = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "/")
	group, name, grouped := strings.Cut(s, " ")
	if !grouped {
		name, group = group, ""
	}
	name = strings.TrimSpace(name)

	for _, k := range Kinds() {
		if k.String() == name && (group == "" || Group(group) == k.Group()) {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}
