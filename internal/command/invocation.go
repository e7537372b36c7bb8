package command

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

const (
	OptInput      = "input"
	OptPosition   = "position"
	OptEnabled    = "enabled"
	OptLevel      = "level"
	OptUser       = "user"
	OptLimit      = "limit"
	OptAmount     = "amount"
	OptReason     = "reason"
	OptMinutes    = "minutes"
	OptDeleteDays = "delete-days"
)

type OptionType int

const (
	OptionString OptionType = iota + 1
	OptionInteger
	OptionBoolean
	OptionUser
)

// Option describes one argument of a command. Min and Max bound integer
// options; both zero means unbounded.
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Min, Max    int
}

// Invocation is one command call, independent of where it came from.
// User options hold the user ID.
type Invocation struct {
	Kind        Kind
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
	UserID      string
	Username    string
	Options     map[string]any
}

func (inv *Invocation) String(name string) string {
	switch v := inv.Options[name].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// Int returns an integer option and whether it was given.
func (inv *Invocation) Int(name string) (int64, bool) {
	switch v := inv.Options[name].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func (inv *Invocation) IntOr(name string, def int64) int64 {
	if v, ok := inv.Int(name); ok {
		return v
	}
	return def
}

func (inv *Invocation) Bool(name string) (bool, bool) {
	v, ok := inv.Options[name].(bool)
	return v, ok
}

// User returns the ID of a user option.
func (inv *Invocation) User(name string) string {
	return inv.String(name)
}

// Param renders the options for the command history, e.g. "input=lofi".
func (inv *Invocation) Param() string {
	keys := slices.Sorted(maps.Keys(inv.Options))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, inv.Options[k]))
	}
	return strings.Join(parts, " ")
}

const (
	ColorDefault = 0xb01e66
	ColorError   = 0xe03c3c
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Reply is what a command answers with. Adapters render it as an embed.
type Reply struct {
	Title       string
	Description string
	Fields      []Field
	Color       int
	Ephemeral   bool
}

func reply(title, desc string) Reply {
	return Reply{Title: title, Description: desc, Color: ColorDefault}
}
