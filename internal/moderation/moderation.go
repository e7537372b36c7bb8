// Package moderation implements warnings, mutes, kicks and bans on top of a
// platform-neutral Guild, plus spam detection and join/leave notices.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/keshon/server-otaku/internal/storage"
	"github.com/keshon/server-otaku/pkg/jobmgr"
	"github.com/keshon/server-otaku/pkg/retrylimit"
)

var (
	ErrRoleNotFound    = errors.New("role not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyReason     = errors.New("a reason is required")
)

// Guild is the set of platform actions moderation needs.
type Guild interface {
	FindRole(guildID, name string) (string, error)
	RoleExists(guildID, roleID string) bool
	// CreateMutedRole creates a role that cannot speak or send messages.
	CreateMutedRole(ctx context.Context, guildID, name string) (string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string, deleteDays int) error
}

// Notifier posts a message to a guild channel looked up by name.
type Notifier interface {
	Notify(ctx context.Context, guildID, channelName, message string) error
}

type Store interface {
	AddWarning(ctx context.Context, w storage.Warning) (int, error)
	CountWarnings(ctx context.Context, guildID, userID string) (int, error)
	ListWarnings(ctx context.Context, guildID, userID string) ([]storage.Warning, error)
	ResetWarnings(ctx context.Context, guildID, userID string) (int64, error)
	SaveMute(ctx context.Context, m storage.MuteRecord) error
	DeleteMute(ctx context.Context, guildID, userID string) error
	PendingMutes(ctx context.Context) ([]storage.MuteRecord, error)
	GetGuildSetting(ctx context.Context, guildID, key string) (string, error)
	SetGuildSetting(ctx context.Context, guildID, key, value string) error
}

type Options struct {
	WarningLimit        int
	WarningMuteDuration time.Duration
	SpamThreshold       int
	SpamWindow          time.Duration
	MutedRoleName       string
	LogChannelName      string
	WelcomeChannelName  string
	DefaultRoleName     string
}

type Service struct {
	store  Store
	guild  Guild
	notify Notifier
	jobs   *jobmgr.Manager
	opts   Options
	spam   *retrylimit.Keyed
	now    func() time.Time
}

func New(store Store, guild Guild, notify Notifier, jobs *jobmgr.Manager, opts Options) *Service {
	if opts.SpamThreshold < 1 {
		opts.SpamThreshold = 1
	}
	if opts.SpamWindow <= 0 {
		opts.SpamWindow = 10 * time.Second
	}
	return &Service{
		store:  store,
		guild:  guild,
		notify: notify,
		jobs:   jobs,
		opts:   opts,
		// a full bucket holds SpamThreshold messages and refills over one window
		spam: retrylimit.NewKeyed(opts.SpamWindow/time.Duration(opts.SpamThreshold), opts.SpamThreshold),
		now:  time.Now,
	}
}

// WarnResult is the outcome of a warning.
type WarnResult struct {
	Count int
	Limit int
	Muted bool
}

// Warn records a warning. Reaching the warning limit mutes the member for
// the configured duration.
func (s *Service) Warn(ctx context.Context, guildID, targetID, moderatorID, reason string) (WarnResult, error) {
	if reason == "" {
		return WarnResult{}, ErrEmptyReason
	}
	count, err := s.store.AddWarning(ctx, storage.Warning{
		GuildID:     guildID,
		UserID:      targetID,
		ModeratorID: moderatorID,
		Reason:      reason,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return WarnResult{}, fmt.Errorf("save warning: %w", err)
	}

	res := WarnResult{Count: count, Limit: s.opts.WarningLimit}
	s.log(ctx, guildID, fmt.Sprintf("⚠️ <@%s> was warned by <@%s> (%d/%d): %s", targetID, moderatorID, count, s.opts.WarningLimit, reason))

	if s.opts.WarningLimit > 0 && count >= s.opts.WarningLimit {
		if err := s.Mute(ctx, guildID, targetID, s.opts.WarningMuteDuration, "too many warnings"); err != nil {
			return res, fmt.Errorf("auto-mute: %w", err)
		}
		res.Muted = true
	}
	return res, nil
}

func (s *Service) Warnings(ctx context.Context, guildID, targetID string) ([]storage.Warning, error) {
	return s.store.ListWarnings(ctx, guildID, targetID)
}

func (s *Service) WarningCount(ctx context.Context, guildID, targetID string) (int, error) {
	return s.store.CountWarnings(ctx, guildID, targetID)
}

func (s *Service) ResetWarnings(ctx context.Context, guildID, targetID string) (int64, error) {
	n, err := s.store.ResetWarnings(ctx, guildID, targetID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log(ctx, guildID, fmt.Sprintf("🧹 Warnings of <@%s> were reset (%d removed).", targetID, n))
	}
	return n, nil
}

func unmuteJobName(guildID, userID string) string {
	return "unmute:" + guildID + ":" + userID
}

// Mute assigns the muted role. With a positive duration the mute is saved
// and lifted automatically; otherwise it lasts until Unmute.
func (s *Service) Mute(ctx context.Context, guildID, targetID string, d time.Duration, reason string) error {
	if d < 0 {
		return fmt.Errorf("%w: negative mute duration", ErrInvalidArgument)
	}
	roleID, err := s.mutedRole(ctx, guildID)
	if err != nil {
		return err
	}
	if err := s.guild.AddRole(ctx, guildID, targetID, roleID); err != nil {
		return fmt.Errorf("assign muted role: %w", err)
	}

	name := unmuteJobName(guildID, targetID)
	if d == 0 {
		_ = s.jobs.Stop(name)
		if err := s.store.DeleteMute(ctx, guildID, targetID); err != nil {
			log.Printf("[WARN] [Moderation] Clearing saved mute for %s/%s: %v", guildID, targetID, err)
		}
		s.log(ctx, guildID, fmt.Sprintf("🔇 <@%s> was muted: %s", targetID, reason))
		return nil
	}

	until := s.now().Add(d)
	if err := s.store.SaveMute(ctx, storage.MuteRecord{GuildID: guildID, UserID: targetID, Until: until, Reason: reason}); err != nil {
		return fmt.Errorf("save mute: %w", err)
	}
	s.scheduleUnmute(guildID, targetID, until)
	s.log(ctx, guildID, fmt.Sprintf("🔇 <@%s> was muted for %s: %s", targetID, humanizeDuration(d), reason))
	return nil
}

// Unmute removes the muted role and cancels a pending automatic unmute.
func (s *Service) Unmute(ctx context.Context, guildID, targetID string) error {
	_ = s.jobs.Stop(unmuteJobName(guildID, targetID))
	return s.lift(ctx, guildID, targetID)
}

// Muted reports whether a timed mute is pending for the member.
func (s *Service) Muted(guildID, targetID string) bool {
	return s.jobs.Pending(unmuteJobName(guildID, targetID))
}

func (s *Service) scheduleUnmute(guildID, userID string, at time.Time) {
	s.jobs.Schedule(unmuteJobName(guildID, userID), at, func(ctx context.Context) error {
		return s.lift(ctx, guildID, userID)
	})
}

func (s *Service) lift(ctx context.Context, guildID, targetID string) error {
	roleID, err := s.mutedRole(ctx, guildID)
	if err != nil {
		return err
	}
	if err := s.guild.RemoveRole(ctx, guildID, targetID, roleID); err != nil {
		return fmt.Errorf("remove muted role: %w", err)
	}
	if err := s.store.DeleteMute(ctx, guildID, targetID); err != nil {
		return fmt.Errorf("delete mute: %w", err)
	}
	s.log(ctx, guildID, fmt.Sprintf("🔊 <@%s> was unmuted.", targetID))
	return nil
}

// ResumeMutes reschedules saved timed mutes after a restart. Mutes that
// expired while the bot was down are lifted right away.
func (s *Service) ResumeMutes(ctx context.Context) (int, error) {
	pending, err := s.store.PendingMutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("load mutes: %w", err)
	}
	now := s.now()
	for _, m := range pending {
		if !m.Until.After(now) {
			if err := s.lift(ctx, m.GuildID, m.UserID); err != nil {
				log.Printf("[WARN] [Moderation] Lifting expired mute of %s in %s: %v", m.UserID, m.GuildID, err)
			}
			continue
		}
		s.scheduleUnmute(m.GuildID, m.UserID, m.Until)
	}
	if len(pending) > 0 {
		log.Printf("[INFO] [Moderation] Resumed %d saved mute(s)", len(pending))
	}
	return len(pending), nil
}

func (s *Service) Kick(ctx context.Context, guildID, targetID, moderatorID, reason string) error {
	if err := s.guild.Kick(ctx, guildID, targetID, reason); err != nil {
		return fmt.Errorf("kick: %w", err)
	}
	s.log(ctx, guildID, fmt.Sprintf("👢 <@%s> was kicked by <@%s>: %s", targetID, moderatorID, orNone(reason)))
	return nil
}

// Ban bans the member, deleting up to deleteDays (0..7) of their messages.
func (s *Service) Ban(ctx context.Context, guildID, targetID, moderatorID, reason string, deleteDays int) error {
	if deleteDays < 0 || deleteDays > 7 {
		return fmt.Errorf("%w: delete days must be within 0..7, got %d", ErrInvalidArgument, deleteDays)
	}
	if err := s.guild.Ban(ctx, guildID, targetID, reason, deleteDays); err != nil {
		return fmt.Errorf("ban: %w", err)
	}
	s.log(ctx, guildID, fmt.Sprintf("🔨 <@%s> was banned by <@%s>: %s", targetID, moderatorID, orNone(reason)))
	return nil
}

// mutedRole returns the guild's muted role, remembering it in guild settings
// and creating it when the guild has none.
func (s *Service) mutedRole(ctx context.Context, guildID string) (string, error) {
	id, err := s.store.GetGuildSetting(ctx, guildID, storage.SettingMutedRole)
	switch {
	case err == nil && s.guild.RoleExists(guildID, id):
		return id, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("read muted role: %w", err)
	}

	id, err = s.guild.FindRole(guildID, s.opts.MutedRoleName)
	if errors.Is(err, ErrRoleNotFound) {
		id, err = s.guild.CreateMutedRole(ctx, guildID, s.opts.MutedRoleName)
		if err == nil {
			log.Printf("[INFO] [Moderation] Created role %q in guild %s", s.opts.MutedRoleName, guildID)
		}
	}
	if err != nil {
		return "", fmt.Errorf("muted role: %w", err)
	}

	if err := s.store.SetGuildSetting(ctx, guildID, storage.SettingMutedRole, id); err != nil {
		log.Printf("[WARN] [Moderation] Saving muted role for guild %s: %v", guildID, err)
	}
	return id, nil
}

func (s *Service) log(ctx context.Context, guildID, msg string) {
	if s.notify == nil || s.opts.LogChannelName == "" {
		return
	}
	if err := s.notify.Notify(ctx, guildID, s.opts.LogChannelName, msg); err != nil {
		log.Printf("[WARN] [Moderation] Log message for guild %s not delivered: %v", guildID, err)
	}
}

func humanizeDuration(d time.Duration) string {
	origin := time.Unix(0, 0)
	return strings.TrimSpace(humanize.RelTime(origin, origin.Add(d), "", ""))
}

func orNone(reason string) string {
	if reason == "" {
		return "no reason given"
	}
	return reason
}
