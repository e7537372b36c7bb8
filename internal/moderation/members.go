package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// CheckMessage feeds one message into the spam detector. It returns true
// when the author crossed the threshold and was muted.
func (s *Service) CheckMessage(ctx context.Context, guildID, userID, username string) (bool, error) {
	key := guildID + ":" + userID
	if s.spam.Allow(key, s.now()) {
		return false, nil
	}
	if s.Muted(guildID, userID) {
		return false, nil
	}

	s.spam.Reset(key)
	if err := s.Mute(ctx, guildID, userID, s.opts.WarningMuteDuration, "spamming"); err != nil {
		return false, fmt.Errorf("mute spammer: %w", err)
	}
	s.log(ctx, guildID, fmt.Sprintf("🚨 %s was muted for spamming.", username))
	return true, nil
}

// MemberJoined gives the default role, greets the member and logs the join.
func (s *Service) MemberJoined(ctx context.Context, guildID, userID, username string) {
	if s.opts.DefaultRoleName != "" {
		roleID, err := s.guild.FindRole(guildID, s.opts.DefaultRoleName)
		switch {
		case errors.Is(err, ErrRoleNotFound):
			log.Printf("[DEBUG] [Moderation] Guild %s has no %q role", guildID, s.opts.DefaultRoleName)
		case err != nil:
			log.Printf("[WARN] [Moderation] Looking up default role in %s: %v", guildID, err)
		default:
			if err := s.guild.AddRole(ctx, guildID, userID, roleID); err != nil {
				log.Printf("[WARN] [Moderation] Assigning default role to %s: %v", userID, err)
			}
		}
	}

	if s.notify != nil && s.opts.WelcomeChannelName != "" {
		msg := fmt.Sprintf("🎉 Welcome to the server, <@%s>!", userID)
		if err := s.notify.Notify(ctx, guildID, s.opts.WelcomeChannelName, msg); err != nil {
			log.Printf("[WARN] [Moderation] Welcome message for %s not delivered: %v", userID, err)
		}
	}
	s.log(ctx, guildID, fmt.Sprintf("✅ %s joined the server.", username))
}

func (s *Service) MemberLeft(ctx context.Context, guildID, username string) {
	s.log(ctx, guildID, fmt.Sprintf("❌ %s left the server.", username))
}
