// Package leveling awards XP for chat activity and turns totals into levels.
package leveling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/keshon/server-otaku/internal/storage"
	"github.com/keshon/server-otaku/pkg/retrylimit"
)

// xpPerLevelUnit scales the curve: level n needs xpPerLevelUnit*n*n XP.
const xpPerLevelUnit = 100

var ErrInvalidAmount = errors.New("xp amount must not be zero")

// Store is the persistence the service needs. *storage.Storage satisfies it.
type Store interface {
	AddXP(ctx context.Context, guildID, userID string, amount int64) (int64, error)
	GetXP(ctx context.Context, guildID, userID string) (int64, error)
	XPPosition(ctx context.Context, guildID, userID string) (int, error)
	TopXP(ctx context.Context, guildID string, limit int) ([]storage.XPRecord, error)
}

// Progress describes a member's standing after a read or an award.
type Progress struct {
	XP        int64
	Level     int
	LeveledUp bool
	// Awarded is false when the member was still on cooldown.
	Awarded bool
	// Position is the 1-based rank in the guild; only set by Rank.
	Position int
}

// NextLevelXP is the total XP at which the next level is reached.
func (p Progress) NextLevelXP() int64 {
	return XPForLevel(p.Level + 1)
}

type Entry struct {
	Position int    `json:"position"`
	UserID   string `json:"user_id"`
	XP       int64  `json:"xp"`
	Level    int    `json:"level"`
}

type Service struct {
	store      Store
	perMessage int64
	cooldowns  *retrylimit.Keyed
	now        func() time.Time
}

func New(store Store, perMessage int, cooldown time.Duration) *Service {
	if cooldown <= 0 {
		cooldown = time.Nanosecond
	}
	return &Service{
		store:      store,
		perMessage: int64(perMessage),
		cooldowns:  retrylimit.NewKeyed(cooldown, 1),
		now:        time.Now,
	}
}

// LevelForXP is floor(sqrt(xp/100)); negative totals are level 0.
func LevelForXP(xp int64) int {
	if xp <= 0 {
		return 0
	}
	n := int(math.Sqrt(float64(xp) / xpPerLevelUnit))
	// float rounding near perfect squares
	for XPForLevel(n+1) <= xp {
		n++
	}
	for n > 0 && XPForLevel(n) > xp {
		n--
	}
	return n
}

func XPForLevel(n int) int64 {
	return xpPerLevelUnit * int64(n) * int64(n)
}

// Award credits one message worth of XP unless the member was rewarded
// within the cooldown.
func (s *Service) Award(ctx context.Context, guildID, userID string) (Progress, error) {
	if s.perMessage == 0 || !s.cooldowns.Allow(guildID+":"+userID, s.now()) {
		xp, err := s.store.GetXP(ctx, guildID, userID)
		if err != nil {
			return Progress{}, fmt.Errorf("read xp: %w", err)
		}
		return Progress{XP: xp, Level: LevelForXP(xp)}, nil
	}
	p, err := s.add(ctx, guildID, userID, s.perMessage)
	p.Awarded = err == nil
	return p, err
}

// Grant adds (or with a negative amount removes) XP regardless of cooldown.
func (s *Service) Grant(ctx context.Context, guildID, userID string, amount int64) (Progress, error) {
	if amount == 0 {
		return Progress{}, ErrInvalidAmount
	}
	p, err := s.add(ctx, guildID, userID, amount)
	p.Awarded = err == nil
	return p, err
}

func (s *Service) add(ctx context.Context, guildID, userID string, amount int64) (Progress, error) {
	total, err := s.store.AddXP(ctx, guildID, userID, amount)
	if err != nil {
		return Progress{}, fmt.Errorf("add xp: %w", err)
	}
	before := total - amount
	if before < 0 {
		before = 0
	}
	level := LevelForXP(total)
	return Progress{XP: total, Level: level, LeveledUp: level > LevelForXP(before)}, nil
}

func (s *Service) Rank(ctx context.Context, guildID, userID string) (Progress, error) {
	xp, err := s.store.GetXP(ctx, guildID, userID)
	if err != nil {
		return Progress{}, fmt.Errorf("read xp: %w", err)
	}
	pos, err := s.store.XPPosition(ctx, guildID, userID)
	if err != nil {
		return Progress{}, fmt.Errorf("read position: %w", err)
	}
	return Progress{XP: xp, Level: LevelForXP(xp), Position: pos}, nil
}

func (s *Service) Leaderboard(ctx context.Context, guildID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	top, err := s.store.TopXP(ctx, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	out := make([]Entry, len(top))
	for i, r := range top {
		out[i] = Entry{Position: i + 1, UserID: r.UserID, XP: r.XP, Level: LevelForXP(r.XP)}
	}
	return out, nil
}
