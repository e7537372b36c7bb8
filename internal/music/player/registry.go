package player

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

const shardCount = 32

// Registry keeps one session per guild. Guilds are spread over shards so
// that creating or removing a session only locks its own shard.
type Registry struct {
	shards [shardCount]*registryShard
}

type registryShard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{sessions: make(map[string]*Session)}
	}
	return r
}

func (r *Registry) shard(guildID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(guildID))
	return r.shards[h.Sum32()%shardCount]
}

// GetOrCreate returns the guild's session, creating it with create when
// absent or already closed. The second result is true when a new session
// was made.
func (r *Registry) GetOrCreate(guildID string, create func() *Session) (*Session, bool) {
	sh := r.shard(guildID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s, ok := sh.sessions[guildID]; ok && !s.Closed() {
		return s, false
	}

	s := create()
	sh.sessions[guildID] = s
	log.Printf("[Player] created session for guild %s", guildID)
	return s, true
}

func (r *Registry) Get(guildID string) (*Session, bool) {
	sh := r.shard(guildID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[guildID]
	return s, ok
}

// Remove closes and forgets the guild's session. It reports whether one existed.
func (r *Registry) Remove(guildID string) bool {
	sh := r.shard(guildID)
	sh.mu.Lock()
	s, ok := sh.sessions[guildID]
	if ok {
		delete(sh.sessions, guildID)
	}
	sh.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.Close(); err != nil {
		log.Printf("[WARN] Closing player session for guild %s: %v", guildID, err)
	}
	return true
}

// RemoveSession closes s and forgets it only while it still owns the guild.
// A newer session of the same guild is left alone.
func (r *Registry) RemoveSession(guildID string, s *Session) bool {
	if !r.forget(guildID, s) {
		return false
	}
	if err := s.Close(); err != nil {
		log.Printf("[WARN] Closing player session for guild %s: %v", guildID, err)
	}
	return true
}

func (r *Registry) forget(guildID string, s *Session) bool {
	sh := r.shard(guildID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.sessions[guildID]; ok && cur == s {
		delete(sh.sessions, guildID)
		return true
	}
	return false
}

// Each calls fn for a snapshot of all sessions.
func (r *Registry) Each(fn func(*Session)) {
	for _, sh := range r.shards {
		sh.mu.Lock()
		list := make([]*Session, 0, len(sh.sessions))
		for _, s := range sh.sessions {
			list = append(list, s)
		}
		sh.mu.Unlock()

		for _, s := range list {
			fn(s)
		}
	}
}

func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

// CloseAll closes every session, used on shutdown.
func (r *Registry) CloseAll() {
	var ids []string
	r.Each(func(s *Session) { ids = append(ids, s.GuildID()) })
	for _, id := range ids {
		r.Remove(id)
	}
}

// ReapIdle closes sessions that stayed idle longer than timeout. It checks
// every interval until ctx is done.
func (r *Registry) ReapIdle(ctx context.Context, timeout, interval time.Duration) {
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapOnce(time.Now(), timeout)
		}
	}
}

// reapOnce closes idle sessions. The idle check runs on each session's own
// loop, so a session that started playing since the snapshot survives.
func (r *Registry) reapOnce(now time.Time, timeout time.Duration) int {
	var candidates []*Session
	r.Each(func(s *Session) {
		if s.View().State == StateIdle {
			candidates = append(candidates, s)
		}
	})

	reaped := 0
	for _, s := range candidates {
		if !s.CloseIfIdle(now, timeout) {
			continue
		}
		r.forget(s.GuildID(), s)
		log.Printf("[INFO] Closed idle player session for guild %s", s.GuildID())
		reaped++
	}
	return reaped
}
