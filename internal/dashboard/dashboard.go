// Package dashboard serves a small read-mostly HTTP API over the bot's
// moderation, leveling and player state.
package dashboard

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keshon/server-otaku/internal/leveling"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/track"
	"github.com/keshon/server-otaku/internal/storage"
	"github.com/samber/lo"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

type Warnings interface {
	SummarizeWarnings(ctx context.Context, guildID string) ([]storage.WarningSummary, error)
	ResetWarnings(ctx context.Context, guildID, userID string) (int64, error)
}

type Leaderboard interface {
	Leaderboard(ctx context.Context, guildID string, limit int) ([]leveling.Entry, error)
}

type Players interface {
	Get(guildID string) (*player.Session, bool)
}

type Server struct {
	warnings    Warnings
	leaderboard Leaderboard
	players     Players
	engine      *gin.Engine
}

func New(w Warnings, l Leaderboard, p Players) *Server {
	s := &Server{warnings: w, leaderboard: l, players: p}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/guilds/:guild")
	api.GET("/warnings", s.listWarnings)
	api.DELETE("/warnings/:user", s.resetWarnings)
	api.GET("/leaderboard", s.getLeaderboard)
	api.GET("/player", s.getPlayer)

	s.engine = r
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("[INFO] Shutting down dashboard...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] Dashboard shutdown: %v", err)
		}
	}()

	log.Printf("[INFO] Dashboard listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) listWarnings(c *gin.Context) {
	list, err := s.warnings.SummarizeWarnings(c.Request.Context(), c.Param("guild"))
	if err != nil {
		internalError(c, err)
		return
	}
	if list == nil {
		list = []storage.WarningSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"warnings": list})
}

func (s *Server) resetWarnings(c *gin.Context) {
	guildID, userID := c.Param("guild"), c.Param("user")
	n, err := s.warnings.ResetWarnings(c.Request.Context(), guildID, userID)
	if err != nil {
		internalError(c, err)
		return
	}
	log.Printf("[INFO] Dashboard reset %d warning(s) of %s in guild %s", n, userID, guildID)
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (s *Server) getLeaderboard(c *gin.Context) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	entries, err := s.leaderboard.Leaderboard(c.Request.Context(), c.Param("guild"), limit)
	if err != nil {
		internalError(c, err)
		return
	}
	if entries == nil {
		entries = []leveling.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type trackView struct {
	Title       string  `json:"title"`
	Locator     string  `json:"locator"`
	Duration    float64 `json:"duration_seconds,omitempty"`
	RequestedBy string  `json:"requested_by,omitempty"`
}

type playerView struct {
	State   string      `json:"state"`
	Current *trackView  `json:"current"`
	Queue   []trackView `json:"queue"`
	Loop    bool        `json:"loop"`
	Volume  int         `json:"volume"`
}

func (s *Server) getPlayer(c *gin.Context) {
	sess, ok := s.players.Get(c.Param("guild"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no player in this guild"})
		return
	}

	v := sess.View()
	out := playerView{
		State:  v.State.String(),
		Queue:  lo.Map(v.Queue, func(t track.Track, _ int) trackView { return toTrackView(t) }),
		Loop:   v.Loop,
		Volume: v.Volume,
	}
	if v.Current != nil {
		cur := toTrackView(*v.Current)
		out.Current = &cur
	}
	c.JSON(http.StatusOK, out)
}

func toTrackView(t track.Track) trackView {
	return trackView{
		Title:       t.Display(),
		Locator:     t.Locator,
		Duration:    t.Duration.Seconds(),
		RequestedBy: t.RequestedBy,
	}
}

func internalError(c *gin.Context, err error) {
	log.Printf("[ERR] Dashboard %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// requestLogger logs in the same bracketed format as the rest of the bot.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[DEBUG] Dashboard %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
