// cmd/discord/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/server-otaku/internal/config"
	"github.com/keshon/server-otaku/internal/dashboard"
	"github.com/keshon/server-otaku/internal/discord"
	"github.com/keshon/server-otaku/internal/leveling"
	"github.com/keshon/server-otaku/internal/logging"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/resolver"
	"github.com/keshon/server-otaku/internal/storage"
	v "github.com/keshon/server-otaku/internal/version"
	"github.com/keshon/server-otaku/pkg/jobmgr"
)

const reapInterval = time.Minute

func main() {
	cfg := config.New()

	logFile := logging.Setup(cfg.LogFile)
	defer logFile.Close()

	log.Printf("[INFO] Starting %v bot...", v.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	jobs := jobmgr.NewManager(func(msg string) { log.Println("[DEBUG] [Jobs]", msg) })
	defer jobs.StopAll()

	res, err := resolver.New(resolver.Options{Proxy: cfg.YouTubeProxy})
	if err != nil {
		log.Fatal(err)
	}

	players := player.NewRegistry()
	lv := leveling.New(store, cfg.XPPerMessage, cfg.XPCooldown)

	if err := jobs.StartAsync("history-cleaner", func(ctx context.Context) error {
		storage.RunHistoryCleaner(ctx, store, cfg.HistoryRetention)
		return nil
	}); err != nil {
		log.Fatal(err)
	}
	if err := jobs.StartAsync("player-reaper", func(ctx context.Context) error {
		players.ReapIdle(ctx, cfg.PlayerIdleTimeout, reapInterval)
		return nil
	}); err != nil {
		log.Fatal(err)
	}

	if cfg.DashboardAddr != "" {
		srv := dashboard.New(store, lv, players)
		go func() {
			if err := srv.Run(ctx, cfg.DashboardAddr); err != nil {
				log.Println("[ERR] Dashboard error:", err)
			}
		}()
	}

	bot, err := discord.New(cfg, discord.Deps{
		Storage:  store,
		Players:  players,
		Resolver: res,
		Jobs:     jobs,
		Leveling: lv,
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := bot.Run(ctx); err != nil {
		log.Println("[ERR] Discord bot error:", err)
		return
	}
	log.Println("[INFO] Discord bot exited cleanly")
}
