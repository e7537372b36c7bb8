package storage

import (
	"context"
	"log"
	"time"
)

// RunHistoryCleaner deletes command history older than retention every hour
// until ctx is done.
func RunHistoryCleaner(ctx context.Context, store *Storage, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneCommandHistory(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Println("[ERR] Error pruning command history:", err)
				continue
			}
			if n > 0 {
				log.Printf("[INFO] Pruned %d old command history records", n)
			}
		}
	}
}
