package broadcaster

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watch rescans the catalog after the track directory settles.
func (b *Broadcaster) watch(ctx context.Context) {
	timer := time.NewTimer(b.cfg.WatchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if !b.catalog.supported(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			b.logger.Debug("track directory changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(b.cfg.WatchDebounce)
		case <-timer.C:
			if err := b.RescanCatalog(ctx); err != nil {
				b.logger.Error("catalog rescan failed", "err", err)
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Error("watcher error", "err", err)
		}
	}
}
