package policy

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the default bundle when its asset file changes on disk.
// No-op unless an asset dir is configured. Events are debounced because
// editors fire several per save.
func (e *Engine) Watch(ctx context.Context) error {
	if e.assetDir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(e.assetDir); err != nil {
		watcher.Close()
		return err
	}
	log.Printf("[Policy] Watching %s for default bundle changes", e.assetDir)

	go func() {
		defer watcher.Close()
		var pending *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, func() {
					if err := e.Reload(); err != nil {
						log.Printf("[Policy] Reload after change failed: %v", err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Policy] Watcher error: %v", err)
			}
		}
	}()
	return nil
}
