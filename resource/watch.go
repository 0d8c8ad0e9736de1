package resource

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch rebuilds the document whenever a file in one of the directories changes.
// It blocks until ctx is canceled.
func (p *Provider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	for _, dir := range p.dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch directory: %w", err)
		}
	}
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			_ = p.logger.Log("event", "resource changed", "op", event.Op.String(), "file", event.Name)
			if err := p.Rebuild(); err != nil {
				_ = p.logger.Log("event", "rebuild", "error", err, "reaction", "keep previous document")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_ = p.logger.Log("event", "file watcher", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}
