package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever the file at path changes and
// invokes onChange with the fresh config. Watching the parent directory
// instead of the file itself survives the write-to-temp-then-rename dance
// editors and config tools perform.
//
// A reload that fails to parse or validate is logged and skipped; the
// previous configuration stays in effect. The returned stop function
// releases the watcher.
func Watch(path string, log *slog.Logger, onChange func(*Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload failed, keeping previous settings",
						slog.String("path", path),
						slog.String("error", err.Error()))
					continue
				}
				if err := Validate(cfg); err != nil {
					log.Warn("reloaded config is invalid, keeping previous settings",
						slog.String("path", path),
						slog.String("error", err.Error()))
					continue
				}

				log.Info("configuration reloaded", slog.String("path", path))
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
