package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadDelay is how long Watch waits after the last file event before
// reloading. Editors often write a file in several steps.
var ReloadDelay = 250 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes each new
// valid config to onChange. Invalid files are logged and skipped, and
// content identical to the last delivered config is ignored. Watch blocks
// until ctx is done and calls onChange from its own goroutine.
func Watch(ctx context.Context, path string, logger *zerolog.Logger, onChange func(*Config)) error {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("path", path).Logger()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// The directory is watched so renames and atomic replaces are seen.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	file := filepath.Base(path)

	var lastHash uint64
	if data, err := os.ReadFile(path); err == nil {
		lastHash = xxhash.Sum64(data)
	}

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	log.Debug().Str("dir", dir).Msg("config watcher started")
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("config watcher closed")
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(ReloadDelay)
			reload = timer.C
			log.Debug().Str("op", ev.Op.String()).Msg("config change detected")

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("config watcher closed")
			}
			log.Warn().Err(err).Msg("config watch error")

		case <-reload:
			reload = nil

			data, err := os.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Msg("config read failed")
				continue
			}
			h := xxhash.Sum64(data)
			if h == lastHash {
				log.Debug().Msg("config unchanged")
				continue
			}
			cfg, err := Parse(data)
			if err != nil {
				log.Warn().Err(err).Msg("config rejected")
				continue
			}
			lastHash = h
			log.Info().Int("monitors", len(cfg.Monitors)).Msg("config reloaded")
			onChange(cfg)
		}
	}
}
