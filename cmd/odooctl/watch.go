// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
	"github.com/AleutianAI/odooctl/pkg/logging"
)

// configWatcher marks the configuration stale when .env changes. It
// watches the directory since editors often replace the file on save.
type configWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *logging.Logger

	stale atomic.Bool
	done  chan struct{}
}

func watchConfig(dir string, logger *logging.Logger) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	cw := &configWatcher{
		watcher: w,
		path:    filepath.Clean(config.EnvPath(dir)),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go cw.loop()
	return cw, nil
}

func (c *configWatcher) loop() {
	defer close(c.done)
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != c.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				c.logger.Debug(".env changed", "op", ev.Op.String())
				c.stale.Store(true)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("config watch error", "error", err)
		}
	}
}

// TakeStale reports whether .env changed since the last call and resets
// the flag.
func (c *configWatcher) TakeStale() bool {
	return c.stale.Swap(false)
}

// Close stops watching.
func (c *configWatcher) Close() error {
	err := c.watcher.Close()
	<-c.done
	return err
}
