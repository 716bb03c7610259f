// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package patterns

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounceMs is the settle delay applied to filesystem events before a
// refresh. Editors fire several events per save.
const DefaultDebounceMs = 500

// Watcher keeps a FileProvider current by watching its directory with
// fsnotify. Changes trigger a debounced Refresh, which notifies the
// provider's subscribers (typically the registry's rebuild).
type Watcher struct {
	provider   *FileProvider
	watcher    *fsnotify.Watcher
	debounceMs int
	logger     *zap.Logger

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopMu  sync.Mutex
	stopped bool
}

// NewWatcher creates a watcher for the provider's directory. debounceMs <= 0
// selects the default.
func NewWatcher(provider *FileProvider, debounceMs int, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounceMs <= 0 {
		debounceMs = DefaultDebounceMs
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &Watcher{
		provider:       provider,
		watcher:        fsw,
		debounceMs:     debounceMs,
		logger:         logger,
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Start begins watching. The watch loop runs until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.provider.Dir()); err != nil {
		return fmt.Errorf("watch pattern directory %s: %w", w.provider.Dir(), err)
	}

	w.logger.Info("started pattern watcher",
		zap.String("dir", w.provider.Dir()),
		zap.Int("debounce_ms", w.debounceMs))

	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("pattern watcher error", zap.Error(err))

		case <-w.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isPatternFile(filepath.Base(event.Name)) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.debounce(event.Name, func() {
		w.logger.Debug("pattern file changed",
			zap.String("file", event.Name),
			zap.String("op", strings.ToLower(event.Op.String())))
		if err := w.provider.Refresh(ctx); err != nil {
			w.logger.Error("pattern refresh failed",
				zap.String("file", event.Name),
				zap.Error(err))
		}
	})
}

// debounce delays the callback until changes to the file settle.
func (w *Watcher) debounce(key string, callback func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[key]; exists {
		timer.Stop()
	}

	delay := time.Duration(w.debounceMs) * time.Millisecond
	w.debounceTimers[key] = time.AfterFunc(delay, func() {
		callback()
		w.debounceMu.Lock()
		delete(w.debounceTimers, key)
		w.debounceMu.Unlock()
	})
}

// Stop stops the watcher. Idempotent.
func (w *Watcher) Stop() error {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true

	close(w.stopCh)
	select {
	case <-w.doneCh:
	case <-time.After(5 * time.Second):
		w.logger.Warn("pattern watcher stop timed out")
	}
	return w.watcher.Close()
}
