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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/promptshield/pkg/types"
)

// patternFile is the on-disk YAML shape: a named list of detection patterns.
type patternFile struct {
	Patterns []types.DetectionPattern `yaml:"patterns"`
}

// FileProvider loads detection patterns from YAML files in a directory. It is
// a DynamicPatternProvider: Refresh re-reads the directory and notifies
// subscribers when the pattern set changed.
type FileProvider struct {
	name   string
	dir    string
	logger *zap.Logger

	mu          sync.RWMutex
	patterns    []types.DetectionPattern
	subscribers []func()
}

// NewFileProvider creates a provider over dir and performs the initial load.
// Files must end in .yaml or .yml and contain a top-level patterns list.
func NewFileProvider(name, dir string, logger *zap.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &FileProvider{name: name, dir: dir, logger: logger}

	patterns, err := p.load()
	if err != nil {
		return nil, err
	}
	p.patterns = patterns
	return p, nil
}

// Name implements PatternProvider.
func (p *FileProvider) Name() string { return p.name }

// Dir returns the watched directory.
func (p *FileProvider) Dir() string { return p.dir }

// Patterns implements PatternProvider.
func (p *FileProvider) Patterns() []types.DetectionPattern {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.DetectionPattern, len(p.patterns))
	copy(out, p.patterns)
	return out
}

// Subscribe registers a callback invoked after the pattern set changes.
func (p *FileProvider) Subscribe(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// Refresh re-reads the directory. Subscribers are notified only when the
// loaded set differs from the current one.
func (p *FileProvider) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	patterns, err := p.load()
	if err != nil {
		return err
	}

	p.mu.Lock()
	changed := !equalPatterns(p.patterns, patterns)
	if changed {
		p.patterns = patterns
	}
	subscribers := p.subscribers
	p.mu.Unlock()

	if !changed {
		return nil
	}

	p.logger.Info("pattern files reloaded",
		zap.String("provider", p.name),
		zap.Int("patterns", len(patterns)))
	for _, fn := range subscribers {
		fn()
	}
	return nil
}

// load reads every YAML file in the directory, sorted by name so pattern
// order is deterministic across reloads.
func (p *FileProvider) load() ([]types.DetectionPattern, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("read pattern directory %s: %w", p.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isPatternFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var patterns []types.DetectionPattern
	for _, name := range names {
		path := filepath.Join(p.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read pattern file %s: %w", path, err)
		}

		var file patternFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse pattern file %s: %w", path, err)
		}
		for _, pat := range file.Patterns {
			if pat.ID == "" || pat.Regex == "" {
				return nil, fmt.Errorf("pattern file %s: id and regex are required", path)
			}
			patterns = append(patterns, pat)
		}
	}
	return patterns, nil
}

func isPatternFile(name string) bool {
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".tmp") || strings.HasSuffix(name, "~") {
		return false
	}
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func equalPatterns(a, b []types.DetectionPattern) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var _ types.DynamicPatternProvider = (*FileProvider)(nil)
