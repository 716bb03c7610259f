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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptshield/pkg/observability"
	"github.com/teradata-labs/promptshield/pkg/types"
)

// ErrPatternProviderInit marks a pattern that failed to compile at registry
// build time. It surfaces at construction, never per request.
var ErrPatternProviderInit = errors.New("pattern provider init failed")

// DefaultMatchTimeout is the per-evaluation regex timeout (ReDoS guard).
const DefaultMatchTimeout = 100 * time.Millisecond

// CompiledPattern pairs a pattern with its compiled regex. The regex carries
// a hard MatchTimeout; evaluation can never exceed it.
type CompiledPattern struct {
	Pattern types.DetectionPattern
	Regex   *regexp2.Regexp
}

// snapshot is an immutable compiled pattern set. The registry swaps whole
// snapshots so in-flight evaluations keep a consistent view.
type snapshot struct {
	compiled []CompiledPattern
}

// RegistryConfig configures registry construction.
type RegistryConfig struct {
	// MatchTimeout is the per-evaluation regex timeout. <= 0 selects the
	// default of 100ms.
	MatchTimeout time.Duration

	// DisabledPatternIDs are dropped at build time.
	DisabledPatternIDs []string

	Logger *zap.Logger
	Tracer observability.Tracer
}

// Registry aggregates patterns from providers into one compiled cache.
// Dynamic providers trigger atomic rebuilds; readers always see a complete
// snapshot.
type Registry struct {
	providers []types.PatternProvider
	disabled  map[string]bool
	timeout   time.Duration
	logger    *zap.Logger
	tracer    observability.Tracer

	current atomic.Pointer[snapshot]
}

// NewRegistry builds the compiled cache from the providers, in provider
// order, and subscribes to every dynamic provider for rebuilds. A pattern
// that fails to compile fails construction with ErrPatternProviderInit.
func NewRegistry(providers []types.PatternProvider, cfg RegistryConfig) (*Registry, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = DefaultMatchTimeout
	}

	disabled := make(map[string]bool, len(cfg.DisabledPatternIDs))
	for _, id := range cfg.DisabledPatternIDs {
		disabled[id] = true
	}

	r := &Registry{
		providers: providers,
		disabled:  disabled,
		timeout:   cfg.MatchTimeout,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
	}

	snap, err := r.build(observability.SpanRegistryBuild)
	if err != nil {
		return nil, err
	}
	r.current.Store(snap)

	for _, p := range providers {
		if dp, ok := p.(types.DynamicPatternProvider); ok {
			dp.Subscribe(func() {
				if err := r.Rebuild(); err != nil {
					r.logger.Error("pattern registry rebuild failed, keeping previous snapshot",
						zap.Error(err))
				}
			})
		}
	}
	return r, nil
}

// Rebuild recompiles all providers into a new snapshot and swaps it in.
// On error the previous snapshot stays active.
func (r *Registry) Rebuild() error {
	snap, err := r.build(observability.SpanRegistryRebuild)
	if err != nil {
		return err
	}
	r.current.Store(snap)
	r.tracer.RecordMetric(observability.MetricRegistryRebuilds, 1, nil)
	r.logger.Info("pattern registry rebuilt", zap.Int("patterns", len(snap.compiled)))
	return nil
}

func (r *Registry) build(spanName string) (*snapshot, error) {
	_, span := r.tracer.StartSpan(context.Background(), spanName)
	defer r.tracer.EndSpan(span)

	var compiled []CompiledPattern
	for _, provider := range r.providers {
		for _, p := range provider.Patterns() {
			if !p.Enabled || r.disabled[p.ID] {
				continue
			}
			if p.OWASPCategory == "" {
				p.OWASPCategory = types.DefaultOWASPCategory
			}

			re, err := regexp2.Compile(p.Regex, regexp2.IgnoreCase)
			if err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("%w: provider %q pattern %q: %v",
					ErrPatternProviderInit, provider.Name(), p.ID, err)
			}
			re.MatchTimeout = r.timeout
			compiled = append(compiled, CompiledPattern{Pattern: p, Regex: re})
		}
	}

	span.SetAttribute(observability.AttrPatternCount, len(compiled))
	return &snapshot{compiled: compiled}, nil
}

// Snapshot returns the current compiled patterns. The returned slice is
// immutable; rebuilds never mutate a published snapshot.
func (r *Registry) Snapshot() []CompiledPattern {
	return r.current.Load().compiled
}

// Len returns the number of compiled patterns in the current snapshot.
func (r *Registry) Len() int {
	return len(r.current.Load().compiled)
}
