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
package shield

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/promptshield/pkg/heuristics"
	"github.com/teradata-labs/promptshield/pkg/language"
	"github.com/teradata-labs/promptshield/pkg/ml"
	"github.com/teradata-labs/promptshield/pkg/observability"
	"github.com/teradata-labs/promptshield/pkg/patterns"
	"github.com/teradata-labs/promptshield/pkg/semantic"
	"github.com/teradata-labs/promptshield/pkg/types"
	"github.com/teradata-labs/promptshield/pkg/validation"
)

// Builder assembles an Analyzer. Zero value usable:
//
//	analyzer, err := shield.NewBuilder().
//		WithOptions(opts).
//		WithPatternProvider(provider).
//		Build()
type Builder struct {
	opts       Options
	optsSet    bool
	providers  []types.PatternProvider
	analyzers  []types.HeuristicAnalyzer
	detector   types.LanguageDetector
	model      types.Model
	classifier semantic.Classifier
	handlers   []types.EventHandler
	tracer     observability.Tracer
	logger     *zap.Logger
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithOptions replaces the default options tree.
func (b *Builder) WithOptions(opts Options) *Builder {
	b.opts = opts
	b.optsSet = true
	return b
}

// WithPatternProvider appends a pattern provider. Dynamic providers trigger
// atomic registry rebuilds on refresh.
func (b *Builder) WithPatternProvider(p types.PatternProvider) *Builder {
	b.providers = append(b.providers, p)
	return b
}

// WithHeuristicAnalyzer appends a custom analyzer after the built-in set.
func (b *Builder) WithHeuristicAnalyzer(a types.HeuristicAnalyzer) *Builder {
	b.analyzers = append(b.analyzers, a)
	return b
}

// WithLanguageDetector wires the language gate. Without a detector the gate
// is skipped regardless of Language.Enabled.
func (b *Builder) WithLanguageDetector(d types.LanguageDetector) *Builder {
	b.detector = d
	return b
}

// WithModel wires a neural model into the ML layer.
func (b *Builder) WithModel(m types.Model) *Builder {
	b.model = m
	return b
}

// WithSemanticClassifier replaces the HTTP-backed semantic client, mainly
// for tests and custom transports.
func (b *Builder) WithSemanticClassifier(c semantic.Classifier) *Builder {
	b.classifier = c
	return b
}

// WithEventHandler appends a lifecycle event handler.
func (b *Builder) WithEventHandler(h types.EventHandler) *Builder {
	b.handlers = append(b.handlers, h)
	return b
}

// WithTracer wires an observability exporter.
func (b *Builder) WithTracer(t observability.Tracer) *Builder {
	b.tracer = t
	return b
}

// WithLogger wires a structured logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the options and constructs the analyzer. All pattern and
// allowlist regexes compile here; a compile failure fails Build, never a
// request.
func (b *Builder) Build() (*Analyzer, error) {
	opts := b.opts
	if !b.optsSet {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}

	providers := b.providers
	if opts.PatternMatching.IncludeBuiltInPatterns {
		providers = append([]types.PatternProvider{patterns.NewBuiltinProvider()}, providers...)
	}
	registry, err := patterns.NewRegistry(providers, patterns.RegistryConfig{
		MatchTimeout:       time.Duration(opts.PatternMatching.TimeoutMs) * time.Millisecond,
		DisabledPatternIDs: opts.PatternMatching.DisabledPatternIDs,
		Logger:             logger,
		Tracer:             tracer,
	})
	if err != nil {
		return nil, err
	}
	patternLayer, err := patterns.NewLayer(opts.PatternMatching, registry, logger, tracer)
	if err != nil {
		return nil, err
	}

	heurLayer, err := heuristics.NewLayer(opts.Heuristics, b.analyzers, logger)
	if err != nil {
		return nil, err
	}

	var mlLayer *ml.Layer
	if opts.ML.Enabled {
		mlLayer, err = ml.NewLayer(opts.ML, b.model, logger, tracer)
		if err != nil {
			return nil, err
		}
	}

	var semLayer *semantic.Layer
	if opts.SemanticAnalysis.Enabled {
		semLayer, err = semantic.NewLayer(opts.SemanticAnalysis, b.classifier, logger, tracer)
		if err != nil {
			return nil, err
		}
	}

	var filter *language.Filter
	if b.detector != nil {
		filter = language.NewFilter(opts.Language, b.detector, logger)
	}

	return &Analyzer{
		opts:      opts,
		validator: validation.NewValidator(opts.MaxPromptLength),
		pipeline: &pipeline{
			opts:     opts,
			filter:   filter,
			patterns: patternLayer,
			heur:     heurLayer,
			mlLayer:  mlLayer,
			semLayer: semLayer,
			logger:   logger,
			tracer:   tracer,
		},
		dispatcher: newDispatcher(b.handlers, logger),
		logger:     logger,
		tracer:     tracer,
	}, nil
}
