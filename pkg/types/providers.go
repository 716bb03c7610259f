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
package types

import (
	"context"
)

// PatternProvider supplies detection patterns to the registry. Providers are
// iterated in registration order; the built-in catalog is one provider among
// any number of custom ones.
type PatternProvider interface {
	// Name identifies the provider in logs and pattern attribution.
	Name() string

	// Patterns returns the provider's current pattern set.
	Patterns() []DetectionPattern
}

// DynamicPatternProvider is a PatternProvider whose pattern set can change at
// runtime. Subscribers are notified after each change; the registry reacts by
// rebuilding its compiled cache atomically.
type DynamicPatternProvider interface {
	PatternProvider

	// Refresh re-reads the underlying source and notifies subscribers when
	// the pattern set changed.
	Refresh(ctx context.Context) error

	// Subscribe registers a callback invoked after the pattern set changes.
	Subscribe(fn func())
}

// HeuristicResult is the outcome of one heuristic analyzer run.
type HeuristicResult struct {
	// Score is the analyzer's threat score in [0,1].
	Score float64

	// Signals are the observations that produced the score, in the order
	// they were detected.
	Signals []Signal

	// Explanation is an optional human-readable summary.
	Explanation string
}

// HeuristicContext is the read-only input handed to each heuristic analyzer.
type HeuristicContext struct {
	// Prompt is the user prompt under analysis.
	Prompt string

	// SystemPrompt is the optional system prompt, for cross-referencing.
	SystemPrompt string

	// PatternResult is the pattern layer's result, nil when L1 did not run.
	PatternResult *LayerResult

	// ValidationWarnings are the signal names propagated from the request
	// validator (suspicious_unicode, invisible_characters, ...).
	ValidationWarnings []string

	// Sensitivity scales trigger thresholds and contributions.
	Sensitivity Sensitivity

	// DirectiveWordThreshold, PunctuationRatioThreshold and
	// AlphanumericRatioThreshold are the configured trigger thresholds,
	// before sensitivity scaling.
	DirectiveWordThreshold     int
	PunctuationRatioThreshold  float64
	AlphanumericRatioThreshold float64

	// DomainExclusions lists directive words that do not count for this
	// deployment (e.g. "override" in a CSS-help product).
	DomainExclusions []string
}

// HeuristicAnalyzer inspects a prompt for one family of injection signals.
// Analyzers run sequentially in registration order within the heuristic layer.
type HeuristicAnalyzer interface {
	// Name identifies the analyzer; built-in names are contractual signal
	// family names (instruction_language, delimiter_injection, ...).
	Name() string

	// Weight is the analyzer's relative weight for weighted aggregation.
	// The reference aggregation rule is an arithmetic mean; weights are a
	// permitted refinement and default to 1.0.
	Weight() float64

	// Analyze scores the prompt. Errors are recorded on the layer result
	// and do not abort the layer.
	Analyze(ctx context.Context, hctx *HeuristicContext) (HeuristicResult, error)
}

// LanguageDetector reports the language of a text. The pipeline consumes the
// result through this narrow interface; implementations may wrap any
// detection backend.
type LanguageDetector interface {
	Detect(ctx context.Context, text string) (LanguageDetectionResult, error)
}

// EventHandler observes analysis lifecycle events. Handlers are invoked in
// registration order; a handler failure is logged and swallowed.
type EventHandler interface {
	// OnAnalysisStarted fires before the pipeline runs.
	OnAnalysisStarted(ctx context.Context, analysisID string, req *AnalysisRequest) error

	// OnThreatDetected fires when the final verdict is a threat, before
	// OnAnalysisCompleted.
	OnThreatDetected(ctx context.Context, result *AnalysisResult) error

	// OnAnalysisCompleted always fires after the pipeline finished.
	OnAnalysisCompleted(ctx context.Context, result *AnalysisResult) error
}

// Model scores tokenized input with a neural classifier. Implementations wrap
// an inference runtime; the ML layer handles tokenization, truncation,
// timeouts and concurrency bounds around Predict.
type Model interface {
	// Predict returns the threat probability in [0,1] for the token ids.
	Predict(ctx context.Context, tokenIDs []int) (float64, error)
}
