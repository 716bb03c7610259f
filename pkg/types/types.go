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

// Package types contains shared types used across the promptshield module.
// This package breaks import cycles by providing common value types and
// capability interfaces that the detection layers and the shield facade
// both depend on.
package types

import (
	"time"
)

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationMessage is one turn of prior conversation supplied for context.
type ConversationMessage struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// RequestMetadata carries optional caller-supplied context for an analysis.
type RequestMetadata struct {
	UserID         string            `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	Source         string            `json:"source,omitempty" yaml:"source,omitempty"`
	CorrelationID  string            `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	Properties     map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// AnalysisRequest is the input to an analysis. It is treated as immutable for
// the lifetime of the call: layers read it, nothing mutates it.
type AnalysisRequest struct {
	// Prompt is the user prompt to analyze. Required, non-empty.
	Prompt string `json:"prompt" yaml:"prompt"`

	// SystemPrompt is the optional system prompt, validated to the same
	// length bound as the prompt.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// Conversation is the optional ordered history preceding the prompt.
	Conversation []ConversationMessage `json:"conversation,omitempty" yaml:"conversation,omitempty"`

	// Metadata is optional caller context (user id, correlation id, ...).
	Metadata *RequestMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// LayerName identifies a detection layer within the pipeline.
type LayerName string

const (
	LayerLanguageFilter   LayerName = "LanguageFilter"
	LayerPatternMatching  LayerName = "PatternMatching"
	LayerHeuristics       LayerName = "Heuristics"
	LayerMLClassification LayerName = "MLClassification"
	LayerSemanticAnalysis LayerName = "SemanticAnalysis"
)

// Decision labels that are not layer names.
const (
	DecisionAggregated = "Aggregated"
	DecisionFailOpen   = "FailOpen"
)

// PipelineOrder is the canonical execution order of the detection layers.
// ExecutedLayers in any breakdown is a subsequence of this list.
var PipelineOrder = []LayerName{
	LayerLanguageFilter,
	LayerPatternMatching,
	LayerHeuristics,
	LayerMLClassification,
	LayerSemanticAnalysis,
}

// LayerResult is the outcome of one layer run. It is produced exactly once
// per layer and never mutated after the orchestrator receives it.
type LayerResult struct {
	// Layer names the layer that produced this result.
	Layer LayerName `json:"layer"`

	// Executed reports whether the layer actually ran.
	Executed bool `json:"executed"`

	// Confidence is the layer's threat confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// IsThreat is the layer's local verdict.
	IsThreat bool `json:"is_threat"`

	// Definitive marks a heuristic result sitting outside the
	// definitive-safe/definitive-threat band; it triggers early exit.
	Definitive bool `json:"definitive,omitempty"`

	// Duration is how long the layer ran.
	Duration time.Duration `json:"duration"`

	// Data carries layer-specific detail: matched pattern names, signals,
	// feature contributions, and error/timeout/rate-limit markers.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Standard Data keys shared across layers.
const (
	DataKeyStatus   = "status"
	DataKeyError    = "error"
	DataKeyWarnings = "warnings"

	StatusSuccess     = "success"
	StatusAllowlisted = "allowlisted"
	StatusTimeout     = "timeout"
	StatusRateLimited = "rate_limited"
)

// DetectionBreakdown exposes the per-layer results of one analysis.
type DetectionBreakdown struct {
	LanguageFilter   *LayerResult `json:"language_filter,omitempty"`
	PatternMatching  *LayerResult `json:"pattern_matching,omitempty"`
	Heuristics       *LayerResult `json:"heuristics,omitempty"`
	MLClassification *LayerResult `json:"ml_classification,omitempty"`
	SemanticAnalysis *LayerResult `json:"semantic_analysis,omitempty"`

	// ExecutedLayers lists the layers that ran, in pipeline order.
	ExecutedLayers []LayerName `json:"executed_layers"`
}

// Result returns the stored result for the named layer, or nil.
func (b *DetectionBreakdown) Result(layer LayerName) *LayerResult {
	switch layer {
	case LayerLanguageFilter:
		return b.LanguageFilter
	case LayerPatternMatching:
		return b.PatternMatching
	case LayerHeuristics:
		return b.Heuristics
	case LayerMLClassification:
		return b.MLClassification
	case LayerSemanticAnalysis:
		return b.SemanticAnalysis
	default:
		return nil
	}
}

// SetResult stores a layer result and appends to ExecutedLayers when the
// layer actually executed.
func (b *DetectionBreakdown) SetResult(r *LayerResult) {
	switch r.Layer {
	case LayerLanguageFilter:
		b.LanguageFilter = r
	case LayerPatternMatching:
		b.PatternMatching = r
	case LayerHeuristics:
		b.Heuristics = r
	case LayerMLClassification:
		b.MLClassification = r
	case LayerSemanticAnalysis:
		b.SemanticAnalysis = r
	}
	if r.Executed {
		b.ExecutedLayers = append(b.ExecutedLayers, r.Layer)
	}
}

// DefaultOWASPCategory is the OWASP Top-10 for LLM Applications category
// assigned to prompt-injection findings.
const DefaultOWASPCategory = "LLM01"

// ThreatInfo describes a detected threat. Present on a result iff the result
// is a threat, and DetectionSources is always non-empty in that case.
type ThreatInfo struct {
	// OWASPCategory classifies the threat (default "LLM01").
	OWASPCategory string `json:"owasp_category"`

	// ThreatType is a short label ("Prompt Injection", "Unsupported Language").
	ThreatType string `json:"threat_type"`

	// Explanation is the technical detail intended for security engineers.
	Explanation string `json:"explanation"`

	// UserMessage is the sanitized message safe to surface to end users.
	UserMessage string `json:"user_message"`

	// Severity is derived from the final confidence.
	Severity Severity `json:"severity"`

	// DetectionSources lists the layers that contributed to the verdict.
	DetectionSources []LayerName `json:"detection_sources"`

	// MatchedPatterns names the detection patterns that fired, if any.
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
}

// AnalysisResult is the final verdict for one analysis call.
type AnalysisResult struct {
	// AnalysisID is a fresh UUID, unique per call.
	AnalysisID string `json:"analysis_id"`

	// IsThreat is the final verdict.
	IsThreat bool `json:"is_threat"`

	// Confidence is the final confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Threat is present iff IsThreat.
	Threat *ThreatInfo `json:"threat,omitempty"`

	// Breakdown is present iff the options request it.
	Breakdown *DetectionBreakdown `json:"breakdown,omitempty"`

	// DecisionLayer is the layer that decided the verdict, or "Aggregated"
	// when the weighted aggregate decided, or "FailOpen" on the fail-open
	// error path.
	DecisionLayer string `json:"decision_layer"`

	// Duration is the wall time of the analysis.
	Duration time.Duration `json:"duration"`

	// Timestamp is the UTC completion time.
	Timestamp time.Time `json:"timestamp"`
}

// DetectionPattern is one detection rule evaluated by the pattern layer.
// Patterns are compiled once at registry build time, never per request.
type DetectionPattern struct {
	// ID is the stable identifier used by DisabledPatternIds.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable rule name reported on matches.
	Name string `json:"name" yaml:"name"`

	// Regex is the pattern source. Compiled case-insensitive with a hard
	// per-evaluation timeout.
	Regex string `json:"regex" yaml:"regex"`

	// Description explains what the rule detects.
	Description string `json:"description" yaml:"description"`

	// OWASPCategory classifies matches (default "LLM01").
	OWASPCategory string `json:"owasp_category" yaml:"owasp_category"`

	// Severity determines the confidence a match contributes.
	Severity Severity `json:"severity" yaml:"severity"`

	// Enabled patterns are compiled; disabled ones are skipped at build time.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// LanguageDetectionResult reports the detected language of a prompt.
type LanguageDetectionResult struct {
	// Language is the ISO-639-1 code, or "und" when undetermined.
	Language string `json:"language"`

	// Script is the ISO-15924 script code, or "Zzzz" when unknown.
	Script string `json:"script"`

	// Confidence is the detector's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Reliable reports whether the detector considers the result trustworthy.
	Reliable bool `json:"reliable"`
}

// UndeterminedLanguage and UnknownScript are the sentinel codes returned when
// detection cannot decide.
const (
	UndeterminedLanguage = "und"
	UnknownScript        = "Zzzz"
)

// FilterAction is the gate decision of the language filter.
type FilterAction string

const (
	ActionAllow            FilterAction = "Allow"
	ActionBlock            FilterAction = "Block"
	ActionAllowWithWarning FilterAction = "AllowWithWarning"
)

// Signal is one heuristic observation contributing to a layer score.
type Signal struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
	Description  string  `json:"description"`
}

// Clamp01 clamps v to [0,1]. Confidence values pass through this at every
// layer boundary and at the final aggregate.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
