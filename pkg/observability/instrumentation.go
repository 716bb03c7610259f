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
package observability

// Standard span names for consistency across promptshield.
// Use these constants instead of hardcoding strings.
const (
	// SpanAnalyze is the root span covering one Analyze call.
	SpanAnalyze = "PromptShield.Analyze"

	// Per-layer spans
	SpanLanguageFilter   = "layer.language_filter"
	SpanPatternMatching  = "layer.pattern_matching"
	SpanHeuristics       = "layer.heuristics"
	SpanMLClassification = "layer.ml_classification"
	SpanSemanticAnalysis = "layer.semantic_analysis"

	// Supporting operation spans
	SpanValidation      = "request.validate"
	SpanRegistryBuild   = "patterns.registry.build"
	SpanRegistryRebuild = "patterns.registry.rebuild"
	SpanSemanticCall    = "semantic.llm_call"
	SpanMLInference     = "ml.inference"
)

// Standard metric names for consistency.
const (
	// Counters
	MetricAnalysisTotal   = "analysis_total"
	MetricThreatsDetected = "threats_detected"
	MetricAnalysisErrors  = "analysis_errors"

	// Histograms
	MetricAnalysisLatency = "analysis_latency_ms"
	MetricPromptLength    = "prompt_length"

	// Layer internals
	MetricPatternTimeouts    = "pattern_eval_timeouts"
	MetricRegistryRebuilds   = "pattern_registry_rebuilds"
	MetricMLInferences       = "ml_inferences_total"
	MetricSemanticCalls      = "semantic_calls_total"
	MetricSemanticRetries    = "semantic_retries_total"
	MetricSemanticRateLimits = "semantic_rate_limited_total"
)

// Standard attribute names for consistency.
// Use these constants for span and event attributes.
const (
	AttrAnalysisID    = "analysis.id"
	AttrDecisionLayer = "analysis.decision_layer"

	AttrPromptLength = "prompt.length"
	AttrUserID       = "user.id"

	AttrThreatDetected   = "threat.detected"
	AttrThreatConfidence = "threat.confidence"
	AttrThreatOWASP      = "threat.owasp_category"

	AttrLayerName       = "layer.name"
	AttrLayerConfidence = "layer.confidence"

	AttrPatternName  = "pattern.name"
	AttrPatternCount = "pattern.count_matched"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)
