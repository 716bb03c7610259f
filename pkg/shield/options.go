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

	"github.com/teradata-labs/promptshield/pkg/heuristics"
	"github.com/teradata-labs/promptshield/pkg/language"
	"github.com/teradata-labs/promptshield/pkg/ml"
	"github.com/teradata-labs/promptshield/pkg/patterns"
	"github.com/teradata-labs/promptshield/pkg/semantic"
	"github.com/teradata-labs/promptshield/pkg/validation"
)

// ErrorPolicy decides what the facade does when analysis itself fails.
type ErrorPolicy string

const (
	// FailOpen admits the request with a synthetic safe result.
	FailOpen ErrorPolicy = "FailOpen"

	// FailClosed surfaces the failure to the caller; the request is blocked.
	FailClosed ErrorPolicy = "FailClosed"
)

// AggregationWeights are the per-layer weights of the final weighted average.
// They are renormalised over the layers that actually executed.
type AggregationWeights struct {
	PatternMatchingWeight  float64 `json:"pattern_matching_weight" yaml:"pattern_matching_weight"`
	HeuristicsWeight       float64 `json:"heuristics_weight" yaml:"heuristics_weight"`
	MLClassificationWeight float64 `json:"ml_classification_weight" yaml:"ml_classification_weight"`
	SemanticAnalysisWeight float64 `json:"semantic_analysis_weight" yaml:"semantic_analysis_weight"`
}

// Options is the full configuration tree of the analyzer.
type Options struct {
	// ThreatThreshold is the final decision line for the aggregated verdict.
	ThreatThreshold float64 `json:"threat_threshold" yaml:"threat_threshold"`

	// OnAnalysisError picks the fail-open/fail-closed policy.
	OnAnalysisError ErrorPolicy `json:"on_analysis_error" yaml:"on_analysis_error"`

	// IncludeBreakdown attaches per-layer results to every analysis result.
	IncludeBreakdown bool `json:"include_breakdown" yaml:"include_breakdown"`

	// MaxPromptLength bounds prompt and system prompt at validation.
	MaxPromptLength int `json:"max_prompt_length" yaml:"max_prompt_length"`

	// LogPromptContent gates whether prompt text appears in logs.
	LogPromptContent bool `json:"log_prompt_content" yaml:"log_prompt_content"`

	Language         language.Config   `json:"language" yaml:"language"`
	PatternMatching  patterns.Config   `json:"pattern_matching" yaml:"pattern_matching"`
	Heuristics       heuristics.Config `json:"heuristics" yaml:"heuristics"`
	ML               ml.Config         `json:"ml" yaml:"ml"`
	SemanticAnalysis semantic.Config   `json:"semantic_analysis" yaml:"semantic_analysis"`

	Aggregation AggregationWeights `json:"aggregation" yaml:"aggregation"`
}

// DefaultOptions returns the documented defaults for the whole tree.
func DefaultOptions() Options {
	return Options{
		ThreatThreshold:  0.75,
		OnAnalysisError:  FailClosed,
		IncludeBreakdown: true,
		MaxPromptLength:  validation.DefaultMaxPromptLength,
		Language:         language.DefaultConfig(),
		PatternMatching:  patterns.DefaultConfig(),
		Heuristics:       heuristics.DefaultConfig(),
		ML:               ml.DefaultConfig(),
		SemanticAnalysis: semantic.DefaultConfig(),
		Aggregation: AggregationWeights{
			PatternMatchingWeight:  0.4,
			HeuristicsWeight:       0.6,
			MLClassificationWeight: 0.8,
			SemanticAnalysisWeight: 0.9,
		},
	}
}

// Validate rejects option trees that cannot produce meaningful verdicts.
func (o *Options) Validate() error {
	if o.ThreatThreshold < 0 || o.ThreatThreshold > 1 {
		return fmt.Errorf("threat threshold %.2f outside [0,1]", o.ThreatThreshold)
	}
	switch o.OnAnalysisError {
	case FailOpen, FailClosed:
	default:
		return fmt.Errorf("unknown error policy %q", o.OnAnalysisError)
	}
	w := o.Aggregation
	if w.PatternMatchingWeight < 0 || w.HeuristicsWeight < 0 ||
		w.MLClassificationWeight < 0 || w.SemanticAnalysisWeight < 0 {
		return fmt.Errorf("aggregation weights must be non-negative")
	}
	if w.PatternMatchingWeight+w.HeuristicsWeight+w.MLClassificationWeight+w.SemanticAnalysisWeight == 0 {
		return fmt.Errorf("at least one aggregation weight must be positive")
	}
	if o.MaxPromptLength < 0 {
		return fmt.Errorf("max prompt length must be non-negative")
	}
	return nil
}
