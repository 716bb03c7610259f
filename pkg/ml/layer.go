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
package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teradata-labs/promptshield/pkg/observability"
	"github.com/teradata-labs/promptshield/pkg/patterns"
	"github.com/teradata-labs/promptshield/pkg/types"
)

// Data keys emitted by the ML layer.
const (
	DataKeyThreshold         = "threshold"
	DataKeyMode              = "mode"
	DataKeySensitivity       = "sensitivity"
	DataKeyThreatProbability = "threat_probability"
	DataKeyBenignProbability = "benign_probability"
	DataKeyModelAvailable    = "model_available"
	DataKeyDisabledFeatures  = "disabled_features_count"
	DataKeyTopFeatures       = "top_features"

	ModeFeature  = "feature"
	ModeModel    = "model"
	ModeEnsemble = "ensemble"
)

// topFeatureCount bounds the feature contributions echoed into result data.
const topFeatureCount = 5

// Config controls the ML classification layer.
type Config struct {
	// Enabled turns the layer on. The layer additionally requires the
	// orchestrator's confidence gate to pass.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ModelPath locates a neural model for hosts that load one; the library
	// itself consumes models through the Model interface.
	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty"`

	// Threshold is the threat decision line for this layer.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// MaxSequenceLength truncates tokenized input for the neural scorer.
	MaxSequenceLength int `json:"max_sequence_length" yaml:"max_sequence_length"`

	// MaxConcurrentInferences bounds in-flight Evaluate calls.
	MaxConcurrentInferences int64 `json:"max_concurrent_inferences" yaml:"max_concurrent_inferences"`

	// InferenceTimeoutSeconds is the per-call deadline.
	InferenceTimeoutSeconds int `json:"inference_timeout_seconds" yaml:"inference_timeout_seconds"`

	// UseEnsemble blends model and feature scores when both are available.
	UseEnsemble bool `json:"use_ensemble" yaml:"use_ensemble"`

	// ModelWeight is the model share of the ensemble blend.
	ModelWeight float64 `json:"model_weight" yaml:"model_weight"`

	// Sensitivity scales the final score.
	Sensitivity types.Sensitivity `json:"sensitivity" yaml:"sensitivity"`

	// FeatureWeights overrides the default per-feature weights.
	FeatureWeights map[string]float64 `json:"feature_weights,omitempty" yaml:"feature_weights,omitempty"`

	// AllowedPatterns short-circuit the layer to a safe result.
	AllowedPatterns []string `json:"allowed_patterns" yaml:"allowed_patterns"`

	// DisabledFeatures skip contribution entirely.
	DisabledFeatures []string `json:"disabled_features" yaml:"disabled_features"`

	// MinFeatureContribution discards contributions below it as noise.
	MinFeatureContribution float64 `json:"min_feature_contribution" yaml:"min_feature_contribution"`

	// IncludeFeatureImportance attaches top feature contributions to the
	// result data.
	IncludeFeatureImportance bool `json:"include_feature_importance" yaml:"include_feature_importance"`
}

// DefaultConfig returns the documented ML defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		Threshold:                0.8,
		MaxSequenceLength:        512,
		MaxConcurrentInferences:  4,
		InferenceTimeoutSeconds:  10,
		UseEnsemble:              true,
		ModelWeight:              0.7,
		Sensitivity:              types.SensitivityMedium,
		MinFeatureContribution:   0.1,
		IncludeFeatureImportance: true,
	}
}

// Layer is the ML classification layer (L3). The feature scorer is always
// available; a neural model is optional and blended per UseEnsemble.
type Layer struct {
	cfg       Config
	extractor *Extractor
	scorer    *Scorer
	tokenizer *Tokenizer
	model     types.Model
	sem       *semaphore.Weighted
	allowlist []*regexp2.Regexp
	logger    *zap.Logger
	tracer    observability.Tracer
}

// NewLayer creates the ML layer. model may be nil; the layer then runs in
// feature-only mode.
func NewLayer(cfg Config, model types.Model, logger *zap.Logger, tracer observability.Tracer) (*Layer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if cfg.MaxConcurrentInferences <= 0 {
		cfg.MaxConcurrentInferences = DefaultConfig().MaxConcurrentInferences
	}

	extractor, err := NewExtractor()
	if err != nil {
		return nil, fmt.Errorf("create feature extractor: %w", err)
	}

	allowlist := make([]*regexp2.Regexp, 0, len(cfg.AllowedPatterns))
	for _, src := range cfg.AllowedPatterns {
		re, err := regexp2.Compile(src, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("%w: allowed pattern %q: %v", patterns.ErrPatternProviderInit, src, err)
		}
		re.MatchTimeout = patterns.DefaultMatchTimeout
		allowlist = append(allowlist, re)
	}

	var tokenizer *Tokenizer
	if model != nil {
		tokenizer = NewTokenizer(cfg.MaxSequenceLength, logger)
	}

	return &Layer{
		cfg:       cfg,
		extractor: extractor,
		scorer:    NewScorer(cfg.FeatureWeights, cfg.DisabledFeatures, cfg.MinFeatureContribution),
		tokenizer: tokenizer,
		model:     model,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentInferences),
		allowlist: allowlist,
		logger:    logger,
		tracer:    tracer,
	}, nil
}

// Evaluate classifies the prompt. At most MaxConcurrentInferences calls run
// at once; each is bounded by the inference timeout, which maps to a
// non-threat result with a timeout marker.
func (l *Layer) Evaluate(ctx context.Context, prompt string) *types.LayerResult {
	start := time.Now()
	result := &types.LayerResult{
		Layer:    types.LayerMLClassification,
		Executed: true,
		Data:     map[string]interface{}{types.DataKeyStatus: types.StatusSuccess},
	}
	defer func() { result.Duration = time.Since(start) }()

	for _, re := range l.allowlist {
		ok, err := re.MatchString(prompt)
		if err != nil {
			continue
		}
		if ok {
			result.Data[types.DataKeyStatus] = types.StatusAllowlisted
			return result
		}
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		result.Data[types.DataKeyError] = err.Error()
		return result
	}
	defer l.sem.Release(1)

	timeout := time.Duration(l.cfg.InferenceTimeoutSeconds) * time.Second
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	featureScore, contributions := l.scorer.Score(l.extractor.Extract(prompt))

	mode := ModeFeature
	score := featureScore
	if l.model != nil {
		l.tracer.RecordMetric(observability.MetricMLInferences, 1, nil)
		_, span := l.tracer.StartSpan(ictx, observability.SpanMLInference)

		modelScore, err := l.model.Predict(ictx, l.tokenizer.Tokenize(prompt))
		l.tracer.EndSpan(span)

		switch {
		case err == nil:
			if l.cfg.UseEnsemble {
				mode = ModeEnsemble
				score = l.cfg.ModelWeight*modelScore + (1-l.cfg.ModelWeight)*featureScore
			} else {
				mode = ModeModel
				score = modelScore
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// The inference deadline, not the caller's context.
			result.Data[types.DataKeyStatus] = types.StatusTimeout
			result.Data[DataKeyModelAvailable] = true
			l.logger.Warn("ML inference timed out", zap.Duration("timeout", timeout))
			return result
		default:
			// Model failure degrades to feature-only scoring.
			result.Data[types.DataKeyError] = err.Error()
			l.logger.Warn("ML model prediction failed, using feature score", zap.Error(err))
		}
	}

	score = types.Clamp01(score * l.cfg.Sensitivity.ContributionScale())

	result.Confidence = score
	result.IsThreat = score >= l.cfg.Threshold
	result.Data[DataKeyThreshold] = l.cfg.Threshold
	result.Data[DataKeyMode] = mode
	result.Data[DataKeySensitivity] = string(l.cfg.Sensitivity)
	result.Data[DataKeyThreatProbability] = score
	result.Data[DataKeyBenignProbability] = 1 - score
	result.Data[DataKeyModelAvailable] = l.model != nil
	result.Data[DataKeyDisabledFeatures] = len(l.cfg.DisabledFeatures)
	if l.cfg.IncludeFeatureImportance && len(contributions) > 0 {
		if len(contributions) > topFeatureCount {
			contributions = contributions[:topFeatureCount]
		}
		result.Data[DataKeyTopFeatures] = contributions
	}
	return result
}
