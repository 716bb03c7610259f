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
package semantic

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

// Data keys emitted by the semantic layer.
const (
	DataKeyThreshold   = "threshold"
	DataKeyThreatType  = "threat_type"
	DataKeyIndicators  = "indicators"
	DataKeyExplanation = "explanation"
	DataKeyTruncated   = "input_truncated"
)

// Config controls the semantic analysis layer. Disabled by default; it
// requires endpoint credentials to be useful.
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Endpoint is the chat completion base URL. A non-empty DeploymentName
	// switches to Azure OpenAI routing and api-key authentication.
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	DeploymentName string `json:"deployment_name,omitempty" yaml:"deployment_name,omitempty"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	APIVersion     string `json:"api_version" yaml:"api_version"`
	ModelName      string `json:"model_name,omitempty" yaml:"model_name,omitempty"`

	// Threshold is the threat decision line, adjusted by Sensitivity.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// MaxInputLength truncates the prompt sent to the endpoint.
	MaxInputLength int `json:"max_input_length" yaml:"max_input_length"`

	TimeoutSeconds   int `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries       int `json:"max_retries" yaml:"max_retries"`
	RetryBaseDelayMs int `json:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`

	// MaxConcurrentRequests caps parallel calls; the token bucket caps rate.
	MaxConcurrentRequests  int64 `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	RateLimitTokens        int   `json:"rate_limit_tokens" yaml:"rate_limit_tokens"`
	RateLimitPeriodSeconds int   `json:"rate_limit_period_seconds" yaml:"rate_limit_period_seconds"`
	MaxQueuedRequests      int   `json:"max_queued_requests" yaml:"max_queued_requests"`

	// CustomSystemPrompt replaces the shipped classifier prompt;
	// AdditionalContext is appended to whichever is active.
	CustomSystemPrompt string `json:"custom_system_prompt,omitempty" yaml:"custom_system_prompt,omitempty"`
	AdditionalContext  string `json:"additional_context,omitempty" yaml:"additional_context,omitempty"`

	AllowedPatterns []string          `json:"allowed_patterns" yaml:"allowed_patterns"`
	Sensitivity     types.Sensitivity `json:"sensitivity" yaml:"sensitivity"`
}

// DefaultConfig returns the documented semantic defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                false,
		APIVersion:             "2024-08-01-preview",
		Threshold:              0.7,
		MaxInputLength:         8000,
		TimeoutSeconds:         30,
		MaxRetries:             2,
		RetryBaseDelayMs:       500,
		MaxConcurrentRequests:  5,
		RateLimitTokens:        10,
		RateLimitPeriodSeconds: 1,
		MaxQueuedRequests:      5,
		Sensitivity:            types.SensitivityMedium,
	}
}

// Layer is the semantic analysis layer (L4). It defers the hard cases to an
// external LLM classifier behind a token bucket and a concurrency cap.
type Layer struct {
	cfg        Config
	classifier Classifier
	limiter    *RateLimiter
	sem        *semaphore.Weighted
	allowlist  []*regexp2.Regexp
	logger     *zap.Logger
	tracer     observability.Tracer
}

// NewLayer creates the semantic layer. classifier may be nil, in which case
// a Client is built from the config.
func NewLayer(cfg Config, classifier Classifier, logger *zap.Logger, tracer observability.Tracer) (*Layer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = DefaultConfig().MaxConcurrentRequests
	}

	if classifier == nil {
		client, err := NewClient(ClientConfig{
			Endpoint:           cfg.Endpoint,
			DeploymentName:     cfg.DeploymentName,
			APIVersion:         cfg.APIVersion,
			APIKey:             cfg.APIKey,
			ModelName:          cfg.ModelName,
			CustomSystemPrompt: cfg.CustomSystemPrompt,
			AdditionalContext:  cfg.AdditionalContext,
			TimeoutSeconds:     cfg.TimeoutSeconds,
			MaxRetries:         cfg.MaxRetries,
			RetryBaseDelayMs:   cfg.RetryBaseDelayMs,
		}, logger, tracer)
		if err != nil {
			return nil, fmt.Errorf("create semantic client: %w", err)
		}
		classifier = client
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

	period := time.Duration(cfg.RateLimitPeriodSeconds) * time.Second
	return &Layer{
		cfg:        cfg,
		classifier: classifier,
		limiter:    NewRateLimiter(cfg.RateLimitTokens, period, cfg.MaxQueuedRequests),
		sem:        semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		allowlist:  allowlist,
		logger:     logger,
		tracer:     tracer,
	}, nil
}

// Close releases the rate limiter queue.
func (l *Layer) Close() error {
	return l.limiter.Close()
}

// effectiveThreshold applies the sensitivity dial. Lower sensitivity raises
// the line, paranoid lowers it.
func (l *Layer) effectiveThreshold() float64 {
	return types.Clamp01(l.cfg.Threshold * l.cfg.Sensitivity.ThresholdScale())
}

// Evaluate classifies the prompt via the external endpoint. All failures are
// encoded into the result; only cancellation surfaces through data.error.
func (l *Layer) Evaluate(ctx context.Context, prompt string) *types.LayerResult {
	start := time.Now()
	result := &types.LayerResult{
		Layer:    types.LayerSemanticAnalysis,
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

	if runes := []rune(prompt); l.cfg.MaxInputLength > 0 && len(runes) > l.cfg.MaxInputLength {
		prompt = string(runes[:l.cfg.MaxInputLength])
		result.Data[DataKeyTruncated] = true
	}

	if err := l.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ErrRateLimited) {
			l.tracer.RecordMetric(observability.MetricSemanticRateLimits, 1, nil)
			l.logger.Warn("semantic analysis rate limited",
				zap.Int64("queue_depth", l.limiter.QueueDepth()))
			result.Data[types.DataKeyStatus] = types.StatusRateLimited
			return result
		}
		result.Data[types.DataKeyError] = err.Error()
		return result
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		result.Data[types.DataKeyError] = err.Error()
		return result
	}
	defer l.sem.Release(1)

	timeout := time.Duration(l.cfg.TimeoutSeconds) * time.Second
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	verdict, err := l.classifier.Classify(cctx, prompt)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		result.Data[types.DataKeyStatus] = types.StatusTimeout
		l.logger.Warn("semantic analysis timed out", zap.Duration("timeout", timeout))
		return result
	default:
		result.Data[types.DataKeyError] = err.Error()
		l.logger.Warn("semantic analysis failed", zap.Error(err))
		return result
	}

	threshold := l.effectiveThreshold()
	result.Confidence = verdict.Confidence
	result.IsThreat = verdict.IsThreat && verdict.Confidence >= threshold
	result.Data[DataKeyThreshold] = threshold
	if verdict.ThreatType != "" {
		result.Data[DataKeyThreatType] = verdict.ThreatType
	}
	if len(verdict.Indicators) > 0 {
		result.Data[DataKeyIndicators] = verdict.Indicators
	}
	if verdict.Explanation != "" {
		result.Data[DataKeyExplanation] = verdict.Explanation
	}
	return result
}
