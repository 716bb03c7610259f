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
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptshield/pkg/observability"
	"github.com/teradata-labs/promptshield/pkg/types"
)

// Data keys emitted by the pattern layer.
const (
	DataKeyMatchedPatterns = "matched_patterns"
	DataKeyOWASPCategory   = "owasp_category"
	DataKeyPatternCount    = "pattern_count_matched"
	DataKeyPatternTimeouts = "pattern_timeouts"
)

// SignalPatternTimeout names the heuristic signal raised when a pattern
// evaluation hit the ReDoS timeout.
const SignalPatternTimeout = "pattern_timeout"

// Config controls the pattern-matching layer.
type Config struct {
	// Enabled turns the layer on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TimeoutMs is the per-pattern regex evaluation timeout.
	TimeoutMs int `json:"timeout_ms" yaml:"timeout_ms"`

	// EarlyExitThreshold terminates the pipeline when a threat verdict
	// reaches it.
	EarlyExitThreshold float64 `json:"early_exit_threshold" yaml:"early_exit_threshold"`

	// IncludeBuiltInPatterns adds the shipped catalog ahead of custom
	// providers.
	IncludeBuiltInPatterns bool `json:"include_built_in_patterns" yaml:"include_built_in_patterns"`

	// TimeoutContribution is added to the layer confidence when any pattern
	// evaluation timed out.
	TimeoutContribution float64 `json:"timeout_contribution" yaml:"timeout_contribution"`

	// DisabledPatternIDs are dropped at registry build time.
	DisabledPatternIDs []string `json:"disabled_pattern_ids" yaml:"disabled_pattern_ids"`

	// AllowedPatterns short-circuit the layer to a safe result when one
	// matches the prompt.
	AllowedPatterns []string `json:"allowed_patterns" yaml:"allowed_patterns"`

	// Sensitivity shifts the layer's threat decision threshold. Match
	// confidences are never scaled, so severity-based early exits survive a
	// Low setting.
	Sensitivity types.Sensitivity `json:"sensitivity" yaml:"sensitivity"`
}

// DefaultConfig returns the documented pattern-layer defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		TimeoutMs:              100,
		EarlyExitThreshold:     0.9,
		IncludeBuiltInPatterns: true,
		TimeoutContribution:    0.3,
		Sensitivity:            types.SensitivityMedium,
	}
}

// Layer evaluates the compiled registry against prompts (L1).
type Layer struct {
	cfg       Config
	registry  *Registry
	allowlist []*regexp2.Regexp
	logger    *zap.Logger
	tracer    observability.Tracer
}

// NewLayer creates the pattern layer. Allowlist regexes compile with the same
// timeout discipline as detection patterns; a compile failure fails
// construction.
func NewLayer(cfg Config, registry *Registry, logger *zap.Logger, tracer observability.Tracer) (*Layer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}

	allowlist := make([]*regexp2.Regexp, 0, len(cfg.AllowedPatterns))
	for _, src := range cfg.AllowedPatterns {
		re, err := regexp2.Compile(src, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("%w: allowed pattern %q: %v", ErrPatternProviderInit, src, err)
		}
		re.MatchTimeout = timeout
		allowlist = append(allowlist, re)
	}

	return &Layer{
		cfg:       cfg,
		registry:  registry,
		allowlist: allowlist,
		logger:    logger,
		tracer:    tracer,
	}, nil
}

// Evaluate runs every compiled pattern against the prompt in registry order.
// The layer confidence is the maximum matched severity confidence, plus the
// timeout contribution when any evaluation hit the ReDoS guard, clamped.
// Sensitivity moves the threat threshold, not the confidence.
func (l *Layer) Evaluate(ctx context.Context, prompt string) *types.LayerResult {
	start := time.Now()
	result := &types.LayerResult{
		Layer:    types.LayerPatternMatching,
		Executed: true,
		Data:     map[string]interface{}{types.DataKeyStatus: types.StatusSuccess},
	}
	defer func() { result.Duration = time.Since(start) }()

	for _, re := range l.allowlist {
		ok, err := re.MatchString(prompt)
		if err != nil {
			l.logger.Debug("allowlist evaluation timed out", zap.Error(err))
			continue
		}
		if ok {
			result.Data[types.DataKeyStatus] = types.StatusAllowlisted
			return result
		}
	}

	var (
		matched   []string
		bestConf  float64
		bestOWASP string
		timeouts  int
	)
	for _, cp := range l.registry.Snapshot() {
		if ctx.Err() != nil {
			break
		}

		ok, err := cp.Regex.MatchString(prompt)
		if err != nil {
			// regexp2 returns an error only on MatchTimeout expiry.
			timeouts++
			l.tracer.RecordMetric(observability.MetricPatternTimeouts, 1,
				map[string]string{"pattern": cp.Pattern.ID})
			l.logger.Warn("pattern evaluation timed out, skipping pattern",
				zap.String("pattern", cp.Pattern.ID))
			continue
		}
		if !ok {
			continue
		}

		matched = append(matched, cp.Pattern.Name)
		conf := cp.Pattern.Severity.ToConfidence()
		if conf > bestConf {
			bestConf = conf
			bestOWASP = cp.Pattern.OWASPCategory
		}
	}

	confidence := bestConf
	if timeouts > 0 {
		confidence += l.cfg.TimeoutContribution
		result.Data[DataKeyPatternTimeouts] = timeouts
	}
	confidence = types.Clamp01(confidence)

	threshold := types.Clamp01(0.5 * l.cfg.Sensitivity.ThresholdScale())
	result.Confidence = confidence
	result.IsThreat = confidence >= threshold
	result.Data[DataKeyPatternCount] = len(matched)
	if len(matched) > 0 {
		result.Data[DataKeyMatchedPatterns] = matched
		result.Data[DataKeyOWASPCategory] = bestOWASP
	}
	return result
}
