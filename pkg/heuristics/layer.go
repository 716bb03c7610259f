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
package heuristics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptshield/pkg/patterns"
	"github.com/teradata-labs/promptshield/pkg/types"
)

// Data keys emitted by the heuristic layer.
const (
	DataKeySignalCount     = "signal_count"
	DataKeyAnalyzerCount   = "analyzer_count"
	DataKeyIsDefinitive    = "is_definitive"
	DataKeyTopSignals      = "top_signals"
	DataKeyEarlyExitReason = "early_exit_reason"
	DataKeyAnalyzerErrors  = "analyzer_errors"

	ReasonDefinitiveThreat = "definitive_threat"
	ReasonDefinitiveSafe   = "definitive_safe"
)

// topSignalCount bounds the signals echoed into result data.
const topSignalCount = 5

// Config controls the heuristic layer.
type Config struct {
	// Enabled turns the layer on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// DefinitiveThreatThreshold and DefinitiveSafeThreshold bound the band
	// outside which the layer result is definitive and the pipeline exits.
	DefinitiveThreatThreshold float64 `json:"definitive_threat_threshold" yaml:"definitive_threat_threshold"`
	DefinitiveSafeThreshold   float64 `json:"definitive_safe_threshold" yaml:"definitive_safe_threshold"`

	// Sensitivity scales analyzer trigger thresholds and contributions.
	Sensitivity types.Sensitivity `json:"sensitivity" yaml:"sensitivity"`

	// DirectiveWordThreshold, PunctuationRatioThreshold and
	// AlphanumericRatioThreshold are handed through to the analyzers.
	DirectiveWordThreshold     int     `json:"directive_word_threshold" yaml:"directive_word_threshold"`
	PunctuationRatioThreshold  float64 `json:"punctuation_ratio_threshold" yaml:"punctuation_ratio_threshold"`
	AlphanumericRatioThreshold float64 `json:"alphanumeric_ratio_threshold" yaml:"alphanumeric_ratio_threshold"`

	// AllowedPatterns short-circuit the layer to a safe result.
	AllowedPatterns []string `json:"allowed_patterns" yaml:"allowed_patterns"`

	// AdditionalBlockedPatterns are deployment-specific regexes that raise a
	// high-contribution signal when matched.
	AdditionalBlockedPatterns []string `json:"additional_blocked_patterns" yaml:"additional_blocked_patterns"`

	// DomainExclusions lists directive words that do not count for this
	// deployment.
	DomainExclusions []string `json:"domain_exclusions" yaml:"domain_exclusions"`

	// UseCompoundPatterns enables the compound-phrase analyzer.
	UseCompoundPatterns bool `json:"use_compound_patterns" yaml:"use_compound_patterns"`
}

// DefaultConfig returns the documented heuristic defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                    true,
		DefinitiveThreatThreshold:  0.85,
		DefinitiveSafeThreshold:    0.15,
		Sensitivity:                types.SensitivityMedium,
		DirectiveWordThreshold:     3,
		PunctuationRatioThreshold:  0.15,
		AlphanumericRatioThreshold: 0.5,
		UseCompoundPatterns:        true,
	}
}

// blockedPatterns raises a strong signal for deployment-specific regexes.
// User-supplied patterns go through regexp2 with the same timeout discipline
// as detection patterns.
type blockedPatterns struct {
	compiled []*regexp2.Regexp
}

func newBlockedPatterns(sources []string) (*blockedPatterns, error) {
	compiled := make([]*regexp2.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp2.Compile(src, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("%w: blocked pattern %q: %v", patterns.ErrPatternProviderInit, src, err)
		}
		re.MatchTimeout = patterns.DefaultMatchTimeout
		compiled = append(compiled, re)
	}
	return &blockedPatterns{compiled: compiled}, nil
}

func (b *blockedPatterns) Name() string    { return SignalBlockedPattern }
func (b *blockedPatterns) Weight() float64 { return 1.0 }

func (b *blockedPatterns) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	hits := 0
	for _, re := range b.compiled {
		ok, err := re.MatchString(hctx.Prompt)
		if err != nil {
			continue
		}
		if ok {
			hits++
		}
	}
	if hits == 0 {
		return types.HeuristicResult{}, nil
	}

	contribution := 0.8 * float64(hits) * hctx.Sensitivity.ContributionScale()
	return signalResult(SignalBlockedPattern, contribution,
		fmt.Sprintf("%d blocked patterns matched", hits)), nil
}

// Layer runs the heuristic analyzers and aggregates their scores (L2).
type Layer struct {
	cfg       Config
	analyzers []types.HeuristicAnalyzer
	allowlist []*regexp2.Regexp
	logger    *zap.Logger
}

// NewLayer creates the heuristic layer with the built-in analyzers followed
// by any custom ones, in registration order.
func NewLayer(cfg Config, custom []types.HeuristicAnalyzer, logger *zap.Logger) (*Layer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	analyzers := []types.HeuristicAnalyzer{
		specialCharRatio{},
		instructionLanguage{},
		roleSwitching{},
		encodingPatterns{},
		delimiterInjection{},
		anomalousStructure{},
		repetitivePatterns{},
		excessiveLength{},
		patternTimeout{},
		unicodeAnomalies{},
	}
	if cfg.UseCompoundPatterns {
		analyzers = append(analyzers, compoundPatterns{})
	}
	if len(cfg.AdditionalBlockedPatterns) > 0 {
		bp, err := newBlockedPatterns(cfg.AdditionalBlockedPatterns)
		if err != nil {
			return nil, err
		}
		analyzers = append(analyzers, bp)
	}
	analyzers = append(analyzers, custom...)

	allowlist := make([]*regexp2.Regexp, 0, len(cfg.AllowedPatterns))
	for _, src := range cfg.AllowedPatterns {
		re, err := regexp2.Compile(src, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("%w: allowed pattern %q: %v", patterns.ErrPatternProviderInit, src, err)
		}
		re.MatchTimeout = patterns.DefaultMatchTimeout
		allowlist = append(allowlist, re)
	}

	return &Layer{cfg: cfg, analyzers: analyzers, allowlist: allowlist, logger: logger}, nil
}

// Evaluate runs every analyzer and aggregates by arithmetic mean. A failed
// analyzer contributes zero and is recorded, never aborts the layer.
func (l *Layer) Evaluate(ctx context.Context, hctx *types.HeuristicContext) *types.LayerResult {
	start := time.Now()
	result := &types.LayerResult{
		Layer:    types.LayerHeuristics,
		Executed: true,
		Data:     map[string]interface{}{types.DataKeyStatus: types.StatusSuccess},
	}
	defer func() { result.Duration = time.Since(start) }()

	for _, re := range l.allowlist {
		ok, err := re.MatchString(hctx.Prompt)
		if err != nil {
			continue
		}
		if ok {
			result.Data[types.DataKeyStatus] = types.StatusAllowlisted
			result.Data[DataKeyAnalyzerCount] = 0
			result.Data[DataKeySignalCount] = 0
			return result
		}
	}

	var (
		sum      float64
		signals  []types.Signal
		errNames []string
	)
	for _, a := range l.analyzers {
		if ctx.Err() != nil {
			break
		}
		res, err := a.Analyze(ctx, hctx)
		if err != nil {
			l.logger.Warn("heuristic analyzer failed",
				zap.String("analyzer", a.Name()),
				zap.Error(err))
			errNames = append(errNames, a.Name())
			continue
		}
		sum += types.Clamp01(res.Score)
		signals = append(signals, res.Signals...)
	}

	confidence := types.Clamp01(sum / float64(len(l.analyzers)))
	result.Confidence = confidence
	result.IsThreat = confidence >= 0.5

	// A definitive-safe verdict must not override a pattern-layer threat:
	// the gate checks L1's verdict before declaring the prompt safe.
	patternThreat := hctx.PatternResult != nil && hctx.PatternResult.IsThreat
	switch {
	case confidence >= l.cfg.DefinitiveThreatThreshold:
		result.Definitive = true
		result.Data[DataKeyEarlyExitReason] = ReasonDefinitiveThreat
	case confidence <= l.cfg.DefinitiveSafeThreshold && !patternThreat:
		result.Definitive = true
		result.Data[DataKeyEarlyExitReason] = ReasonDefinitiveSafe
	}

	result.Data[DataKeyAnalyzerCount] = len(l.analyzers)
	result.Data[DataKeySignalCount] = len(signals)
	result.Data[DataKeyIsDefinitive] = result.Definitive
	if len(errNames) > 0 {
		result.Data[DataKeyAnalyzerErrors] = errNames
	}
	if len(signals) > 0 {
		sort.SliceStable(signals, func(i, j int) bool {
			return signals[i].Contribution > signals[j].Contribution
		})
		if len(signals) > topSignalCount {
			signals = signals[:topSignalCount]
		}
		result.Data[DataKeyTopSignals] = signals
	}
	return result
}
