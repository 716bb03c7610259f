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
package language

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/promptshield/pkg/types"
)

// ThreatTypeUnsupportedLanguage labels block verdicts from this layer.
const ThreatTypeUnsupportedLanguage = "Unsupported Language"

// Data keys emitted by the filter layer.
const (
	DataKeyLanguage           = "language"
	DataKeyScript             = "script"
	DataKeyLanguageConfidence = "language_confidence"
	DataKeyReliable           = "reliable"
	DataKeyAction             = "action"
	DataKeyReason             = "reason"
	DataKeySupportedLanguages = "supported_languages"

	ReasonShortText     = "short_text"
	ReasonLowConfidence = "low_confidence"
	ReasonDetectorError = "detector_error"
	ReasonUnsupported   = "unsupported_language"
	ReasonSupported     = "supported"
)

// Config controls the language filter gate.
type Config struct {
	// Enabled turns the gate on. The gate additionally requires a detector.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// SupportedLanguages lists the ISO-639-1 codes that proceed.
	SupportedLanguages []string `json:"supported_languages" yaml:"supported_languages"`

	// MinDetectionConfidence is the confidence below which the detection is
	// treated as unreliable.
	MinDetectionConfidence float64 `json:"min_detection_confidence" yaml:"min_detection_confidence"`

	// MinTextLengthForDetection is the rune count below which detection is
	// skipped and OnShortText applies.
	MinTextLengthForDetection int `json:"min_text_length_for_detection" yaml:"min_text_length_for_detection"`

	// OnShortText, OnLowConfidenceDetection and OnUnsupportedLanguage are the
	// gate actions for the three non-supported outcomes.
	OnShortText              types.FilterAction `json:"on_short_text" yaml:"on_short_text"`
	OnLowConfidenceDetection types.FilterAction `json:"on_low_confidence_detection" yaml:"on_low_confidence_detection"`
	OnUnsupportedLanguage    types.FilterAction `json:"on_unsupported_language" yaml:"on_unsupported_language"`

	// IncludeLanguageInResults attaches the detection outcome to the layer
	// result data.
	IncludeLanguageInResults bool `json:"include_language_in_results" yaml:"include_language_in_results"`
}

// DefaultConfig returns the documented defaults: English only, block on
// unsupported or unreliable detection, allow short prompts through.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		SupportedLanguages:        []string{"en"},
		MinDetectionConfidence:    0.7,
		MinTextLengthForDetection: 20,
		OnShortText:               types.ActionAllow,
		OnLowConfidenceDetection:  types.ActionBlock,
		OnUnsupportedLanguage:     types.ActionBlock,
		IncludeLanguageInResults:  true,
	}
}

// Filter is the language gate in front of the detection layers. A block
// verdict terminates the pipeline with an Unsupported Language threat.
type Filter struct {
	cfg      Config
	detector types.LanguageDetector
	logger   *zap.Logger
}

// NewFilter creates the gate. A nil logger defaults to a no-op.
func NewFilter(cfg Config, detector types.LanguageDetector, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{cfg: cfg, detector: detector, logger: logger}
}

// Evaluate consults the detector and applies the gate decision table. The
// returned action is Block when the pipeline must terminate; the layer result
// records the decision either way.
func (f *Filter) Evaluate(ctx context.Context, prompt string) (*types.LayerResult, types.FilterAction) {
	start := time.Now()
	result := &types.LayerResult{
		Layer:    types.LayerLanguageFilter,
		Executed: true,
		Data:     map[string]interface{}{types.DataKeyStatus: types.StatusSuccess},
	}

	if len([]rune(prompt)) < f.cfg.MinTextLengthForDetection {
		action := f.apply(result, f.cfg.OnShortText, ReasonShortText,
			fmt.Sprintf("prompt shorter than %d characters, language detection skipped", f.cfg.MinTextLengthForDetection))
		result.Duration = time.Since(start)
		return result, action
	}

	det, err := f.detector.Detect(ctx, prompt)
	if err != nil {
		f.logger.Warn("language detection failed", zap.Error(err))
		result.Data[types.DataKeyError] = err.Error()
		action := f.apply(result, f.cfg.OnLowConfidenceDetection, ReasonDetectorError,
			"language detection failed")
		result.Duration = time.Since(start)
		return result, action
	}

	if f.cfg.IncludeLanguageInResults {
		result.Data[DataKeyLanguage] = det.Language
		result.Data[DataKeyScript] = det.Script
		result.Data[DataKeyLanguageConfidence] = det.Confidence
		result.Data[DataKeyReliable] = det.Reliable
	}

	var action types.FilterAction
	switch {
	case !det.Reliable || det.Confidence < f.cfg.MinDetectionConfidence:
		action = f.apply(result, f.cfg.OnLowConfidenceDetection, ReasonLowConfidence,
			fmt.Sprintf("language detection unreliable (language=%s confidence=%.2f)", det.Language, det.Confidence))
	case f.supported(det.Language):
		action = f.apply(result, types.ActionAllow, ReasonSupported, "")
	default:
		action = f.apply(result, f.cfg.OnUnsupportedLanguage, ReasonUnsupported,
			fmt.Sprintf("detected language %q is not supported", det.Language))
	}

	result.Duration = time.Since(start)
	return result, action
}

// apply records the action on the result and returns it. Block verdicts carry
// a Medium-severity confidence so downstream reporting stays consistent.
func (f *Filter) apply(result *types.LayerResult, action types.FilterAction, reason, detail string) types.FilterAction {
	result.Data[DataKeyAction] = string(action)
	result.Data[DataKeyReason] = reason

	switch action {
	case types.ActionBlock:
		result.IsThreat = true
		result.Confidence = types.SeverityMedium.ToConfidence()
		result.Data[DataKeySupportedLanguages] = f.cfg.SupportedLanguages
	case types.ActionAllowWithWarning:
		if detail != "" {
			result.Data[types.DataKeyWarnings] = []string{detail}
		}
	}
	return action
}

func (f *Filter) supported(lang string) bool {
	for _, s := range f.cfg.SupportedLanguages {
		if strings.EqualFold(s, lang) {
			return true
		}
	}
	return false
}

// BlockThreat builds the threat reported when the gate blocks a prompt.
func (f *Filter) BlockThreat() *types.ThreatInfo {
	return &types.ThreatInfo{
		OWASPCategory: types.DefaultOWASPCategory,
		ThreatType:    ThreatTypeUnsupportedLanguage,
		Explanation:   "the prompt's language is outside the configured supported set",
		UserMessage: fmt.Sprintf("This service accepts prompts in the following languages: %s.",
			strings.Join(f.cfg.SupportedLanguages, ", ")),
		Severity:         types.SeverityMedium,
		DetectionSources: []types.LayerName{types.LayerLanguageFilter},
	}
}
