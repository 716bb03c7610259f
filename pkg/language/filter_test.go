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
	"errors"
	"strings"
	"testing"

	"github.com/teradata-labs/promptshield/pkg/types"
)

type fixedDetector struct {
	result types.LanguageDetectionResult
	err    error
}

func (f fixedDetector) Detect(ctx context.Context, text string) (types.LanguageDetectionResult, error) {
	return f.result, f.err
}

func TestFilterShortTextAllows(t *testing.T) {
	f := NewFilter(DefaultConfig(), fixedDetector{}, nil)

	result, action := f.Evaluate(context.Background(), "short")
	if action != types.ActionAllow {
		t.Errorf("action = %v, want Allow", action)
	}
	if result.IsThreat {
		t.Error("short-text allow should not be a threat")
	}
	if result.Data[DataKeyReason] != ReasonShortText {
		t.Errorf("reason = %v, want %s", result.Data[DataKeyReason], ReasonShortText)
	}
}

func TestFilterSupportedLanguageProceeds(t *testing.T) {
	f := NewFilter(DefaultConfig(), NewDetector(), nil)

	result, action := f.Evaluate(context.Background(),
		"What is the capital of France and what can you tell me about it?")
	if action != types.ActionAllow {
		t.Errorf("action = %v, want Allow", action)
	}
	if result.Data[DataKeyReason] != ReasonSupported {
		t.Errorf("reason = %v, want %s", result.Data[DataKeyReason], ReasonSupported)
	}
	if result.Data[DataKeyLanguage] != "en" {
		t.Errorf("language = %v, want en", result.Data[DataKeyLanguage])
	}
}

func TestFilterUnsupportedLanguageBlocks(t *testing.T) {
	f := NewFilter(DefaultConfig(), NewDetector(), nil)

	// Cyrillic text over the detection length bound.
	result, action := f.Evaluate(context.Background(),
		"Привет, как у тебя дела? Это тестовое сообщение для проверки.")
	if action != types.ActionBlock {
		t.Fatalf("action = %v, want Block", action)
	}
	if !result.IsThreat {
		t.Error("block verdict should be a threat")
	}
	if result.Confidence != types.SeverityMedium.ToConfidence() {
		t.Errorf("confidence = %.2f, want %.2f", result.Confidence, types.SeverityMedium.ToConfidence())
	}
	if result.Data[DataKeyReason] != ReasonUnsupported {
		t.Errorf("reason = %v, want %s", result.Data[DataKeyReason], ReasonUnsupported)
	}
}

func TestFilterLowConfidenceBlocks(t *testing.T) {
	f := NewFilter(DefaultConfig(), fixedDetector{
		result: types.LanguageDetectionResult{Language: "en", Script: "Latn", Confidence: 0.3},
	}, nil)

	result, action := f.Evaluate(context.Background(), strings.Repeat("x", 30))
	if action != types.ActionBlock {
		t.Errorf("action = %v, want Block", action)
	}
	if result.Data[DataKeyReason] != ReasonLowConfidence {
		t.Errorf("reason = %v, want %s", result.Data[DataKeyReason], ReasonLowConfidence)
	}
}

func TestFilterDetectorErrorFollowsLowConfidenceAction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnLowConfidenceDetection = types.ActionAllowWithWarning
	f := NewFilter(cfg, fixedDetector{err: errors.New("backend down")}, nil)

	result, action := f.Evaluate(context.Background(), strings.Repeat("y", 30))
	if action != types.ActionAllowWithWarning {
		t.Errorf("action = %v, want AllowWithWarning", action)
	}
	if result.IsThreat {
		t.Error("allow-with-warning should not be a threat")
	}
	if result.Data[types.DataKeyError] == nil {
		t.Error("detector error should be recorded in data")
	}
	if result.Data[types.DataKeyWarnings] == nil {
		t.Error("warning should be recorded in data")
	}
}

func TestFilterAllowWithWarningOnUnsupported(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnUnsupportedLanguage = types.ActionAllowWithWarning
	f := NewFilter(cfg, fixedDetector{
		result: types.LanguageDetectionResult{Language: "fr", Script: "Latn", Confidence: 0.9, Reliable: true},
	}, nil)

	result, action := f.Evaluate(context.Background(), strings.Repeat("z", 30))
	if action != types.ActionAllowWithWarning {
		t.Errorf("action = %v, want AllowWithWarning", action)
	}
	warnings, ok := result.Data[types.DataKeyWarnings].([]string)
	if !ok || len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Data[types.DataKeyWarnings])
	}
	if !strings.Contains(warnings[0], "fr") {
		t.Errorf("warning should name the language, got %q", warnings[0])
	}
}

func TestFilterSupportedLanguagesCaseInsensitive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SupportedLanguages = []string{"EN", "es"}
	f := NewFilter(cfg, fixedDetector{
		result: types.LanguageDetectionResult{Language: "en", Script: "Latn", Confidence: 0.95, Reliable: true},
	}, nil)

	_, action := f.Evaluate(context.Background(), strings.Repeat("w", 30))
	if action != types.ActionAllow {
		t.Errorf("action = %v, want Allow", action)
	}
}

func TestBlockThreat(t *testing.T) {
	f := NewFilter(DefaultConfig(), NewDetector(), nil)

	threat := f.BlockThreat()
	if threat.ThreatType != ThreatTypeUnsupportedLanguage {
		t.Errorf("threat type = %q, want %q", threat.ThreatType, ThreatTypeUnsupportedLanguage)
	}
	if threat.Severity != types.SeverityMedium {
		t.Errorf("severity = %v, want Medium", threat.Severity)
	}
	if threat.OWASPCategory != types.DefaultOWASPCategory {
		t.Errorf("owasp = %q, want %q", threat.OWASPCategory, types.DefaultOWASPCategory)
	}
	if !strings.Contains(threat.UserMessage, "en") {
		t.Errorf("user message should list supported languages, got %q", threat.UserMessage)
	}
	if len(threat.DetectionSources) == 0 {
		t.Error("detection sources must be non-empty")
	}
}
