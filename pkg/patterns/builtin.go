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

// Package patterns contains the detection pattern model, pattern providers,
// the compiled registry, and the pattern-matching layer.
package patterns

import (
	"github.com/teradata-labs/promptshield/pkg/types"
)

// BuiltinProviderName identifies the built-in catalog in logs and attribution.
const BuiltinProviderName = "builtin"

// builtinCatalog is the shipped rule set. IDs are stable and referenced by
// DisabledPatternIds; regexes compile case-insensitive with a hard match
// timeout.
var builtinCatalog = []types.DetectionPattern{
	{
		ID:            "jailbreak-ignore-previous",
		Name:          "Ignore Previous Instructions",
		Regex:         `(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|directives?|context)`,
		Description:   "Attempts to void the instructions the model was given",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityCritical,
		Enabled:       true,
	},
	{
		ID:            "jailbreak-dan-mode",
		Name:          "DAN Mode Activation",
		Regex:         `\b(dan\s+mode|do\s+anything\s+now|jailbroken\s+mode|developer\s+mode\s+enabled)\b`,
		Description:   "Invokes a known jailbreak persona",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityCritical,
		Enabled:       true,
	},
	{
		ID:            "jailbreak-forget-everything",
		Name:          "Forget Everything",
		Regex:         `forget\s+(everything|all)\s+(you\s+(know|were\s+told)|above|before|so\s+far)`,
		Description:   "Asks the model to discard its context",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityHigh,
		Enabled:       true,
	},
	{
		ID:            "safety-disregard",
		Name:          "Disregard Safety Guidelines",
		Regex:         `(disregard|ignore|bypass|without)\s+(your\s+|any\s+|the\s+)?(safety|content|ethical|moral)\s+(guidelines|polic(y|ies)|filters?|rules?|restrictions?)`,
		Description:   "Asks the model to drop its safety constraints",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityCritical,
		Enabled:       true,
	},
	{
		ID:            "role-impersonation",
		Name:          "Role Impersonation",
		Regex:         `(you\s+are\s+now|from\s+now\s+on\s+you\s+are|act\s+as|pretend\s+(to\s+be|you\s+are)|roleplay\s+as)\s+(an?\s+)?\w`,
		Description:   "Reassigns the model's role or persona",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityMedium,
		Enabled:       true,
	},
	{
		ID:            "instruction-override",
		Name:          "Instruction Override",
		Regex:         `(new|updated|revised|real|actual)\s+(instructions?|rules?|directives?|task)\s*[:\-]`,
		Description:   "Injects a replacement instruction block",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityHigh,
		Enabled:       true,
	},
	{
		ID:            "system-prompt-extraction",
		Name:          "System Prompt Extraction",
		Regex:         `(show|reveal|print|repeat|display|tell\s+me|output|leak)\s+(me\s+)?(your|the)\s+(system\s+prompt|initial\s+instructions?|original\s+(prompt|instructions?)|hidden\s+(prompt|instructions?))`,
		Description:   "Attempts to exfiltrate the system prompt",
		OWASPCategory: "LLM07",
		Severity:      types.SeverityHigh,
		Enabled:       true,
	},
	{
		ID:            "encoded-base64-payload",
		Name:          "Base64 Encoded Payload",
		Regex:         `[A-Za-z0-9+/]{40,}={0,2}`,
		Description:   "Long base64 run that can smuggle hidden instructions",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityMedium,
		Enabled:       true,
	},
	{
		ID:            "encoded-hex-payload",
		Name:          "Hex Encoded Payload",
		Regex:         `(0x)?[0-9a-f]{32,}`,
		Description:   "Long hexadecimal run that can smuggle hidden instructions",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityMedium,
		Enabled:       true,
	},
	{
		ID:            "delimiter-injection",
		Name:          "Delimiter Injection",
		Regex:         `(#{3,}|={5,}|-{5,}|\[\s*(system|assistant|instructions?)\s*\]|<\/?\s*(system|instructions?)\s*>)`,
		Description:   "Fake message boundaries used to forge a system turn",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityMedium,
		Enabled:       true,
	},
	{
		ID:            "excessive-repetition",
		Name:          "Excessive Repetition",
		Regex:         `(.{3,20})\1{5,}`,
		Description:   "Token-flooding repetition used to exhaust context",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityMedium,
		Enabled:       true,
	},
	{
		ID:            "safety-bypass",
		Name:          "Safety Bypass",
		Regex:         `\b(jailbreak|bypass\s+(the\s+)?(filter|safety|restrictions?|guardrails?)|unfiltered\s+response)\b`,
		Description:   "Explicitly requests an unrestricted response",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityHigh,
		Enabled:       true,
	},
	{
		ID:            "harmful-content-solicitation",
		Name:          "Harmful Content Solicitation",
		Regex:         `(how\s+to\s+(make|build|create|synthesize)\s+(an?\s+)?(bomb|weapon|explosive|nerve\s+agent)|instructions?\s+for\s+(making|building)\s+(an?\s+)?(bomb|weapon|explosive))`,
		Description:   "Solicits content the model must never produce",
		OWASPCategory: types.DefaultOWASPCategory,
		Severity:      types.SeverityCritical,
		Enabled:       true,
	},
}

// BuiltinProvider serves the shipped catalog.
type BuiltinProvider struct{}

// NewBuiltinProvider returns the built-in pattern provider.
func NewBuiltinProvider() *BuiltinProvider {
	return &BuiltinProvider{}
}

// Name implements PatternProvider.
func (p *BuiltinProvider) Name() string { return BuiltinProviderName }

// Patterns returns a copy of the catalog so callers cannot mutate it.
func (p *BuiltinProvider) Patterns() []types.DetectionPattern {
	out := make([]types.DetectionPattern, len(builtinCatalog))
	copy(out, builtinCatalog)
	return out
}

// StaticProvider serves a fixed pattern list under a caller-chosen name.
type StaticProvider struct {
	name     string
	patterns []types.DetectionPattern
}

// NewStaticProvider creates a provider over a fixed pattern set.
func NewStaticProvider(name string, patterns []types.DetectionPattern) *StaticProvider {
	return &StaticProvider{name: name, patterns: patterns}
}

// Name implements PatternProvider.
func (p *StaticProvider) Name() string { return p.name }

// Patterns implements PatternProvider.
func (p *StaticProvider) Patterns() []types.DetectionPattern {
	out := make([]types.DetectionPattern, len(p.patterns))
	copy(out, p.patterns)
	return out
}

var (
	_ types.PatternProvider = (*BuiltinProvider)(nil)
	_ types.PatternProvider = (*StaticProvider)(nil)
)
