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

// Package heuristics contains the heuristic analyzers and the heuristic
// detection layer. Analyzer names double as signal family names and are part
// of the result contract.
package heuristics

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/teradata-labs/promptshield/pkg/patterns"
	"github.com/teradata-labs/promptshield/pkg/types"
)

// Contractual signal names.
const (
	SignalSpecialCharRatio      = "special_char_ratio"
	SignalInstructionLanguage   = "instruction_language"
	SignalRoleSwitching         = "role_switching"
	SignalEncodingPatterns      = "encoding_patterns"
	SignalDelimiterInjection    = "delimiter_injection"
	SignalAnomalousStructure    = "anomalous_structure"
	SignalRepetitivePatterns    = "repetitive_patterns"
	SignalExcessiveLength       = "excessive_length"
	SignalCompoundPattern       = "compound_pattern"
	SignalBlockedPattern        = "blocked_pattern"
	SignalSuspiciousUnicode     = "suspicious_unicode"
	SignalInvisibleCharacters   = "invisible_characters"
	SignalBidirectionalOverride = "bidirectional_override"
)

// excessiveLengthBound is the prompt length the excessive_length analyzer
// treats as anomalous. Well below the validator's hard bound: a prompt this
// long is accepted but suspicious.
const excessiveLengthBound = 10000

func signalResult(name string, contribution float64, description string) types.HeuristicResult {
	contribution = types.Clamp01(contribution)
	return types.HeuristicResult{
		Score: contribution,
		Signals: []types.Signal{
			{Name: name, Contribution: contribution, Description: description},
		},
	}
}

// specialCharRatio flags prompts whose punctuation share exceeds the
// configured threshold.
type specialCharRatio struct{}

func (specialCharRatio) Name() string    { return SignalSpecialCharRatio }
func (specialCharRatio) Weight() float64 { return 1.0 }

func (specialCharRatio) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	total, special := 0, 0
	for _, r := range hctx.Prompt {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	if total == 0 {
		return types.HeuristicResult{}, nil
	}

	ratio := float64(special) / float64(total)
	threshold := hctx.PunctuationRatioThreshold * hctx.Sensitivity.ThresholdScale()
	if ratio <= threshold {
		return types.HeuristicResult{}, nil
	}

	contribution := (ratio - threshold) / threshold * hctx.Sensitivity.ContributionScale()
	if contribution > 0.8 {
		contribution = 0.8
	}
	return signalResult(SignalSpecialCharRatio, contribution,
		fmt.Sprintf("special character ratio %.2f exceeds threshold %.2f", ratio, threshold)), nil
}

// directiveWords are counted by the instruction_language analyzer.
var directiveWords = []string{
	"ignore", "forget", "disregard", "override", "bypass", "instead",
	"must", "never", "reveal", "pretend", "comply", "obey",
}

// instructionLanguage counts directive keywords; a prompt dense with
// imperatives aimed at the model is a strong injection tell.
type instructionLanguage struct{}

func (instructionLanguage) Name() string    { return SignalInstructionLanguage }
func (instructionLanguage) Weight() float64 { return 1.0 }

func (instructionLanguage) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	excluded := make(map[string]bool, len(hctx.DomainExclusions))
	for _, w := range hctx.DomainExclusions {
		excluded[strings.ToLower(w)] = true
	}

	words := fieldsLower(hctx.Prompt)
	count := 0
	for _, w := range words {
		for _, d := range directiveWords {
			if w == d && !excluded[d] {
				count++
				break
			}
		}
	}

	threshold := float64(hctx.DirectiveWordThreshold) * hctx.Sensitivity.ThresholdScale()
	if float64(count) < threshold || count == 0 {
		return types.HeuristicResult{}, nil
	}

	contribution := float64(count) / (threshold * 2) * hctx.Sensitivity.ContributionScale()
	return signalResult(SignalInstructionLanguage, contribution,
		fmt.Sprintf("%d directive keywords (threshold %.0f)", count, threshold)), nil
}

// roleSwitchPhrases mark persona or identity reassignment.
var roleSwitchPhrases = []string{
	"you are now", "act as", "pretend to be", "pretend you are",
	"from now on", "roleplay as", "imagine you are", "you will now",
}

type roleSwitching struct{}

func (roleSwitching) Name() string    { return SignalRoleSwitching }
func (roleSwitching) Weight() float64 { return 1.0 }

func (roleSwitching) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	lower := strings.ToLower(hctx.Prompt)
	hits := 0
	for _, phrase := range roleSwitchPhrases {
		if strings.Contains(lower, phrase) {
			hits++
		}
	}
	if hits == 0 {
		return types.HeuristicResult{}, nil
	}

	contribution := 0.4 * float64(hits) * hctx.Sensitivity.ContributionScale()
	return signalResult(SignalRoleSwitching, contribution,
		fmt.Sprintf("%d role-switch phrases", hits)), nil
}

// Internal analyzer regexes are stdlib (RE2): linear-time by construction, so
// they need no match timeout.
var (
	base64Run = regexp.MustCompile(`[A-Za-z0-9+/=]{32,}`)
	hexRun    = regexp.MustCompile(`(?i)[0-9a-f]{32,}`)
)

type encodingPatterns struct{}

func (encodingPatterns) Name() string    { return SignalEncodingPatterns }
func (encodingPatterns) Weight() float64 { return 1.0 }

func (encodingPatterns) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	contribution := 0.0
	var kinds []string
	if base64Run.MatchString(hctx.Prompt) {
		contribution += 0.5
		kinds = append(kinds, "base64")
	}
	if hexRun.MatchString(hctx.Prompt) {
		contribution += 0.3
		kinds = append(kinds, "hex")
	}
	if contribution == 0 {
		return types.HeuristicResult{}, nil
	}

	contribution *= hctx.Sensitivity.ContributionScale()
	return signalResult(SignalEncodingPatterns, contribution,
		fmt.Sprintf("encoded runs detected: %s", strings.Join(kinds, ", "))), nil
}

var delimiterMarkers = []*regexp.Regexp{
	regexp.MustCompile(`#{3,}`),
	regexp.MustCompile(`={5,}`),
	regexp.MustCompile(`-{5,}`),
	regexp.MustCompile(`(?i)---\s*begin|end\s*---`),
	regexp.MustCompile(`(?i)<\/?\s*(system|instructions?)\s*>`),
	regexp.MustCompile(`(?i)\[\s*(system|assistant|instructions?)\s*\]`),
}

type delimiterInjection struct{}

func (delimiterInjection) Name() string    { return SignalDelimiterInjection }
func (delimiterInjection) Weight() float64 { return 1.0 }

func (delimiterInjection) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	hits := 0
	for _, re := range delimiterMarkers {
		if re.MatchString(hctx.Prompt) {
			hits++
		}
	}
	if hits == 0 {
		return types.HeuristicResult{}, nil
	}

	contribution := 0.3 * float64(hits) * hctx.Sensitivity.ContributionScale()
	return signalResult(SignalDelimiterInjection, contribution,
		fmt.Sprintf("%d delimiter marker kinds", hits)), nil
}

// anomalousStructure flags prompts that are mostly non-alphanumeric. The
// threshold is a floor, so sensitivity divides instead of multiplying.
type anomalousStructure struct{}

func (anomalousStructure) Name() string    { return SignalAnomalousStructure }
func (anomalousStructure) Weight() float64 { return 1.0 }

func (anomalousStructure) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	total, alnum := 0, 0
	for _, r := range hctx.Prompt {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total < 10 {
		return types.HeuristicResult{}, nil
	}

	ratio := float64(alnum) / float64(total)
	threshold := hctx.AlphanumericRatioThreshold / hctx.Sensitivity.ThresholdScale()
	if ratio >= threshold {
		return types.HeuristicResult{}, nil
	}

	contribution := (threshold - ratio) / threshold * hctx.Sensitivity.ContributionScale()
	return signalResult(SignalAnomalousStructure, contribution,
		fmt.Sprintf("alphanumeric ratio %.2f below threshold %.2f", ratio, threshold)), nil
}

type repetitivePatterns struct{}

func (repetitivePatterns) Name() string    { return SignalRepetitivePatterns }
func (repetitivePatterns) Weight() float64 { return 1.0 }

func (repetitivePatterns) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	words := fieldsLower(hctx.Prompt)
	if len(words) < 10 {
		return types.HeuristicResult{}, nil
	}

	counts := make(map[string]int, len(words))
	max := 0
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		counts[w]++
		if counts[w] > max {
			max = counts[w]
		}
	}

	ratio := float64(max) / float64(len(words))
	if max < 5 || ratio < 0.25 {
		return types.HeuristicResult{}, nil
	}

	contribution := ratio * hctx.Sensitivity.ContributionScale()
	return signalResult(SignalRepetitivePatterns, contribution,
		fmt.Sprintf("a token repeats %d times across %d words", max, len(words))), nil
}

type excessiveLength struct{}

func (excessiveLength) Name() string    { return SignalExcessiveLength }
func (excessiveLength) Weight() float64 { return 1.0 }

func (excessiveLength) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	n := len([]rune(hctx.Prompt))
	if n <= excessiveLengthBound {
		return types.HeuristicResult{}, nil
	}

	contribution := 0.3 * hctx.Sensitivity.ContributionScale()
	return signalResult(SignalExcessiveLength, contribution,
		fmt.Sprintf("prompt length %d exceeds %d", n, excessiveLengthBound)), nil
}

// patternTimeout propagates the ReDoS-guard signal from the pattern layer.
type patternTimeout struct{}

func (patternTimeout) Name() string    { return patterns.SignalPatternTimeout }
func (patternTimeout) Weight() float64 { return 1.0 }

func (patternTimeout) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	if hctx.PatternResult == nil {
		return types.HeuristicResult{}, nil
	}
	timeouts, _ := hctx.PatternResult.Data[patterns.DataKeyPatternTimeouts].(int)
	if timeouts == 0 {
		return types.HeuristicResult{}, nil
	}

	contribution := 0.3 * hctx.Sensitivity.ContributionScale()
	return signalResult(patterns.SignalPatternTimeout, contribution,
		fmt.Sprintf("%d pattern evaluations hit the timeout guard", timeouts)), nil
}

// unicodeAnomalies converts validator warnings into heuristic signals.
type unicodeAnomalies struct{}

func (unicodeAnomalies) Name() string    { return SignalSuspiciousUnicode }
func (unicodeAnomalies) Weight() float64 { return 1.0 }

func (unicodeAnomalies) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	contributions := map[string]float64{
		SignalInvisibleCharacters:   0.4,
		SignalBidirectionalOverride: 0.5,
		SignalSuspiciousUnicode:     0.3,
	}

	var result types.HeuristicResult
	for _, warning := range hctx.ValidationWarnings {
		base, ok := contributions[warning]
		if !ok {
			continue
		}
		c := types.Clamp01(base * hctx.Sensitivity.ContributionScale())
		result.Signals = append(result.Signals, types.Signal{
			Name:         warning,
			Contribution: c,
			Description:  "propagated from request validation",
		})
		result.Score += c
	}
	result.Score = types.Clamp01(result.Score)
	return result, nil
}

// compoundPairs are directive-plus-object combinations that individually look
// harmless but together read as injection.
var compoundPairs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(ignore|disregard|forget).{0,40}(instructions?|rules?|prompts?|context)`),
	regexp.MustCompile(`(?i)(new|real|actual).{0,20}(instructions?|rules?).{0,40}(follow|obey|apply)`),
	regexp.MustCompile(`(?i)(act|pretend|roleplay).{0,40}(ignore|bypass|without).{0,30}(safety|restrictions?|rules?)`),
}

type compoundPatterns struct{}

func (compoundPatterns) Name() string    { return SignalCompoundPattern }
func (compoundPatterns) Weight() float64 { return 1.0 }

func (compoundPatterns) Analyze(ctx context.Context, hctx *types.HeuristicContext) (types.HeuristicResult, error) {
	hits := 0
	for _, re := range compoundPairs {
		if re.MatchString(hctx.Prompt) {
			hits++
		}
	}
	if hits == 0 {
		return types.HeuristicResult{}, nil
	}

	contribution := 0.5 * float64(hits) * hctx.Sensitivity.ContributionScale()
	return signalResult(SignalCompoundPattern, contribution,
		fmt.Sprintf("%d compound injection phrasings", hits)), nil
}

func fieldsLower(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
