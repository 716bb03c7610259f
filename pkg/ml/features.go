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

// Package ml contains the feature-based classifier, the optional neural model
// hook, and the ML classification layer.
package ml

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/klauspost/compress/zstd"

	"github.com/teradata-labs/promptshield/pkg/types"
)

// Feature names. FeatureWeights and DisabledFeatures refer to these.
const (
	FeatureEntropy             = "entropy"
	FeatureCompressionRatio    = "compression_ratio"
	FeatureControlCharRatio    = "control_char_ratio"
	FeatureHighUnicodeRatio    = "high_unicode_ratio"
	FeatureZeroWidth           = "zero_width_indicator"
	FeatureBidi                = "bidi_indicator"
	FeatureInjectionKeywords   = "injection_keyword_count"
	FeatureCommandKeywords     = "command_keyword_count"
	FeatureRoleKeywords        = "role_keyword_count"
	FeatureIgnoreInstructions  = "ignore_instructions_hit"
	FeatureNewInstructions     = "new_instructions_hit"
	FeaturePersonaSwitch       = "persona_switch_hit"
	FeatureSystemPromptRef     = "system_prompt_reference_hit"
	FeatureCodeFence           = "code_fence_indicator"
	FeatureRepeatedDelimiters  = "repeated_delimiter_count"
	FeatureXMLTags             = "xml_tag_count"
	FeatureBase64Blob          = "base64_blob_indicator"
	FeatureTemplatePlaceholder = "template_placeholder_indicator"
	FeatureTokenLengthVariance = "token_length_variance"
)

// defaultFeatureWeights is the shipped weight table. FeatureWeights config
// entries override per feature.
var defaultFeatureWeights = map[string]float64{
	FeatureEntropy:             0.3,
	FeatureCompressionRatio:    0.4,
	FeatureControlCharRatio:    0.8,
	FeatureHighUnicodeRatio:    0.5,
	FeatureZeroWidth:           0.9,
	FeatureBidi:                1.0,
	FeatureInjectionKeywords:   1.2,
	FeatureCommandKeywords:     0.8,
	FeatureRoleKeywords:        0.9,
	FeatureIgnoreInstructions:  1.5,
	FeatureNewInstructions:     1.2,
	FeaturePersonaSwitch:       1.1,
	FeatureSystemPromptRef:     1.3,
	FeatureCodeFence:           0.4,
	FeatureRepeatedDelimiters:  0.8,
	FeatureXMLTags:             0.6,
	FeatureBase64Blob:          0.9,
	FeatureTemplatePlaceholder: 0.5,
	FeatureTokenLengthVariance: 0.4,
}

var (
	injectionKeywords = []string{
		"ignore", "disregard", "bypass", "override", "jailbreak",
		"unrestricted", "unfiltered", "forget",
	}
	commandKeywords = []string{
		"execute", "run", "print", "output", "repeat", "reveal", "show",
		"display", "translate",
	}
	roleKeywords = []string{
		"act", "pretend", "roleplay", "persona", "character", "impersonate",
	}

	ignoreInstructionsRe = regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+.{0,30}(instructions?|prompts?|rules?|context)`)
	newInstructionsRe    = regexp.MustCompile(`(?i)(new|updated|real|actual)\s+.{0,20}(instructions?|rules?|directives?)`)
	personaSwitchRe      = regexp.MustCompile(`(?i)(you\s+are\s+now|act\s+as|pretend\s+to\s+be|from\s+now\s+on)`)
	systemPromptRefRe    = regexp.MustCompile(`(?i)(system\s+prompt|initial\s+instructions?|hidden\s+(prompt|instructions?))`)
	codeFenceRe          = regexp.MustCompile("```")
	repeatedDelimiterRe  = regexp.MustCompile(`(#{3,}|={5,}|-{5,})`)
	xmlTagRe             = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9_-]*>`)
	base64BlobRe         = regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`)
	templateRe           = regexp.MustCompile(`(\{\{.*?\}\}|\$\{.*?\}|<\|.*?\|>)`)
)

// Extractor computes the fixed feature vector for the feature-based scorer.
// Stateless apart from a shared zstd encoder; safe for concurrent use.
type Extractor struct {
	encoder *zstd.Encoder
}

// NewExtractor creates the feature extractor.
func NewExtractor() (*Extractor, error) {
	// Concurrency(1) keeps the encoder goroutine-free; EncodeAll is then
	// safe for concurrent callers.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &Extractor{encoder: enc}, nil
}

// Extract computes all feature values for the prompt. Values are normalised
// into [0,1] so weights stay comparable across features.
func (e *Extractor) Extract(prompt string) map[string]float64 {
	features := make(map[string]float64, len(defaultFeatureWeights))

	features[FeatureEntropy] = normalisedEntropy(prompt)
	features[FeatureCompressionRatio] = e.compressionScore(prompt)

	total, control, high, zeroWidth, bidi := 0, 0, 0, false, false
	for _, r := range prompt {
		total++
		switch {
		case r != '\n' && r != '\t' && unicode.IsControl(r):
			control++
		case r > 0x2FFF:
			high++
		}
		if r >= 0x200B && r <= 0x200D || r == 0xFEFF {
			zeroWidth = true
		}
		if r >= 0x202A && r <= 0x202E || r >= 0x2066 && r <= 0x2069 {
			bidi = true
		}
	}
	if total > 0 {
		features[FeatureControlCharRatio] = math.Min(1, float64(control)/float64(total)*10)
		features[FeatureHighUnicodeRatio] = math.Min(1, float64(high)/float64(total)*5)
	}
	features[FeatureZeroWidth] = boolFeature(zeroWidth)
	features[FeatureBidi] = boolFeature(bidi)

	words := strings.Fields(strings.ToLower(prompt))
	features[FeatureInjectionKeywords] = countFeature(words, injectionKeywords, 5)
	features[FeatureCommandKeywords] = countFeature(words, commandKeywords, 5)
	features[FeatureRoleKeywords] = countFeature(words, roleKeywords, 3)

	features[FeatureIgnoreInstructions] = boolFeature(ignoreInstructionsRe.MatchString(prompt))
	features[FeatureNewInstructions] = boolFeature(newInstructionsRe.MatchString(prompt))
	features[FeaturePersonaSwitch] = boolFeature(personaSwitchRe.MatchString(prompt))
	features[FeatureSystemPromptRef] = boolFeature(systemPromptRefRe.MatchString(prompt))
	features[FeatureCodeFence] = boolFeature(codeFenceRe.MatchString(prompt))
	features[FeatureRepeatedDelimiters] = math.Min(1, float64(len(repeatedDelimiterRe.FindAllString(prompt, 4)))/3)
	features[FeatureXMLTags] = math.Min(1, float64(len(xmlTagRe.FindAllString(prompt, 6)))/5)
	features[FeatureBase64Blob] = boolFeature(base64BlobRe.MatchString(prompt))
	features[FeatureTemplatePlaceholder] = boolFeature(templateRe.MatchString(prompt))
	features[FeatureTokenLengthVariance] = tokenLengthVariance(words)

	return features
}

// compressionScore uses the zstd compression ratio as a diversity proxy:
// highly repetitive prompts compress far below ordinary text.
func (e *Extractor) compressionScore(prompt string) float64 {
	if len(prompt) < 64 {
		return 0
	}
	compressed := e.encoder.EncodeAll([]byte(prompt), nil)
	ratio := float64(len(compressed)) / float64(len(prompt))
	// Ordinary English lands around 0.5; score the shortfall below it.
	if ratio >= 0.5 {
		return 0
	}
	return types.Clamp01((0.5 - ratio) * 2.5)
}

// normalisedEntropy maps Shannon character entropy onto [0,1]. Ordinary text
// sits near 4.2 bits; both very low (repetition) and very high (random blobs)
// entropy are anomalous.
func normalisedEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	// Distance from typical text entropy, scaled.
	return types.Clamp01(math.Abs(entropy-4.2) / 3)
}

func countFeature(words, keywords []string, norm float64) float64 {
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		set[k] = true
	}
	count := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"()")
		if set[w] {
			count++
		}
	}
	return math.Min(1, float64(count)/norm)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// tokenLengthVariance reports structural complexity from whitespace tokens.
// Deterministic and dependency-free; the neural path owns real tokenization.
func tokenLengthVariance(words []string) float64 {
	if len(words) < 2 {
		return 0
	}
	mean := 0.0
	for _, w := range words {
		mean += float64(len(w))
	}
	mean /= float64(len(words))

	variance := 0.0
	for _, w := range words {
		d := float64(len(w)) - mean
		variance += d * d
	}
	variance /= float64(len(words))
	// Ordinary prose variance is below ~10; larger means mixed blobs.
	return types.Clamp01((variance - 10) / 40)
}

// FeatureContribution is one feature's share of the final score.
type FeatureContribution struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Scorer combines feature values into a threat probability.
type Scorer struct {
	weights         map[string]float64
	disabled        map[string]bool
	minContribution float64
}

// NewScorer builds a scorer from the default weight table with per-feature
// overrides, a disabled set, and the noise floor.
func NewScorer(overrides map[string]float64, disabled []string, minContribution float64) *Scorer {
	weights := make(map[string]float64, len(defaultFeatureWeights))
	for name, w := range defaultFeatureWeights {
		weights[name] = w
	}
	for name, w := range overrides {
		weights[name] = w
	}

	disabledSet := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		disabledSet[name] = true
	}

	return &Scorer{
		weights:         weights,
		disabled:        disabledSet,
		minContribution: minContribution,
	}
}

// sigmoid squash calibration: sums near 1.6 map to 0.5, benign sums (< 0.5)
// stay well under the default 0.8 threshold.
const (
	squashSlope  = 1.5
	squashCenter = 1.6
)

// Score returns the squashed probability and the surviving per-feature
// contributions, sorted descending.
func (s *Scorer) Score(features map[string]float64) (float64, []FeatureContribution) {
	sum := 0.0
	var contributions []FeatureContribution
	for name, value := range features {
		if s.disabled[name] || value == 0 {
			continue
		}
		weight := s.weights[name]
		c := value * weight
		if c < s.minContribution {
			continue
		}
		sum += c
		contributions = append(contributions, FeatureContribution{
			Name:         name,
			Value:        value,
			Weight:       weight,
			Contribution: c,
		})
	}

	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].Contribution > contributions[j].Contribution
	})

	score := 1 / (1 + math.Exp(-squashSlope*(sum-squashCenter)))
	return types.Clamp01(score), contributions
}
