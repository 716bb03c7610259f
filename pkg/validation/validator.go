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

// Package validation rejects ill-formed analysis requests and flags
// suspicious Unicode before the detection pipeline runs.
package validation

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/promptshield/pkg/types"
)

// Error codes for rejected requests.
const (
	CodePromptRequired     = "PROMPT_REQUIRED"
	CodePromptTooLong      = "PROMPT_TOO_LONG"
	CodePromptInvalidChars = "PROMPT_INVALID_CHARS"
	CodeRequestNil         = "REQUEST_NIL"
)

// Signal names attached to warnings. The heuristic layer propagates these
// into its scoring.
const (
	SignalSuspiciousUnicode     = "suspicious_unicode"
	SignalInvisibleCharacters   = "invisible_characters"
	SignalBidirectionalOverride = "bidirectional_override"
)

// DefaultMaxPromptLength bounds the prompt and system prompt.
const DefaultMaxPromptLength = 50000

// maxReportedCodePoints caps how many distinct suspicious code points one
// warning names before collapsing the rest into an "N more" suffix.
const maxReportedCodePoints = 5

// Issue is one validation finding, either an error or a warning.
type Issue struct {
	// Code is the stable machine-readable identifier.
	Code string

	// Message is the human-readable detail.
	Message string

	// Signal is the heuristic signal name for warnings, empty for errors.
	Signal string
}

// Result is the outcome of validating a request. Errors reject the request;
// warnings accompany it into the pipeline.
type Result struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

// WarningSignals returns the distinct signal names of all warnings, in order.
func (r Result) WarningSignals() []string {
	seen := make(map[string]bool, len(r.Warnings))
	var signals []string
	for _, w := range r.Warnings {
		if w.Signal == "" || seen[w.Signal] {
			continue
		}
		seen[w.Signal] = true
		signals = append(signals, w.Signal)
	}
	return signals
}

// ErrorMessages joins all error messages for reporting to the caller.
func (r Result) ErrorMessages() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validator checks analysis requests against the configured bounds.
// Stateless and safe for concurrent use.
type Validator struct {
	maxPromptLength int
}

// NewValidator creates a validator. maxPromptLength <= 0 selects the default.
func NewValidator(maxPromptLength int) *Validator {
	if maxPromptLength <= 0 {
		maxPromptLength = DefaultMaxPromptLength
	}
	return &Validator{maxPromptLength: maxPromptLength}
}

// Validate checks the request. A nil request, empty prompt, over-long prompt
// or system prompt, or embedded NUL rejects; suspicious Unicode only warns.
func (v *Validator) Validate(req *types.AnalysisRequest) Result {
	var result Result

	if req == nil {
		result.Errors = append(result.Errors, Issue{
			Code:    CodeRequestNil,
			Message: "analysis request is nil",
		})
		return result
	}

	if strings.TrimSpace(req.Prompt) == "" {
		result.Errors = append(result.Errors, Issue{
			Code:    CodePromptRequired,
			Message: "prompt is required and must be non-empty",
		})
	}

	if len([]rune(req.Prompt)) > v.maxPromptLength {
		result.Errors = append(result.Errors, Issue{
			Code:    CodePromptTooLong,
			Message: fmt.Sprintf("prompt length %d exceeds maximum %d", len([]rune(req.Prompt)), v.maxPromptLength),
		})
	}
	if len([]rune(req.SystemPrompt)) > v.maxPromptLength {
		result.Errors = append(result.Errors, Issue{
			Code:    CodePromptTooLong,
			Message: fmt.Sprintf("system prompt length %d exceeds maximum %d", len([]rune(req.SystemPrompt)), v.maxPromptLength),
		})
	}

	if strings.ContainsRune(req.Prompt, 0) || strings.ContainsRune(req.SystemPrompt, 0) {
		result.Errors = append(result.Errors, Issue{
			Code:    CodePromptInvalidChars,
			Message: "prompt contains NUL characters",
		})
	}

	result.Warnings = append(result.Warnings, scanSuspiciousUnicode(req.Prompt)...)

	result.Valid = len(result.Errors) == 0
	return result
}

// unicodeClass groups suspicious code points by the heuristic signal they map
// to.
type unicodeClass struct {
	signal string
	label  string
}

var (
	classInvisible = unicodeClass{SignalInvisibleCharacters, "invisible characters"}
	classBidi      = unicodeClass{SignalBidirectionalOverride, "bidirectional overrides"}
	classUnusual   = unicodeClass{SignalSuspiciousUnicode, "unusual Unicode"}
)

// classifyRune reports whether r is suspicious and which class it falls in.
func classifyRune(r rune) (unicodeClass, bool) {
	switch {
	case r >= 0x200B && r <= 0x200D, r == 0xFEFF, r == 0x034F:
		// Zero-width space/joiner/non-joiner, BOM, combining grapheme joiner.
		return classInvisible, true
	case r >= 0x202A && r <= 0x202E, r >= 0x2066 && r <= 0x2069:
		// Bidi embedding/override/isolate controls.
		return classBidi, true
	case r == 0x00AD:
		// Soft hyphen.
		return classUnusual, true
	case r >= 0x2000 && r <= 0x200A, r == 0x202F, r == 0x205F, r == 0x3000:
		// Typographic and ideographic spaces.
		return classUnusual, true
	default:
		return unicodeClass{}, false
	}
}

// scanSuspiciousUnicode produces at most one warning per class, naming the
// first distinct code points found and summarizing the remainder.
func scanSuspiciousUnicode(text string) []Issue {
	type classState struct {
		distinct []rune
		seen     map[rune]bool
	}
	states := map[string]*classState{}
	var order []unicodeClass

	for _, r := range text {
		class, ok := classifyRune(r)
		if !ok {
			continue
		}
		st := states[class.signal]
		if st == nil {
			st = &classState{seen: make(map[rune]bool)}
			states[class.signal] = st
			order = append(order, class)
		}
		if !st.seen[r] {
			st.seen[r] = true
			st.distinct = append(st.distinct, r)
		}
	}

	var warnings []Issue
	for _, class := range order {
		st := states[class.signal]
		reported := st.distinct
		more := 0
		if len(reported) > maxReportedCodePoints {
			more = len(reported) - maxReportedCodePoints
			reported = reported[:maxReportedCodePoints]
		}

		parts := make([]string, len(reported))
		for i, r := range reported {
			parts[i] = fmt.Sprintf("U+%04X", r)
		}
		msg := fmt.Sprintf("prompt contains %s: %s", class.label, strings.Join(parts, ", "))
		if more > 0 {
			msg += fmt.Sprintf(" and %d more", more)
		}

		warnings = append(warnings, Issue{
			Code:    "SUSPICIOUS_UNICODE",
			Message: msg,
			Signal:  class.signal,
		})
	}
	return warnings
}
