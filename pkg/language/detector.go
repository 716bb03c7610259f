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

// Package language provides language detection and the language filter layer
// that gates the detection pipeline on the prompt's language.
package language

import (
	"context"
	"strings"
	"unicode"

	"github.com/teradata-labs/promptshield/pkg/types"
)

// minLettersForReliable is the minimum number of letters before the reference
// detector will call any result reliable.
const minLettersForReliable = 10

// reliableConfidence is the confidence floor for a reliable verdict.
const reliableConfidence = 0.6

// scriptEntry maps a Unicode script to its ISO-15924 code and, for scripts
// used by a single supported language, the ISO-639-1 code.
type scriptEntry struct {
	table  *unicode.RangeTable
	script string
	lang   string
}

var scriptEntries = []scriptEntry{
	{unicode.Latin, "Latn", ""}, // resolved via stop words
	{unicode.Cyrillic, "Cyrl", "ru"},
	{unicode.Greek, "Grek", "el"},
	{unicode.Arabic, "Arab", "ar"},
	{unicode.Hebrew, "Hebr", "he"},
	{unicode.Han, "Hani", "zh"}, // ja when kana present
	{unicode.Hiragana, "Hira", "ja"},
	{unicode.Katakana, "Kana", "ja"},
	{unicode.Hangul, "Hang", "ko"},
	{unicode.Devanagari, "Deva", "hi"},
	{unicode.Thai, "Thai", "th"},
}

// stopWords drives Latin-script language resolution. A reference detector
// needs no more than the highest-frequency function words per language.
var stopWords = []struct {
	lang  string
	words map[string]bool
}{
	{"en", wordSet("the", "be", "to", "of", "and", "a", "in", "that", "have",
		"it", "is", "for", "not", "on", "with", "he", "as", "you", "do", "at",
		"this", "but", "his", "by", "from", "what", "we", "can", "are", "was",
		"my", "your", "all", "will", "how", "me", "an", "or", "if", "so")},
	{"es", wordSet("el", "la", "de", "que", "y", "en", "un", "una", "los",
		"las", "por", "con", "para", "es", "no", "se", "su", "al", "lo", "como")},
	{"fr", wordSet("le", "la", "les", "de", "des", "un", "une", "et", "en",
		"que", "qui", "dans", "pour", "pas", "est", "sur", "avec", "ce", "il", "au")},
	{"de", wordSet("der", "die", "das", "und", "den", "von", "zu", "mit",
		"sich", "des", "auf", "ist", "im", "dem", "nicht", "ein", "eine", "als",
		"auch", "werden")},
	{"pt", wordSet("o", "os", "as", "de", "do", "da", "em", "um", "uma",
		"para", "com", "que", "por", "no", "na", "se", "dos", "mais", "como", "ao")},
	{"it", wordSet("il", "lo", "gli", "le", "di", "che", "e", "in", "un",
		"una", "per", "con", "non", "sono", "da", "al", "del", "si", "come", "anche")},
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Detector is the reference LanguageDetector. It combines a Unicode-script
// histogram with stop-word frequencies for Latin-script text. It is
// deliberately conservative: hosts with stronger requirements plug in their
// own detector through the LanguageDetector interface.
type Detector struct{}

// NewDetector creates the reference detector. Stateless and safe for
// concurrent use.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect reports the dominant language and script of text. Text with no
// letters yields the undetermined sentinels with zero confidence.
func (d *Detector) Detect(ctx context.Context, text string) (types.LanguageDetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return types.LanguageDetectionResult{}, err
	}

	counts := make([]int, len(scriptEntries))
	totalLetters := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		totalLetters++
		for i, entry := range scriptEntries {
			if unicode.Is(entry.table, r) {
				counts[i]++
				break
			}
		}
	}

	if totalLetters == 0 {
		return types.LanguageDetectionResult{
			Language: types.UndeterminedLanguage,
			Script:   types.UnknownScript,
		}, nil
	}

	dominant := 0
	for i := range counts {
		if counts[i] > counts[dominant] {
			dominant = i
		}
	}
	entry := scriptEntries[dominant]
	share := float64(counts[dominant]) / float64(totalLetters)

	result := types.LanguageDetectionResult{
		Language:   entry.lang,
		Script:     entry.script,
		Confidence: share,
	}

	switch entry.script {
	case "Latn":
		lang, conf := resolveLatin(text)
		result.Language = lang
		result.Confidence = share * conf
	case "Hani":
		// Any kana alongside Han characters means Japanese.
		if kanaCount(counts) > 0 {
			result.Language = "ja"
		}
	}

	if result.Language == "" {
		result.Language = types.UndeterminedLanguage
	}
	result.Reliable = totalLetters >= minLettersForReliable &&
		result.Confidence >= reliableConfidence &&
		result.Language != types.UndeterminedLanguage
	return result, nil
}

func kanaCount(counts []int) int {
	n := 0
	for i, entry := range scriptEntries {
		if entry.script == "Hira" || entry.script == "Kana" {
			n += counts[i]
		}
	}
	return n
}

// resolveLatin picks the Latin-script language whose stop words dominate the
// text. Roughly a third of running text in these languages is stop words, so
// the observed ratio is scaled against 0.3 to produce a confidence.
func resolveLatin(text string) (string, float64) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 {
		return types.UndeterminedLanguage, 0
	}

	bestLang := types.UndeterminedLanguage
	bestHits := 0
	for _, sw := range stopWords {
		hits := 0
		for _, w := range words {
			if sw.words[w] {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			bestLang = sw.lang
		}
	}
	if bestHits == 0 {
		return types.UndeterminedLanguage, 0.2
	}

	ratio := float64(bestHits) / float64(len(words))
	conf := ratio / 0.3
	if conf > 1 {
		conf = 1
	}
	return bestLang, conf
}

var _ types.LanguageDetector = (*Detector)(nil)
