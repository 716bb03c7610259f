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
package ml

import (
	"hash/fnv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// tokenizerEncoding is the BPE encoding used for neural model input.
const tokenizerEncoding = "cl100k_base"

// Tokenizer converts prompts into token ids for the neural scorer, truncating
// to the configured sequence length. When the BPE encoding cannot be loaded
// it degrades to hashed whitespace tokens so the model path stays usable.
type Tokenizer struct {
	enc    *tiktoken.Tiktoken
	maxLen int
}

// NewTokenizer creates a tokenizer bounded to maxSequenceLength tokens.
func NewTokenizer(maxSequenceLength int, logger *zap.Logger) *Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}

	enc, err := tiktoken.GetEncoding(tokenizerEncoding)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, falling back to whitespace tokens",
			zap.String("encoding", tokenizerEncoding),
			zap.Error(err))
		enc = nil
	}
	return &Tokenizer{enc: enc, maxLen: maxSequenceLength}
}

// Tokenize encodes and truncates the prompt.
func (t *Tokenizer) Tokenize(prompt string) []int {
	var ids []int
	if t.enc != nil {
		ids = t.enc.Encode(prompt, nil, nil)
	} else {
		words := strings.Fields(prompt)
		ids = make([]int, 0, len(words))
		for _, w := range words {
			h := fnv.New32a()
			h.Write([]byte(strings.ToLower(w)))
			ids = append(ids, int(h.Sum32()&0x7FFFFFFF))
		}
	}

	if t.maxLen > 0 && len(ids) > t.maxLen {
		ids = ids[:t.maxLen]
	}
	return ids
}
