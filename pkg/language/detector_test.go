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
	"testing"

	"github.com/teradata-labs/promptshield/pkg/types"
)

func TestDetectEnglish(t *testing.T) {
	d := NewDetector()

	result, err := d.Detect(context.Background(), "What is the capital of France and what can you tell me about it?")
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if result.Language != "en" {
		t.Errorf("language = %q, want en", result.Language)
	}
	if result.Script != "Latn" {
		t.Errorf("script = %q, want Latn", result.Script)
	}
	if result.Confidence < 0.7 {
		t.Errorf("confidence = %.2f, want >= 0.7", result.Confidence)
	}
	if !result.Reliable {
		t.Error("English sentence should be a reliable detection")
	}
}

func TestDetectCyrillic(t *testing.T) {
	d := NewDetector()

	result, err := d.Detect(context.Background(), "Привет, как у тебя дела? Это тестовое сообщение.")
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if result.Language != "ru" {
		t.Errorf("language = %q, want ru", result.Language)
	}
	if result.Script != "Cyrl" {
		t.Errorf("script = %q, want Cyrl", result.Script)
	}
	if !result.Reliable {
		t.Error("long Cyrillic text should be a reliable detection")
	}
}

func TestDetectScripts(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		text   string
		lang   string
		script string
	}{
		{"chinese", "这是一个测试消息，请告诉我更多信息。", "zh", "Hani"},
		{"japanese kana", "これはテストメッセージです。もっと教えてください。", "ja", "Hira"},
		{"korean", "이것은 테스트 메시지입니다. 더 알려주세요.", "ko", "Hang"},
		{"arabic", "هذه رسالة اختبار، أخبرني المزيد من فضلك.", "ar", "Arab"},
		{"hebrew", "זוהי הודעת בדיקה, ספר לי עוד בבקשה.", "he", "Hebr"},
		{"greek", "Αυτό είναι ένα δοκιμαστικό μήνυμα, πες μου περισσότερα.", "el", "Grek"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := d.Detect(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Detect returned error: %v", err)
			}
			if result.Language != tt.lang {
				t.Errorf("language = %q, want %q", result.Language, tt.lang)
			}
			if result.Script != tt.script {
				t.Errorf("script = %q, want %q", result.Script, tt.script)
			}
		})
	}
}

func TestDetectNoLetters(t *testing.T) {
	d := NewDetector()

	for _, text := range []string{"", "12345 67890", "!!! ??? ..."} {
		result, err := d.Detect(context.Background(), text)
		if err != nil {
			t.Fatalf("Detect(%q) returned error: %v", text, err)
		}
		if result.Language != types.UndeterminedLanguage {
			t.Errorf("Detect(%q) language = %q, want und", text, result.Language)
		}
		if result.Script != types.UnknownScript {
			t.Errorf("Detect(%q) script = %q, want Zzzz", text, result.Script)
		}
		if result.Reliable {
			t.Errorf("Detect(%q) should not be reliable", text)
		}
	}
}

func TestDetectLatinGibberish(t *testing.T) {
	d := NewDetector()

	result, err := d.Detect(context.Background(), "asdf qwer zxcv tyui")
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if result.Reliable {
		t.Errorf("gibberish without stop words should be unreliable, got %+v", result)
	}
}

func TestDetectCancelledContext(t *testing.T) {
	d := NewDetector()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Detect(ctx, "hello world")
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
