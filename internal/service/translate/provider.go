package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LanguageAuto asks the provider to detect the source language itself.
const LanguageAuto = "auto"

var ErrNoTranslation = errors.New("no translation available")

// Provider turns text in one language into another. Implementations must be
// safe for concurrent use.
type Provider interface {
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
}

// Dictionary is a phrase-table provider used when no LLM credentials are
// configured. It only knows a handful of common phrases.
type Dictionary struct {
	phrases map[string]map[string]string
}

// NewDictionary seeds the built-in phrase tables.
func NewDictionary() *Dictionary {
	return &Dictionary{
		phrases: map[string]map[string]string{
			"zh": {
				"hello":        "你好",
				"hi":           "你好",
				"good morning": "早上好",
				"thank you":    "谢谢",
				"thanks":       "谢谢",
				"goodbye":      "再见",
				"bye":          "再见",
				"how are you":  "你好吗",
				"welcome":      "欢迎",
				"yes":          "是",
				"no":           "不是",
			},
			"en": {
				"你好":  "hello",
				"早上好": "good morning",
				"谢谢":  "thank you",
				"再见":  "goodbye",
				"你好吗": "how are you",
				"欢迎":  "welcome",
			},
			"ja": {
				"hello":     "こんにちは",
				"thank you": "ありがとう",
				"goodbye":   "さようなら",
			},
			"fr": {
				"hello":     "bonjour",
				"thank you": "merci",
				"goodbye":   "au revoir",
			},
		},
	}
}

// Translate looks the phrase up in the target language table. The source
// language is ignored; the tables are keyed by normalized input.
func (d *Dictionary) Translate(_ context.Context, text, _, targetLanguage string) (string, error) {
	table, ok := d.phrases[normalizeLanguage(targetLanguage)]
	if !ok {
		return "", fmt.Errorf("%w: unsupported target language %q", ErrNoTranslation, targetLanguage)
	}

	key := strings.ToLower(strings.TrimSpace(text))
	key = strings.TrimRight(key, ".!?。！？")
	if translated, ok := table[key]; ok {
		return translated, nil
	}
	return "", fmt.Errorf("%w for %q", ErrNoTranslation, text)
}

// normalizeLanguage 将 zh-CN / en-US 这类标签折叠为主语言代码
func normalizeLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if idx := strings.IndexAny(tag, "-_"); idx > 0 {
		tag = tag[:idx]
	}
	return tag
}
