package llm

import (
	"context"
	"fmt"
	"strings"
)

// Translator converts text between languages identified by ISO 639-1 codes.
type Translator interface {
	Translate(ctx context.Context, text, src, dst string) (string, error)
}

// NeedsTranslation reports whether lang differs from English, the language
// all internal processing happens in. Empty means English.
func NeedsTranslation(lang string) bool {
	return !sameLanguage(lang, "en")
}

func sameLanguage(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return "en"
		}
		// "pt-BR" and "pt_BR" compare as "pt".
		if i := strings.IndexAny(s, "-_"); i > 0 {
			s = s[:i]
		}
		return s
	}
	return norm(a) == norm(b)
}

var languageNames = map[string]string{
	"ar": "Arabic",
	"bn": "Bengali",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"hi": "Hindi",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"ml": "Malayalam",
	"mr": "Marathi",
	"pt": "Portuguese",
	"ru": "Russian",
	"ta": "Tamil",
	"te": "Telugu",
	"tr": "Turkish",
	"ur": "Urdu",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

func languageName(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(c, "-_"); i > 0 {
		c = c[:i]
	}
	if name, ok := languageNames[c]; ok {
		return name
	}
	return code
}

// GeneratorTranslator translates by prompting a Generator.
type GeneratorTranslator struct {
	gen Generator
}

// NewTranslator returns a Translator that prompts gen.
func NewTranslator(gen Generator) *GeneratorTranslator {
	return &GeneratorTranslator{gen: gen}
}

func (t *GeneratorTranslator) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if sameLanguage(src, dst) || strings.TrimSpace(text) == "" {
		return text, nil
	}

	prompt := fmt.Sprintf(
		"Translate the following text from %s to %s. Reply with the translation only, "+
			"without quotes, notes or explanations. Keep numbers, names and formatting unchanged.\n\n%s",
		languageName(src), languageName(dst), text)

	out, err := t.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranslationUnavailable, err)
	}
	return out, nil
}

// Disabled is the Translator used when translation is turned off. It passes
// same-language text through and fails everything else.
type Disabled struct{}

func (Disabled) Translate(_ context.Context, text, src, dst string) (string, error) {
	if sameLanguage(src, dst) {
		return text, nil
	}
	return "", ErrTranslationUnavailable
}
