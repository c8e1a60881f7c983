package textproc

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage is used whenever a requested language is not supported.
const DefaultLanguage = "en"

// SupportedLanguages lists the language codes the model was trained on.
var SupportedLanguages = []string{"en", "ko", "es", "pt", "fr"}

// IsSupported reports whether lang is one of SupportedLanguages.
func IsSupported(lang string) bool {
	return slices.Contains(SupportedLanguages, lang)
}

// ResolveLanguage maps a locale tag such as "pt-BR" or "en_GB" onto a
// supported base language. The second result is false when the tag could not
// be mapped and DefaultLanguage was returned instead.
func ResolveLanguage(tag string) (string, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return DefaultLanguage, false
	}
	if IsSupported(strings.ToLower(tag)) {
		return strings.ToLower(tag), true
	}
	parsed, err := language.Parse(strings.ReplaceAll(tag, "_", "-"))
	if err != nil {
		return DefaultLanguage, false
	}
	base, conf := parsed.Base()
	if conf == language.No {
		return DefaultLanguage, false
	}
	if code := base.String(); IsSupported(code) {
		return code, true
	}
	return DefaultLanguage, false
}

func resolveOrDefault(lang string) string {
	if IsSupported(lang) {
		return lang
	}
	return DefaultLanguage
}
