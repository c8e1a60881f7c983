// Package textproc turns user text into the id sequences the duration
// predictor and text encoder consume: normalization, chunking and encoding.
package textproc

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const maxCleanPasses = 8

var (
	emojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F700}-\x{1F77F}\x{1F780}-\x{1F7FF}\x{1F800}-\x{1F8FF}\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FA6F}\x{1FA70}-\x{1FAFF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\x{1F1E6}-\x{1F1FF}]+`)

	whitespacePattern       = regexp.MustCompile(`\s+`)
	spaceBeforePunctPattern = regexp.MustCompile(` ([,.!?;:])`)

	typographic = strings.NewReplacer(
		"–", "-",
		"‑", "-",
		"—", "-",
		"_", " ",
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
		"´", "'",
		"`", "'",
		"[", " ",
		"]", " ",
		"|", " ",
		"/", " ",
		"#", " ",
		"→", " ",
		"←", " ",
	)

	decorative = strings.NewReplacer(
		"♥", "",
		"☆", "",
		"♡", "",
		"©", "",
		`\`, "",
	)

	expressions = strings.NewReplacer(
		"@", " at ",
		"e.g.,", "for example, ",
		"i.e.,", "that is, ",
	)

	terminators = []string{
		".", "!", "?", ";", ":", ",", "'", `"`,
		"“", "”", "‘", "’",
		")", "]", "}", ">", "…", "。", "」", "』", "】", "〉", "》", "›", "»",
	}
)

// Normalize cleans text for the model and wraps it in language markers, e.g.
// "<en>Hello there.</en>". Unsupported languages fall back to
// DefaultLanguage. The result is stable under repeated application.
func Normalize(text, lang string) string {
	lang = resolveOrDefault(lang)
	text = stripLanguageTags(text)

	for i := 0; i < maxCleanPasses; i++ {
		next := cleanPass(text)
		if next == text {
			break
		}
		text = next
	}

	if !hasTerminator(text) {
		text += "."
	}
	return "<" + lang + ">" + text + "</" + lang + ">"
}

func cleanPass(text string) string {
	text = norm.NFKD.String(text)
	text = emojiPattern.ReplaceAllString(text, "")
	text = typographic.Replace(text)
	text = decorative.Replace(text)
	text = expressions.Replace(text)
	text = collapseRepeats(text, `"`)
	text = collapseRepeats(text, "'")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = spaceBeforePunctPattern.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

func collapseRepeats(text, quote string) string {
	double := quote + quote
	for strings.Contains(text, double) {
		text = strings.ReplaceAll(text, double, quote)
	}
	return text
}

func hasTerminator(text string) bool {
	for _, t := range terminators {
		if strings.HasSuffix(text, t) {
			return true
		}
	}
	return false
}

// stripLanguageTags removes a wrapper produced by an earlier Normalize call.
func stripLanguageTags(text string) string {
	for _, lang := range SupportedLanguages {
		open, closing := "<"+lang+">", "</"+lang+">"
		if len(text) >= len(open)+len(closing) && strings.HasPrefix(text, open) && strings.HasSuffix(text, closing) {
			return text[len(open) : len(text)-len(closing)]
		}
	}
	return text
}
