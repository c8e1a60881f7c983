package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultChunkBudget bounds chunk length, in runes, for most languages.
	DefaultChunkBudget = 300
	// CompactChunkBudget is used for languages with dense scripts.
	CompactChunkBudget = 120
)

var paragraphPattern = regexp.MustCompile(`\n\s*\n`)

// abbreviations never end a sentence even when followed by whitespace.
var abbreviations = []string{
	"Mr.", "Mrs.", "Ms.", "Dr.", "Prof.", "Sr.", "Jr.", "Ph.D.",
	"etc.", "e.g.", "i.e.", "vs.", "Inc.", "Ltd.", "Co.", "Corp.",
	"St.", "Ave.", "Blvd.",
}

// ChunkBudget returns the rune budget for a chunk in lang.
func ChunkBudget(lang string) int {
	if lang == "ko" {
		return CompactChunkBudget
	}
	return DefaultChunkBudget
}

// Chunk splits text into paragraph- and sentence-respecting pieces of at most
// maxLen runes. A single sentence longer than maxLen becomes its own chunk.
// When nothing can be split out, the whole input is returned as one chunk.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkBudget
	}
	var chunks []string
	for _, paragraph := range paragraphPattern.Split(strings.TrimSpace(text), -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		var current strings.Builder
		currentLen := 0
		for _, sentence := range SplitSentences(paragraph) {
			sentenceLen := utf8.RuneCountInString(sentence)
			if currentLen+sentenceLen+1 <= maxLen {
				if current.Len() > 0 {
					current.WriteByte(' ')
					currentLen++
				}
				current.WriteString(sentence)
				currentLen += sentenceLen
				continue
			}
			if current.Len() > 0 {
				chunks = append(chunks, strings.TrimSpace(current.String()))
			}
			current.Reset()
			current.WriteString(sentence)
			currentLen = sentenceLen
		}
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// SplitSentences breaks a paragraph after '.', '!' or '?' followed by
// whitespace, except after a known abbreviation or a single capital initial.
func SplitSentences(paragraph string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(paragraph); i++ {
		c := paragraph[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		next := i + 1
		if next >= len(paragraph) {
			break
		}
		r, _ := utf8.DecodeRuneInString(paragraph[next:])
		if !unicode.IsSpace(r) {
			continue
		}
		if c == '.' && isAbbreviation(paragraph[:next]) {
			continue
		}
		if s := strings.TrimSpace(paragraph[start:next]); s != "" {
			sentences = append(sentences, s)
		}
		start = next
	}
	if s := strings.TrimSpace(paragraph[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isAbbreviation(prefix string) bool {
	for _, abbr := range abbreviations {
		if strings.HasSuffix(prefix, abbr) {
			return true
		}
	}
	// single capital initial such as "J." in "J. R. R. Tolkien"
	n := len(prefix)
	if n >= 2 && prefix[n-2] >= 'A' && prefix[n-2] <= 'Z' {
		if n == 2 {
			return true
		}
		r, _ := utf8.DecodeLastRuneInString(prefix[:n-2])
		return !isWordRune(r)
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || (r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
