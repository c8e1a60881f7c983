package textproc

import (
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestNormalizeWrapsAndTerminates(t *testing.T) {
	cases := []struct {
		name string
		in   string
		lang string
		want string
	}{
		{"plain", "Hello world", "en", "<en>Hello world.</en>"},
		{"keeps terminator", "Is it?", "fr", "<fr>Is it?</fr>"},
		{"unsupported language", "Hallo", "de", "<en>Hallo.</en>"},
		{"empty", "", "en", "<en>.</en>"},
		{"dashes and quotes", "“Wait” — she said", "en", `<en>"Wait" - she said.</en>`},
		{"emoji removed", "Great job 😀🎉", "en", "<en>Great job.</en>"},
		{"expressions", "mail me@home, e.g., today", "en", "<en>mail me at home, for example, today.</en>"},
		{"spacing", "Yes , really !", "en", "<en>Yes, really!</en>"},
		{"duplicate quotes", `He said ""hi""`, "en", `<en>He said "hi"</en>`},
		{"symbols", "I ♥ Go © 2025", "es", "<es>I Go 2025.</es>"},
		{"slashes", "and/or [note]", "pt", "<pt>and or note.</pt>"},
		{"korean", "안녕하세요", "ko", "<ko>" + norm.NFKD.String("안녕하세요") + ".</ko>"},
		{"closing bracket terminator", "(aside)", "en", "<en>(aside)</en>"},
		{"cjk terminator", "「引用」", "en", "<en>「引用」</en>"},
		{"angle bracket terminator", "see <b>", "en", "<en>see <b></en>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in, tc.lang); got != tc.want {
				t.Fatalf("Normalize(%q, %q) = %q, want %q", tc.in, tc.lang, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"Hello world",
		"  multiple   spaces\n\nand lines  ",
		"a  , b  .",
		"e.g .,odd",
		`''quoted'' and ""double""`,
		"café naïve ﬁ ①",
		"á😀̖",
		"tabs\tand nbsp",
		"<en>already wrapped.</en>",
		"<en><en>nested</en></en>",
		"Mixed 😀 emoji — dash / slash @ home",
		"ends with space ,",
		"안녕하세요. 반갑습니다",
		"…",
		"see <b>",
	}
	for _, in := range inputs {
		for _, lang := range []string{"en", "ko", "xx"} {
			once := Normalize(in, lang)
			twice := Normalize(once, lang)
			if once != twice {
				t.Fatalf("not idempotent for %q (%s): %q then %q", in, lang, once, twice)
			}
		}
	}
}

func TestResolveLanguage(t *testing.T) {
	cases := map[string]struct {
		want string
		ok   bool
	}{
		"en":    {"en", true},
		"en-US": {"en", true},
		"en_GB": {"en", true},
		"ko-KR": {"ko", true},
		"pt-BR": {"pt", true},
		"fr-CA": {"fr", true},
		"ES":    {"es", true},
		"de-DE": {"en", false},
		"":      {"en", false},
		"???":   {"en", false},
	}
	for tag, tc := range cases {
		got, ok := ResolveLanguage(tag)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ResolveLanguage(%q) = %q,%v want %q,%v", tag, got, ok, tc.want, tc.ok)
		}
	}
}
