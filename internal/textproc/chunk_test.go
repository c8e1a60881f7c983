package textproc

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitSentencesRespectsAbbreviations(t *testing.T) {
	in := "Dr. Smith met Mr. Jones at noon yesterday. J. R. Tolkien wrote books! Did he? Yes, etc. and more."
	got := SplitSentences(in)
	want := []string{
		"Dr. Smith met Mr. Jones at noon yesterday.",
		"J. R. Tolkien wrote books!",
		"Did he?",
		"Yes, etc. and more.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sentences:\n got %q\nwant %q", got, want)
	}
}

func TestChunkPacksGreedily(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."
	got := Chunk(text, 30)
	want := []string{"One two three. Four five six.", "Seven eight nine."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestChunkParagraphsNeverShareChunk(t *testing.T) {
	got := Chunk("First para.\n\n  \nSecond para.", 300)
	want := []string{"First para.", "Second para."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestChunkOversizedSentenceStaysWhole(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end."
	got := Chunk("Short one. "+long+" Tail.", 50)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(got), got)
	}
	if got[1] != strings.TrimSpace(long) {
		t.Fatalf("oversized sentence was altered: %q", got[1])
	}
}

func TestChunkDegenerateInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n"} {
		got := Chunk(in, 10)
		if len(got) != 1 || got[0] != in {
			t.Fatalf("Chunk(%q) = %q, want the input back", in, got)
		}
	}
}

func TestChunkReconstructsAndRespectsBudget(t *testing.T) {
	text := strings.Join([]string{
		"The quick brown fox jumps over the lazy dog. Mrs. Brown watched it happen!",
		"Why would a fox do that? Nobody knows. It is, e.g. a mystery.",
		strings.Repeat("Longer sentence that keeps going on. ", 12),
		"한국어 문장입니다. 두 번째 문장입니다.",
	}, "\n\n")

	for _, budget := range []int{20, 60, CompactChunkBudget, DefaultChunkBudget} {
		chunks := Chunk(text, budget)
		if got, want := strings.Fields(strings.Join(chunks, " ")), strings.Fields(text); !reflect.DeepEqual(got, want) {
			t.Fatalf("budget %d: chunks do not reconstruct the input", budget)
		}
		for _, c := range chunks {
			if utf8.RuneCountInString(c) <= budget {
				continue
			}
			if n := len(SplitSentences(c)); n != 1 {
				t.Fatalf("budget %d: chunk of %d runes holds %d sentences", budget, utf8.RuneCountInString(c), n)
			}
		}
	}
}

func TestChunkBudget(t *testing.T) {
	if ChunkBudget("ko") != CompactChunkBudget || ChunkBudget("en") != DefaultChunkBudget {
		t.Fatalf("unexpected budgets")
	}
}
