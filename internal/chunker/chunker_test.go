package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero max tokens", cfg: Config{MaxTokens: 0, OverlapTokens: 0}},
		{name: "negative max tokens", cfg: Config{MaxTokens: -1, OverlapTokens: 0}},
		{name: "negative overlap", cfg: Config{MaxTokens: 100, OverlapTokens: -1}},
		{name: "overlap equals max", cfg: Config{MaxTokens: 100, OverlapTokens: 100}},
		{name: "overlap exceeds max", cfg: Config{MaxTokens: 100, OverlapTokens: 150}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var chunkErr *ChunkingError
			if !errors.As(err, &chunkErr) {
				t.Fatalf("expected *ChunkingError, got %T", err)
			}
		})
	}
}

// makeSentences builds n sentences of tokensPer whitespace-delimited words,
// each terminated with a period so every sentence end is a valid boundary.
func makeSentences(n, tokensPer int) string {
	var b strings.Builder
	for i := range n {
		for j := range tokensPer - 1 {
			fmt.Fprintf(&b, "w%d_%d ", i, j)
		}
		fmt.Fprintf(&b, "end%d. ", i)
	}
	return b.String()
}

func TestSplitLongDocument(t *testing.T) {
	c, err := New(Config{MaxTokens: 500, OverlapTokens: 50})
	if err != nil {
		t.Fatal(err)
	}

	// 300 sentences of 10 tokens each: 3000 tokens total.
	text := makeSentences(300, 10)
	chunks := c.Split(text)

	if len(chunks) != 7 {
		t.Fatalf("expected 7 chunks, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if ch.Seq != i {
			t.Errorf("chunk %d: Seq = %d, want %d", i, ch.Seq, i)
		}
		if ch.TokenCount > 500 {
			t.Errorf("chunk %d: %d tokens exceeds max 500", i, ch.TokenCount)
		}
		if got := len(strings.Fields(ch.Text)); got != ch.TokenCount {
			t.Errorf("chunk %d: TokenCount = %d but text has %d tokens", i, ch.TokenCount, got)
		}
	}

	// Consecutive chunks share exactly the overlap.
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		tail := strings.Join(prev[len(prev)-50:], " ")
		head := strings.Join(cur[:50], " ")
		if tail != head {
			t.Errorf("chunks %d and %d do not share 50 overlap tokens", i-1, i)
		}
	}
}

func TestSplitReconstruction(t *testing.T) {
	const overlap = 50
	c, err := New(Config{MaxTokens: 500, OverlapTokens: overlap})
	if err != nil {
		t.Fatal(err)
	}

	text := makeSentences(237, 13)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Concatenating chunks minus overlaps must reproduce the original
	// token stream exactly.
	rebuilt := strings.Fields(chunks[0].Text)
	for _, ch := range chunks[1:] {
		fields := strings.Fields(ch.Text)
		rebuilt = append(rebuilt, fields[overlap:]...)
	}

	want := strings.Join(strings.Fields(text), " ")
	if got := strings.Join(rebuilt, " "); got != want {
		t.Error("reconstructed text differs from original token stream")
	}
}

func TestSplitShortDocument(t *testing.T) {
	c, err := New(Config{MaxTokens: 500, OverlapTokens: 50})
	if err != nil {
		t.Fatal(err)
	}

	text := "A short notice. Nothing more to say."
	chunks := c.Split(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Seq != 0 {
		t.Errorf("Seq = %d, want 0", chunks[0].Seq)
	}
	if chunks[0].TokenCount != 7 {
		t.Errorf("TokenCount = %d, want 7", chunks[0].TokenCount)
	}
	if chunks[0].Text != strings.Join(strings.Fields(text), " ") {
		t.Errorf("unexpected chunk text %q", chunks[0].Text)
	}
}

func TestSplitEmptyText(t *testing.T) {
	c, err := New(Config{MaxTokens: 500, OverlapTokens: 50})
	if err != nil {
		t.Fatal(err)
	}

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		if chunks := c.Split(text); chunks != nil {
			t.Errorf("Split(%q) = %d chunks, want none", text, len(chunks))
		}
	}
}

func TestSplitPrefersSentenceBoundaries(t *testing.T) {
	c, err := New(Config{MaxTokens: 20, OverlapTokens: 4})
	if err != nil {
		t.Fatal(err)
	}

	// Sentences of 6 tokens; a 20-token budget fits three of them.
	text := makeSentences(10, 6)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, ch := range chunks[:len(chunks)-1] {
		fields := strings.Fields(ch.Text)
		last := fields[len(fields)-1]
		if !strings.HasSuffix(last, ".") {
			t.Errorf("chunk %d ends mid-sentence with %q", i, last)
		}
	}
}

func TestSplitHardSplitsOversizedSentence(t *testing.T) {
	c, err := New(Config{MaxTokens: 10, OverlapTokens: 2})
	if err != nil {
		t.Fatal(err)
	}

	// One 25-token sentence with no interior boundary.
	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	words[24] = "done."
	text := strings.Join(words, " ")

	chunks := c.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.TokenCount > 10 {
			t.Errorf("chunk %d: %d tokens exceeds max 10", i, ch.TokenCount)
		}
	}
	last := chunks[len(chunks)-1]
	fields := strings.Fields(last.Text)
	if fields[len(fields)-1] != "done." {
		t.Errorf("last chunk ends with %q, want \"done.\"", fields[len(fields)-1])
	}
}

func TestSplitProgressesWhenChunkShorterThanOverlap(t *testing.T) {
	c, err := New(Config{MaxTokens: 10, OverlapTokens: 5})
	if err != nil {
		t.Fatal(err)
	}

	// First sentence is only 3 tokens, shorter than the overlap. The
	// overlap is dropped for that pair instead of looping forever.
	text := "a b c. " + strings.Join([]string{"d", "e", "f", "g", "h", "i", "j", "k", "l."}, " ")
	chunks := c.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].TokenCount != 3 {
		t.Errorf("first chunk TokenCount = %d, want 3", chunks[0].TokenCount)
	}
	if chunks[1].TokenCount != 9 {
		t.Errorf("second chunk TokenCount = %d, want 9", chunks[1].TokenCount)
	}
}

func TestSplitDeterministic(t *testing.T) {
	c, err := New(Config{MaxTokens: 120, OverlapTokens: 20})
	if err != nil {
		t.Fatal(err)
	}

	text := makeSentences(80, 7)
	a := c.Split(text)
	b := c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
