package text

import (
	"strings"
	"testing"
)

func TestSmartChunk(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{
			name:     "single sentence no split needed",
			text:     "Hello world.",
			maxChars: 100,
			want:     []string{"Hello world."},
		},
		{
			name:     "two sentences within limit",
			text:     "Hello. World.",
			maxChars: 100,
			want:     []string{"Hello. World."},
		},
		{
			name:     "two sentences exceeding limit",
			text:     "Hello. World.",
			maxChars: 8,
			want:     []string{"Hello.", "World."},
		},
		{
			name:     "splits on exclamation mark",
			text:     "Hello! World!",
			maxChars: 8,
			want:     []string{"Hello!", "World!"},
		},
		{
			name:     "mixed sentence terminators",
			text:     "First. Second! Third?",
			maxChars: 10,
			want:     []string{"First.", "Second!", "Third?"},
		},
		{
			name:     "groups consecutive sentences within limit",
			text:     "A. B. C. D.",
			maxChars: 6,
			want:     []string{"A. B.", "C. D."},
		},
		{
			name:     "trims whitespace from chunks",
			text:     "First.  Second.  Third.",
			maxChars: 10,
			want:     []string{"First.", "Second.", "Third."},
		},
		{
			name:     "splits on CJK terminators",
			text:     "你好。世界。",
			maxChars: 10,
			want:     []string{"你好。", "世界。"},
		},
		{
			name:     "maxChars zero means no limit",
			text:     "First. Second. Third.",
			maxChars: 0,
			want:     []string{"First. Second. Third."},
		},
		{
			name:     "oversize sentence splits on whitespace",
			text:     "one two three four five.",
			maxChars: 10,
			want:     []string{"one two", "three four", "five."},
		},
		{
			name:     "single overlong word stays intact",
			text:     "supercalifragilistic",
			maxChars: 5,
			want:     []string{"supercalifragilistic"},
		},
		{
			name:     "empty input yields no chunks",
			text:     "   ",
			maxChars: 10,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SmartChunk(tt.text, tt.maxChars)
			if len(got) != len(tt.want) {
				t.Fatalf("chunk count = %d, want %d\ngot: %q\nwant: %q",
					len(got), len(tt.want), got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSmartChunkRespectsLimit(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	const maxChars = 120

	for i, chunk := range SmartChunk(text, maxChars) {
		if len(chunk) > maxChars {
			t.Errorf("chunk %d has %d chars, limit %d", i, len(chunk), maxChars)
		}
		if strings.TrimSpace(chunk) != chunk {
			t.Errorf("chunk %d has surrounding whitespace: %q", i, chunk)
		}
	}
}

func TestSmartChunkPreservesContent(t *testing.T) {
	text := "First sentence here. Second one follows! A third, rather longer sentence closes the paragraph?"

	var joined []string
	for _, c := range SmartChunk(text, 30) {
		joined = append(joined, strings.Fields(c)...)
	}
	want := strings.Fields(text)

	if len(joined) != len(want) {
		t.Fatalf("word count = %d, want %d", len(joined), len(want))
	}
	for i := range joined {
		if joined[i] != want[i] {
			t.Errorf("word[%d] = %q, want %q", i, joined[i], want[i])
		}
	}
}
