package markdown

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "level one heading kept",
			in:   "# Title\n\nBody",
			want: "# Title\n\nBody",
		},
		{
			name: "first heading promoted",
			in:   "Intro\n### Title\n## Next",
			want: "Intro\n# Title\n## Next",
		},
		{
			name: "no heading gets default",
			in:   "\n\nJust text.\n",
			want: "# Document\n\nJust text.",
		},
		{
			name: "hash inside fence is not a heading",
			in:   "```sh\n# comment\n```\nText",
			want: "# Document\n\n```sh\n# comment\n```\nText",
		},
		{
			name: "hashtag is not a heading",
			in:   "#hashtag line",
			want: "# Document\n\n#hashtag line",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnfence(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"markdown wrapper", "```markdown\n# Hi\n```", "# Hi"},
		{"bare wrapper", "```\n# Hi\n```\n", "# Hi"},
		{"md wrapper", "```MD\n# Hi\n\ntext\n```", "# Hi\n\ntext"},
		{"tilde wrapper", "~~~markdown\n# Hi\n~~~", "# Hi"},
		{"plain text", "  # Plain  ", "# Plain"},
		{"trailing code block", "# Title\n```go\nx\n```", "# Title\n```go\nx\n```"},
		{
			"leading and trailing code blocks",
			"```go\nx := 1\n```\n\nTraduit.\n\n```\ny\n```",
			"```go\nx := 1\n```\n\nTraduit.\n\n```\ny\n```",
		},
		{"other info string", "```mdx\nfoo\n```", "```mdx\nfoo\n```"},
		{
			"inner fence closes the wrapper early",
			"```markdown\n# A\n```\ntext\n```",
			"```markdown\n# A\n```\ntext\n```",
		},
		{
			"longer wrapper keeps inner code",
			"````markdown\n# A\n```go\nx\n```\n````",
			"# A\n```go\nx\n```",
		},
		{"unclosed", "```markdown\n# A", "```markdown\n# A"},
		{"fence only", "```", "```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unfence(tt.in); got != tt.want {
				t.Errorf("Unfence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestChunk_SmallTextIsOneChunk(t *testing.T) {
	text := "# A\n\nshort\n"
	chunks := Chunk(text, 1000)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("Chunk = %q", chunks)
	}
	if Chunk("", 10) != nil {
		t.Error("empty text should yield no chunks")
	}
}

func TestChunk_SplitsBeforeHeadings(t *testing.T) {
	text := "# One\n" + strings.Repeat("a", 30) + "\n" +
		"## Two\n" + strings.Repeat("b", 30) + "\n" +
		"## Three\n" + strings.Repeat("c", 30) + "\n"

	chunks := Chunk(text, 45)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %q", len(chunks), chunks)
	}
	for i, prefix := range []string{"# One", "## Two", "## Three"} {
		if !strings.HasPrefix(chunks[i], prefix) {
			t.Errorf("chunk %d = %q, want prefix %q", i, chunks[i], prefix)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble the original text")
	}
}

func TestChunk_MergesSmallSections(t *testing.T) {
	text := "# A\nx\n# B\ny\n# C\nz\n"
	chunks := Chunk(text, 12)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %q", len(chunks), chunks)
	}
	if chunks[0] != "# A\nx\n# B\ny\n" {
		t.Errorf("chunk 0 = %q", chunks[0])
	}
}

func TestChunk_NeverSplitsInsideFence(t *testing.T) {
	code := "```python\n# not a heading\n\nprint(1)\n\n# still code\n```\n"
	text := "# Intro\nhello\n\n" + code + "\n## After\nbye\n"

	chunks := Chunk(text, 20)
	found := false
	for _, c := range chunks {
		if strings.Contains(c, "```python") {
			found = true
			if !strings.Contains(c, code) {
				t.Errorf("fenced block was split: %q", c)
			}
		}
	}
	if !found {
		t.Fatalf("fenced block missing from chunks: %q", chunks)
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble the original text")
	}
}

func TestChunk_OversizedSectionSplitsOnParagraphs(t *testing.T) {
	para := strings.Repeat("w", 20)
	text := "# Big\n" + para + "\n\n" + para + "\n\n" + para + "\n"

	chunks := Chunk(text, 30)
	if len(chunks) < 2 {
		t.Fatalf("expected paragraph split, got %q", chunks)
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble the original text")
	}
}
