package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitParagraphs(t *testing.T) {
	long := strings.Repeat("x", 60)

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "empty",
			content: "",
			want:    nil,
		},
		{
			name:    "whitespace only",
			content: "   \n\n\t  ",
			want:    nil,
		},
		{
			name:    "single short paragraph kept whole",
			content: "Check-in is at 3pm. Check-out is at 11am.",
			want:    []string{"Check-in is at 3pm. Check-out is at 11am."},
		},
		{
			name:    "noise between paragraphs discarded",
			content: "# FAQ\n\n" + long + "\n\n---\n\n" + long + "b\n\nok",
			want:    []string{long, long + "b"},
		},
		{
			name:    "blank line with spaces is a boundary",
			content: long + "\n   \t\n" + long + "c",
			want:    []string{long, long + "c"},
		},
		{
			name:    "crlf line endings",
			content: long + "\r\n\r\n" + long + "d",
			want:    []string{long, long + "d"},
		},
		{
			name:    "single newline does not split",
			content: long + "\n" + long,
			want:    []string{long + "\n" + long},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitParagraphs(tt.content, DefaultSplitConfig())
			texts := make([]string, 0, len(got))
			for i, p := range got {
				assert.Equal(t, i, p.Position)
				texts = append(texts, p.Text)
			}
			if tt.want == nil {
				assert.Empty(t, texts)
				return
			}
			assert.Equal(t, tt.want, texts)
		})
	}
}

func TestSplitParagraphsMinimumLength(t *testing.T) {
	content := strings.Join([]string{
		"Our pool is open from 7am to 10pm every day of the week for guests.",
		"Menu",
		"Breakfast is served in the main restaurant between 6:30am and 10:30am.",
		"  ",
		"See below.",
		"Late check-out until 2pm can be requested at the front desk for a fee.",
	}, "\n\n")

	for _, p := range SplitParagraphs(content, DefaultSplitConfig()) {
		assert.GreaterOrEqual(t, len(p.Text), 50, "chunk %q below minimum", p.Text)
	}
	assert.Len(t, SplitParagraphs(content, DefaultSplitConfig()), 3)
}

func TestSplitParagraphsLongParagraphSplitsAtSentences(t *testing.T) {
	sentence := "The concierge can arrange airport transfers for any flight. "
	para := strings.TrimSpace(strings.Repeat(sentence, 10))

	cfg := SplitConfig{MinLength: 50, MaxLength: 200}
	got := SplitParagraphs(para, cfg)

	require.Greater(t, len(got), 1)
	for _, p := range got {
		assert.LessOrEqual(t, len(p.Text), cfg.MaxLength+len(sentence))
		assert.True(t, strings.HasSuffix(p.Text, "."), "piece should end at a sentence: %q", p.Text)
	}
	joined := make([]string, len(got))
	for i, p := range got {
		joined[i] = p.Text
	}
	assert.Equal(t, para, strings.Join(joined, " "))
}

func TestSplitParagraphsPiecesStayWithinBounds(t *testing.T) {
	cfg := DefaultSplitConfig()
	words := strings.TrimSpace(strings.Repeat("suite ", 400)) + "."
	noSpaces := strings.Repeat("x", 2004)
	valid := "Breakfast is served in the main restaurant between 6:30am and 10:30am."

	tests := []struct {
		name    string
		content string
	}{
		{"short sentence before an oversized one", "Short one. " + words + "\n\n" + valid},
		{"oversized sentence without terminator", noSpaces + "\n\n" + valid},
		{"short sentence before an unbroken word", "Short one. " + noSpaces},
		{"oversized sentence then short tail", words + " Tail."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitParagraphs(tt.content, cfg)
			require.NotEmpty(t, got)
			for _, p := range got {
				assert.GreaterOrEqual(t, len(p.Text), cfg.MinLength, "chunk %.40q below minimum", p.Text)
				assert.LessOrEqual(t, len(p.Text), cfg.MaxLength, "chunk %.40q above maximum", p.Text)
			}
		})
	}
}

func TestSplitParagraphsKeepsShortLeadingSentence(t *testing.T) {
	cfg := SplitConfig{MinLength: 50, MaxLength: 200}
	long := strings.TrimSpace(strings.Repeat("room ", 60)) + "."
	para := "Short one. " + long

	got := SplitParagraphs(para, cfg)
	require.Greater(t, len(got), 1)
	assert.True(t, strings.HasPrefix(got[0].Text, "Short one. room"), got[0].Text)

	joined := make([]string, len(got))
	for i, p := range got {
		joined[i] = p.Text
	}
	assert.Equal(t, strings.Fields(para), strings.Fields(strings.Join(joined, " ")))
}

func TestCutKeepsRunesWhole(t *testing.T) {
	head, tail := cut(strings.Repeat("é", 10), 5, 1)
	assert.Equal(t, "éé", head)
	assert.Equal(t, strings.Repeat("é", 8), tail)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hello there. Dr. Who? Yes! End")
	assert.Equal(t, []string{"Hello there.", " Dr. Who?", " Yes!", " End"}, got)
}
