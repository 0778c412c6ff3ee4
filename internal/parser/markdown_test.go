package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantBody  string
		wantTitle string
		wantKey   string
	}{
		{
			name:     "no frontmatter",
			content:  "Plain text.",
			wantBody: "Plain text.",
		},
		{
			name:      "frontmatter stripped",
			content:   "---\ntitle: House Rules\ncartridge: h-concierge-1\n---\nNo smoking.",
			wantBody:  "No smoking.",
			wantTitle: "House Rules",
			wantKey:   "h-concierge-1",
		},
		{
			name:      "title from heading",
			content:   "# Policies\n\nCheck-in at 3pm.",
			wantBody:  "# Policies\n\nCheck-in at 3pm.",
			wantTitle: "Policies",
		},
		{
			name:     "invalid yaml still stripped",
			content:  "---\n: : :\n---\nBody",
			wantBody: "Body",
		},
		{
			name:     "crlf frontmatter",
			content:  "---\r\ncartridge: x\r\n---\r\nBody",
			wantBody: "Body",
			wantKey:  "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.content)
			assert.Equal(t, tt.wantBody, doc.Body)
			assert.Equal(t, tt.wantTitle, doc.Title)
			assert.Equal(t, tt.wantKey, doc.FrontmatterString("cartridge"))
		})
	}
}
