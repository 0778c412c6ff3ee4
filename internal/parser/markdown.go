// Package parser prepares uploaded documents for embedding: frontmatter
// stripping and paragraph segmentation.
package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is an uploaded text with its optional YAML frontmatter removed.
type Document struct {
	// Frontmatter metadata (from YAML)
	Frontmatter map[string]any

	// Title extracted from frontmatter or the first h1
	Title string

	// Body is the content after frontmatter
	Body string
}

var h1Regex = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// Parse strips a leading "---" YAML block. Invalid YAML is ignored and the
// block is still removed.
func Parse(content string) *Document {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	doc := &Document{
		Frontmatter: make(map[string]any),
		Body:        content,
	}

	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx >= 0 {
			frontmatterYAML := content[4 : 4+endIdx]
			doc.Body = strings.TrimPrefix(content[4+endIdx+4:], "\n")

			if err := yaml.Unmarshal([]byte(frontmatterYAML), &doc.Frontmatter); err != nil || doc.Frontmatter == nil {
				doc.Frontmatter = make(map[string]any)
			}
		}
	}

	doc.Title = extractTitle(doc.Frontmatter, doc.Body)
	return doc
}

// extractTitle gets title from frontmatter or first h1.
func extractTitle(fm map[string]any, content string) string {
	if title, ok := fm["title"].(string); ok && title != "" {
		return title
	}
	if match := h1Regex.FindStringSubmatch(content); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// FrontmatterString extracts a string from frontmatter.
func (d *Document) FrontmatterString(key string) string {
	if v, ok := d.Frontmatter[key].(string); ok {
		return v
	}
	return ""
}
