package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Paragraph is one retained fragment of a document.
type Paragraph struct {
	Text     string
	Position int
}

// SplitConfig defines paragraph splitting parameters.
type SplitConfig struct {
	// MinLength: fragments shorter than this are discarded as noise
	MinLength int
	// MaxLength: longer paragraphs are split at sentence boundaries, and
	// sentences longer than this at whitespace. No stored piece exceeds it.
	MaxLength int
}

// DefaultSplitConfig returns the ingestion defaults.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		MinLength: 50,
		MaxLength: 2000,
	}
}

// blankLine matches a paragraph boundary: a newline, optional whitespace, a newline.
var blankLine = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// SplitParagraphs splits raw text on blank lines, trims each fragment and
// discards those shorter than MinLength. A document consisting of a single
// non-empty paragraph is kept whole regardless of length.
func SplitParagraphs(raw string, config SplitConfig) []Paragraph {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var fragments []string
	for _, f := range blankLine.Split(raw, -1) {
		if f = strings.TrimSpace(f); f != "" {
			fragments = append(fragments, f)
		}
	}

	if len(fragments) == 1 && len(fragments[0]) < config.MinLength {
		return []Paragraph{{Text: fragments[0], Position: 0}}
	}

	var out []Paragraph
	for _, f := range fragments {
		if len(f) < config.MinLength {
			continue
		}
		if config.MaxLength > 0 && len(f) > config.MaxLength {
			for _, piece := range chunkBySentences(f, config) {
				out = append(out, Paragraph{Text: piece, Position: len(out)})
			}
			continue
		}
		out = append(out, Paragraph{Text: f, Position: len(out)})
	}
	return out
}

// chunkBySentences packs sentences into pieces of MinLength to MaxLength
// bytes. Sentences longer than MaxLength are cut at whitespace. A short piece
// is carried into the next one instead of being emitted on its own, and a
// short trailing piece is merged into its predecessor.
func chunkBySentences(text string, config SplitConfig) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		for _, part := range hardSplit(sentence, config.MaxLength, config.MinLength) {
			if current.Len() > 0 && current.Len()+1+len(part) > config.MaxLength {
				if current.Len() >= config.MinLength {
					chunks = append(chunks, current.String())
					current.Reset()
				} else {
					pieces := hardSplit(current.String()+" "+part, config.MaxLength, config.MinLength)
					chunks = append(chunks, pieces[:len(pieces)-1]...)
					current.Reset()
					current.WriteString(pieces[len(pieces)-1])
					continue
				}
			}

			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(part)
		}
	}

	if current.Len() == 0 {
		return chunks
	}
	last := current.String()
	if len(last) >= config.MinLength || len(chunks) == 0 {
		return append(chunks, last)
	}

	merged := chunks[len(chunks)-1] + " " + last
	if len(merged) <= config.MaxLength {
		chunks[len(chunks)-1] = merged
		return chunks
	}
	// Rebalance so both halves stay within bounds.
	head, tail := cut(merged, len(merged)-config.MinLength-1, config.MinLength)
	if tail == "" {
		chunks[len(chunks)-1] = merged
		return chunks
	}
	chunks[len(chunks)-1] = head
	return append(chunks, tail)
}

// hardSplit cuts text into pieces of at most maxLen bytes, every piece but
// the last at least minLen bytes long.
func hardSplit(text string, maxLen, minLen int) []string {
	var out []string
	for len(text) > maxLen {
		var head string
		head, text = cut(text, maxLen, minLen)
		out = append(out, head)
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// cut splits text at the last whitespace within maxLen bytes, provided the
// head keeps at least minLen bytes; otherwise it cuts at the rune boundary
// nearest below maxLen.
func cut(text string, maxLen, minLen int) (string, string) {
	if maxLen <= 0 || len(text) <= maxLen {
		return text, ""
	}
	at := strings.LastIndexFunc(text[:maxLen+1], unicode.IsSpace)
	if at < minLen || at <= 0 {
		at = maxLen
		for at > 0 && !utf8.RuneStart(text[at]) {
			at--
		}
		if at == 0 {
			at = maxLen
		}
	}
	return strings.TrimSpace(text[:at]), strings.TrimSpace(text[at:])
}

// splitSentences splits text into sentences.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if i > 1 && unicode.IsUpper(runes[i-1]) {
					continue // Likely abbreviation like "Dr."
				}
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}
