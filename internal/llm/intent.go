package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Intent is a coarse classification of a customer message.
type Intent struct {
	Intent    string   `json:"intent"`
	Sentiment string   `json:"sentiment"`
	Urgency   string   `json:"urgency"`
	Entities  []string `json:"entities"`
}

// FallbackIntent is returned whenever classification fails.
func FallbackIntent() Intent {
	return Intent{Intent: "other", Sentiment: "neutral", Urgency: "low", Entities: []string{}}
}

const intentPrompt = `Analyze the following user message and extract:
1. intent (booking, inquiry, complaint, purchase, other)
2. sentiment (positive, neutral, negative)
3. urgency (low, medium, high)
4. entities: key entities mentioned, as a list of strings

Context: %s
Message: %q

Respond with a single JSON object with the keys intent, sentiment, urgency, entities.`

// AnalyzeIntent classifies message. It never fails: generation or parse
// errors yield FallbackIntent.
func AnalyzeIntent(ctx context.Context, gen Generator, message, cartridgeContext string) Intent {
	raw, err := gen.Generate(ctx, fmt.Sprintf(intentPrompt, cartridgeContext, message), "")
	if err != nil {
		return FallbackIntent()
	}

	var intent Intent
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &intent); err != nil || intent.Intent == "" {
		return FallbackIntent()
	}
	if intent.Entities == nil {
		intent.Entities = []string{}
	}
	return intent
}

// stripCodeFence removes a surrounding ```json fence models like to add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
