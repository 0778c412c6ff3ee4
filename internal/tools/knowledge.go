package tools

import (
	"context"
	"errors"
)

// SearchKnowledgeBase is the in-session retrieval tool name.
const SearchKnowledgeBase = "searchKnowledgeBase"

// knowledgeLimit is how many chunks the in-session search returns.
const knowledgeLimit = 3

// ContextRetriever returns delimited context for a query within a cartridge.
type ContextRetriever interface {
	Retrieve(ctx context.Context, cartridgeID, query string, limit int) (string, error)
}

// KnowledgeResult is the result of searchKnowledgeBase.
type KnowledgeResult struct {
	Found   bool   `json:"found"`
	Context string `json:"context"`
}

func searchKnowledgeBaseDecl() Declaration {
	return Declaration{
		Name:        SearchKnowledgeBase,
		Description: "Searches the business documents for facts relevant to the customer's question.",
		Parameters: object("Knowledge query", []string{"query"}, map[string]*Schema{
			"query": str("What to look up, in the customer's words"),
		}),
	}
}

// searchKnowledgeBaseFunc is bound to one cartridge so the model can never
// query another tenant's documents.
func searchKnowledgeBaseFunc(r ContextRetriever, cartridgeID string) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		if r == nil {
			return nil, errors.New("knowledge base unavailable")
		}
		query, err := stringArg(args, "query")
		if err != nil {
			return nil, err
		}
		text, err := r.Retrieve(ctx, cartridgeID, query, knowledgeLimit)
		if err != nil {
			return nil, err
		}
		return KnowledgeResult{Found: text != "", Context: text}, nil
	}
}
