package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/knowledge"
)

// Answerer answers a question from the knowledge base.
type Answerer interface {
	Answer(ctx context.Context, question string, history []domain.Turn) (*knowledge.Answer, error)
}

// KnowledgeTool answers advice questions from the knowledge base. Its
// answer goes to the user as is.
func KnowledgeTool(a Answerer) *Tool {
	return &Tool{
		Name: "retrieve_financial_knowledge",
		Kind: KindKnowledge,
		Description: "Retrieve financial knowledge, investment fundamentals and advice from our knowledge base " +
			"with conversation memory. This tool maintains conversation history for contextual follow-up " +
			"questions. Use this for questions about financial advice, investment strategies, best practices, " +
			"recommendations, or when you need expert financial guidance.",
		Params:       InputParam("The question to answer"),
		ReturnDirect: true,
		Execute: func(ctx context.Context, call Call) (string, error) {
			q := strings.TrimSpace(call.Input)
			if q == "" {
				return "", ErrEmptyInput
			}
			ans, err := a.Answer(ctx, q, call.History)
			if err != nil {
				return "", fmt.Errorf("retrieving financial knowledge: %w", err)
			}
			return ans.Text, nil
		},
	}
}
