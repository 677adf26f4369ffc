package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/llm"
	"github.com/rs/zerolog"
)

// DontKnow is the answer when no context could be retrieved.
const DontKnow = "I don't know."

// DefaultChainTemperature keeps rewritten questions and answers close to
// the retrieved text.
const DefaultChainTemperature = 0.2

const contextualizePrompt = "Given above chat history and the below latest user question which might reference " +
	"context in the chat history, formulate a standalone question which can be understood without the chat " +
	"history. Do NOT answer the question, just reformulate it if needed and otherwise return it as is. " +
	"Below is the latest question: %s"

const answerPrompt = "You are a financial advisor. Answer the question based on the context provided. " +
	"If you don't know the answer, just say 'I don't know'."

// Answer is the result of a grounded question.
type Answer struct {
	Text       string   `json:"text"`
	Question   string   `json:"question"`
	Standalone string   `json:"standalone"`
	Sources    []string `json:"sources,omitempty"`
	Hits       []Hit    `json:"-"`
}

// Chain answers questions from retrieved chunks: rewrite the question
// against the history, retrieve, then synthesize.
type Chain struct {
	model       llm.ChatModel
	retriever   Retriever
	k           int
	temperature float32
	log         zerolog.Logger
}

// NewChain creates a chain retrieving k chunks per question.
func NewChain(model llm.ChatModel, retriever Retriever, k int, log zerolog.Logger) *Chain {
	if k <= 0 {
		k = 5
	}
	return &Chain{
		model:       model,
		retriever:   retriever,
		k:           k,
		temperature: DefaultChainTemperature,
		log:         log,
	}
}

// Answer runs the chain for question given the prior turns of the
// conversation. The history is not modified.
func (c *Chain) Answer(ctx context.Context, question string, history []domain.Turn) (*Answer, error) {
	question = strings.TrimSpace(question)
	standalone, err := c.standalone(ctx, question, history)
	if err != nil {
		return nil, fmt.Errorf("Chain.Answer: rewrite: %w", err)
	}

	hits, err := c.retriever.Retrieve(ctx, standalone, c.k)
	if err != nil {
		return nil, fmt.Errorf("Chain.Answer: retrieve: %w", err)
	}

	ans := &Answer{Question: question, Standalone: standalone, Hits: hits}
	if len(hits) == 0 {
		ans.Text = DontKnow
		return ans, nil
	}

	contents := make([]string, len(hits))
	seen := make(map[string]bool)
	for i, h := range hits {
		contents[i] = h.Chunk.Content
		if !seen[h.Chunk.Source] {
			seen[h.Chunk.Source] = true
			ans.Sources = append(ans.Sources, h.Chunk.Source)
		}
	}

	msgs := historyMessages(history)
	msgs = append(msgs, llm.UserText(standalone+"\n\nContext: "+strings.Join(contents, "\n\n")))

	resp, err := c.model.Generate(ctx, llm.Request{
		System:      answerPrompt,
		Messages:    msgs,
		Temperature: llm.Temperature(c.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("Chain.Answer: synthesize: %w", err)
	}

	ans.Text = strings.TrimSpace(resp.Text)
	if ans.Text == "" {
		ans.Text = DontKnow
	}

	c.log.Debug().
		Str("standalone", standalone).
		Int("hits", len(hits)).
		Strs("sources", ans.Sources).
		Msg("Answered from knowledge")

	return ans, nil
}

func (c *Chain) standalone(ctx context.Context, question string, history []domain.Turn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	msgs := historyMessages(history)
	msgs = append(msgs, llm.UserText(fmt.Sprintf(contextualizePrompt, question)))

	resp, err := c.model.Generate(ctx, llm.Request{
		Messages:    msgs,
		Temperature: llm.Temperature(c.temperature),
	})
	if err != nil {
		return "", err
	}

	if rewritten := strings.TrimSpace(resp.Text); rewritten != "" {
		return rewritten, nil
	}
	return question, nil
}

func historyMessages(history []domain.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		if t.Role == domain.RoleAssistant {
			msgs = append(msgs, llm.ModelText(t.Text))
			continue
		}
		msgs = append(msgs, llm.UserText(t.Text))
	}
	return msgs
}
