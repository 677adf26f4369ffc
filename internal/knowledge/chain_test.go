package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/llm"
	"github.com/dvloznov/finance-assistant/internal/llm/llmtest"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRetriever is a Retriever with a replaceable implementation.
type MockRetriever struct {
	RetrieveFunc func(ctx context.Context, query string, k int) ([]Hit, error)
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, k int) ([]Hit, error) {
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, query, k)
	}
	return nil, nil
}

func TestChain_EmptyIndexSaysDontKnow(t *testing.T) {
	model := &llmtest.ChatModel{}
	idx := openTestIndex(t, t.TempDir(), 0)
	chain := NewChain(model, idx, 5, logger.Nop())

	ans, err := chain.Answer(context.Background(), "What is the rule of 72?", nil)
	require.NoError(t, err)
	assert.Equal(t, DontKnow, ans.Text)
	assert.Zero(t, model.Calls(), "no model call without context")
}

func TestChain_IrrelevantContextIsFilteredOut(t *testing.T) {
	ctx := context.Background()
	model := &llmtest.ChatModel{}
	idx := openTestIndex(t, t.TempDir(), 0.3)
	_, err := idx.AddDefaults(ctx)
	require.NoError(t, err)

	ans, err := NewChain(model, idx, 5, logger.Nop()).Answer(ctx, "zebra xylophone quokka", nil)
	require.NoError(t, err)
	assert.Equal(t, DontKnow, ans.Text)
	assert.Zero(t, model.Calls())
}

func TestChain_AnswersFromContext(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir(), 0)
	_, err := idx.AddDefaults(ctx)
	require.NoError(t, err)

	model := &llmtest.ChatModel{GenerateFunc: llmtest.Script(llmtest.Text("Divide 72 by the annual return."))}
	ans, err := NewChain(model, idx, 5, logger.Nop()).Answer(ctx, "What is the rule of 72?", nil)
	require.NoError(t, err)

	assert.Equal(t, "Divide 72 by the annual return.", ans.Text)
	assert.Equal(t, "What is the rule of 72?", ans.Standalone)
	assert.Equal(t, []string{SourceDefault}, ans.Sources)

	reqs := model.Requests()
	require.Len(t, reqs, 1, "no rewrite without history")
	assert.Equal(t, answerPrompt, reqs[0].System)
	require.NotNil(t, reqs[0].Temperature)
	assert.InDelta(t, DefaultChainTemperature, *reqs[0].Temperature, 1e-6)

	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.True(t, strings.HasPrefix(last.Text, "What is the rule of 72?\n\nContext: "))
	assert.Contains(t, last.Text, "The rule of 72")
}

func TestChain_RewritesWithHistory(t *testing.T) {
	history := []domain.Turn{
		domain.UserTurn("Tell me about emergency funds"),
		domain.AssistantTurn("They cover unexpected expenses."),
	}

	var retrieved string
	retriever := &MockRetriever{RetrieveFunc: func(_ context.Context, query string, k int) ([]Hit, error) {
		retrieved = query
		assert.Equal(t, 5, k)
		return []Hit{{Chunk: Chunk{Source: SourceDefault, Content: DefaultFacts[1]}, Score: 0.9}}, nil
	}}

	model := &llmtest.ChatModel{GenerateFunc: llmtest.Script(
		llmtest.Text("How many months of expenses should an emergency fund cover?"),
		llmtest.Text("Three to six months."),
	)}

	ans, err := NewChain(model, retriever, 5, logger.Nop()).Answer(context.Background(), "How big should it be?", history)
	require.NoError(t, err)

	assert.Equal(t, "How many months of expenses should an emergency fund cover?", retrieved)
	assert.Equal(t, "How big should it be?", ans.Question)
	assert.Equal(t, "Three to six months.", ans.Text)

	reqs := model.Requests()
	require.Len(t, reqs, 2)

	rewrite := reqs[0]
	assert.Empty(t, rewrite.System)
	require.Len(t, rewrite.Messages, 3)
	assert.Equal(t, llm.RoleModel, rewrite.Messages[1].Role)
	assert.Contains(t, rewrite.Messages[2].Text, "Do NOT answer the question")
	assert.Contains(t, rewrite.Messages[2].Text, "How big should it be?")

	synth := reqs[1]
	require.Len(t, synth.Messages, 3)
	assert.Contains(t, synth.Messages[2].Text, "Context: "+DefaultFacts[1])
	assert.Len(t, history, 2, "history is not modified")
}

func TestChain_PropagatesRetrieverErrors(t *testing.T) {
	boom := errors.New("index unavailable")
	retriever := &MockRetriever{RetrieveFunc: func(context.Context, string, int) ([]Hit, error) {
		return nil, boom
	}}

	_, err := NewChain(&llmtest.ChatModel{}, retriever, 5, logger.Nop()).Answer(context.Background(), "q", nil)
	assert.ErrorIs(t, err, boom)
}
