package tools

import (
	"context"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
	"github.com/dvloznov/finance-assistant/internal/knowledge"
)

// MockPriceProvider is a PriceProvider for tests.
type MockPriceProvider struct {
	LatestPriceFunc func(ctx context.Context, ticker string) (float64, error)
}

func (m *MockPriceProvider) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	if m.LatestPriceFunc != nil {
		return m.LatestPriceFunc(ctx, ticker)
	}
	return 100, nil
}

// MockSearcher is a Searcher for tests.
type MockSearcher struct {
	SearchFunc func(ctx context.Context, query string, max int) ([]SearchResult, error)
}

func (m *MockSearcher) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, max)
	}
	return nil, nil
}

// MockAnswerer is an Answerer for tests.
type MockAnswerer struct {
	AnswerFunc func(ctx context.Context, question string, history []domain.Turn) (*knowledge.Answer, error)
}

func (m *MockAnswerer) Answer(ctx context.Context, question string, history []domain.Turn) (*knowledge.Answer, error) {
	if m.AnswerFunc != nil {
		return m.AnswerFunc(ctx, question, history)
	}
	return &knowledge.Answer{Text: knowledge.DontKnow}, nil
}

// MockQuerier is a Querier for tests.
type MockQuerier struct {
	QueryScopedFunc func(ctx context.Context, tenant identity.TenantID, query string) (*sqlite.Table, error)
	QueryFunc       func(ctx context.Context, query string) (*sqlite.Table, error)
}

func (m *MockQuerier) QueryScoped(ctx context.Context, tenant identity.TenantID, query string) (*sqlite.Table, error) {
	if m.QueryScopedFunc != nil {
		return m.QueryScopedFunc(ctx, tenant, query)
	}
	return &sqlite.Table{}, nil
}

func (m *MockQuerier) Query(ctx context.Context, query string) (*sqlite.Table, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, query)
	}
	return &sqlite.Table{}, nil
}
