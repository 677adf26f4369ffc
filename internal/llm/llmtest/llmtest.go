// Package llmtest provides deterministic stand-ins for the hosted models.
package llmtest

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/dvloznov/finance-assistant/internal/llm"
)

// ChatModel replays scripted responses and records every request.
type ChatModel struct {
	// GenerateFunc, when set, answers each request.
	GenerateFunc func(ctx context.Context, call int, req llm.Request) (*llm.Response, error)

	mu       sync.Mutex
	requests []llm.Request
}

// Generate implements llm.ChatModel.
func (m *ChatModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	call := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc == nil {
		return &llm.Response{Text: "ok"}, nil
	}
	return m.GenerateFunc(ctx, call, req)
}

// Requests returns a copy of the recorded requests.
func (m *ChatModel) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many requests were made.
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Script returns a GenerateFunc that answers the n-th call with steps[n]
// and fails once the script is exhausted.
func Script(steps ...llm.Response) func(context.Context, int, llm.Request) (*llm.Response, error) {
	return func(_ context.Context, call int, _ llm.Request) (*llm.Response, error) {
		if call >= len(steps) {
			return nil, fmt.Errorf("llmtest: unexpected call %d", call)
		}
		resp := steps[call]
		return &resp, nil
	}
}

// Call builds a response requesting a single tool call with an "input" arg.
func Call(name, input string) llm.Response {
	return llm.Response{ToolCalls: []llm.ToolCall{{
		ID:   "call-" + name,
		Name: name,
		Args: map[string]any{"input": input},
	}}}
}

// Text builds a plain text response.
func Text(s string) llm.Response { return llm.Response{Text: s} }

// Embedder hashes lowercase word tokens into a fixed-size bag-of-words
// vector. Texts sharing words score higher under cosine similarity.
type Embedder struct {
	Dim int
}

// EmbedDocuments implements the knowledge embedder.
func (e Embedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// EmbedQuery implements the knowledge embedder.
func (e Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e Embedder) vector(text string) []float32 {
	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v
}

// Extractor returns Text for every PDF.
type Extractor struct {
	Text string
	Err  error
}

// ExtractPDFText implements llm.TextExtractor.
func (x Extractor) ExtractPDFText(context.Context, []byte) (string, error) {
	return x.Text, x.Err
}
