package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

const (
	// DefaultChatModel is the Gemini model used for chat and extraction.
	DefaultChatModel = "gemini-2.5-flash"
	// DefaultEmbeddingModel embeds knowledge chunks and queries.
	DefaultEmbeddingModel = "gemini-embedding-001"

	embedBatchSize   = 100
	embedConcurrency = 4

	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// ErrEmptyResponse is returned when the model produced nothing usable.
var ErrEmptyResponse = errors.New("empty response from model")

// GeminiOptions configures the Gemini client.
type GeminiOptions struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	// Timeout bounds each model call.
	Timeout time.Duration
}

// Gemini implements ChatModel, TextExtractor and the knowledge embedder on
// top of google.golang.org/genai.
type Gemini struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	timeout    time.Duration
}

// NewGemini creates a client. With an empty API key the SDK falls back to
// GOOGLE_API_KEY / Vertex environment configuration.
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	cfg := &genai.ClientConfig{APIKey: opts.APIKey}
	if opts.APIKey != "" {
		cfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}

	g := &Gemini{
		client:     client,
		chatModel:  opts.ChatModel,
		embedModel: opts.EmbeddingModel,
		timeout:    opts.Timeout,
	}
	if g.chatModel == "" {
		g.chatModel = DefaultChatModel
	}
	if g.embedModel == "" {
		g.embedModel = DefaultEmbeddingModel
	}
	if g.timeout <= 0 {
		g.timeout = 60 * time.Second
	}
	return g, nil
}

// Generate implements ChatModel.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Functions) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(req.Functions)}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.chatModel, toContents(req.Messages), cfg)
	if err != nil {
		return nil, fmt.Errorf("Gemini.Generate: generate content: %w", err)
	}

	out := &Response{}
	for _, fc := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	if len(out.ToolCalls) > 0 {
		return out, nil
	}

	out.Text = strings.TrimSpace(resp.Text())
	if out.Text == "" {
		return nil, fmt.Errorf("Gemini.Generate: %w", ErrEmptyResponse)
	}
	return out, nil
}

// ExtractPDFText implements TextExtractor by sending the PDF inline.
func (g *Gemini) ExtractPDFText(ctx context.Context, pdf []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := "Extract all text from the attached PDF verbatim, in reading order.\n" +
		"Keep paragraph breaks as blank lines. Do not summarize, translate or add commentary.\n" +
		"Return plain text only, without Markdown or code fences."

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdf,
					},
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.chatModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Gemini.ExtractPDFText: generate content: %w", err)
	}

	text := stripFences(resp.Text())
	if text == "" {
		return "", fmt.Errorf("Gemini.ExtractPDFText: %w", ErrEmptyResponse)
	}
	return text, nil
}

// EmbedDocuments embeds texts for storage, in concurrent batches.
func (g *Gemini) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(embedConcurrency)
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		eg.Go(func() error {
			vecs, err := g.embed(ctx, texts[start:end], taskRetrievalDocument)
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("Gemini.EmbedDocuments: %w", err)
	}
	return out, nil
}

// EmbedQuery embeds a search query.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("Gemini.EmbedQuery: %w", err)
	}
	return vecs[0], nil
}

func (g *Gemini) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	res, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, &genai.EmbedContentConfig{TaskType: task})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed content: got %d embeddings for %d texts", len(res.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		vecs[i] = emb.Values
	}
	return vecs, nil
}

func toContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleModel {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if m.Text != "" {
			parts = append(parts, genai.NewPartFromText(m.Text))
		}
		for _, call := range m.ToolCalls {
			p := genai.NewPartFromFunctionCall(call.Name, call.Args)
			p.FunctionCall.ID = call.ID
			parts = append(parts, p)
		}
		for _, res := range m.ToolResults {
			p := genai.NewPartFromFunctionResponse(res.Name, map[string]any{"output": res.Output})
			p.FunctionResponse.ID = res.ID
			parts = append(parts, p)
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

func functionDeclarations(specs []FunctionSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(s.Params)),
		}
		for _, p := range s.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
