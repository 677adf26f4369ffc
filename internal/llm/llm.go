// Package llm wraps the hosted language and embedding models behind small
// interfaces so the agent and the retrieval chain can be tested with fakes.
package llm

import (
	"context"
)

// Role of a message in a model request.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of the request history. A model message may carry
// tool calls; a user message may carry tool results answering them.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	ID     string
	Name   string
	Output string
}

// FunctionSpec declares a callable tool to the model. Every parameter is a
// string.
type FunctionSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
}

// ParamSpec describes one string parameter.
type ParamSpec struct {
	Name        string
	Description string
	Required    bool
}

// Request is a single model call.
type Request struct {
	System      string
	Messages    []Message
	Functions   []FunctionSpec
	Temperature *float32
}

// Response is either text or a set of tool calls.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// ChatModel generates a response for a request.
type ChatModel interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// TextExtractor turns a PDF into plain text.
type TextExtractor interface {
	ExtractPDFText(ctx context.Context, pdf []byte) (string, error)
}

// UserText builds a plain user message.
func UserText(text string) Message { return Message{Role: RoleUser, Text: text} }

// ModelText builds a plain model message.
func ModelText(text string) Message { return Message{Role: RoleModel, Text: text} }

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float32) *float32 { return &t }
