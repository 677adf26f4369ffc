package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/llm"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/rs/zerolog"
)

// DefaultMaxIterations bounds the model/tool loop of a turn.
const DefaultMaxIterations = 8

// IterationLimitAnswer is returned when a turn runs out of iterations.
const IterationLimitAnswer = "I'm sorry, I couldn't finish answering that within the allowed number of steps. Please try rephrasing your question."

// TurnContext is everything a selector sees for one turn.
type TurnContext struct {
	Tenant         identity.TenantID
	ConversationID string
	System         string
	History        []domain.Turn
	Message        string
}

// Outcome is the result of a turn: the tools it ran and the answer.
type Outcome struct {
	Invocations []tools.Result
	Answer      string
}

// Selector picks and runs tools for a turn and produces the answer.
type Selector interface {
	SelectAndInvoke(ctx context.Context, turn TurnContext, registry *tools.Registry) (Outcome, error)
}

// LLMSelector lets the chat model choose tools through function calling.
type LLMSelector struct {
	model         llm.ChatModel
	maxIterations int
	temperature   *float32
	log           zerolog.Logger
}

var _ Selector = (*LLMSelector)(nil)

// NewLLMSelector creates a selector. A non-positive maxIterations uses
// DefaultMaxIterations.
func NewLLMSelector(model llm.ChatModel, maxIterations int, log zerolog.Logger) *LLMSelector {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &LLMSelector{model: model, maxIterations: maxIterations, log: log}
}

// WithTemperature sets the sampling temperature for every request.
func (s *LLMSelector) WithTemperature(t float32) *LLMSelector {
	s.temperature = llm.Temperature(t)
	return s
}

// SelectAndInvoke runs the function-calling loop. Each iteration is one
// model call; tool calls are answered and fed back until the model replies
// with text, a return-direct tool succeeds, or the iterations run out.
func (s *LLMSelector) SelectAndInvoke(ctx context.Context, turn TurnContext, registry *tools.Registry) (Outcome, error) {
	var out Outcome

	messages := make([]llm.Message, 0, len(turn.History)+1)
	for _, t := range turn.History {
		if t.Role == domain.RoleAssistant {
			messages = append(messages, llm.ModelText(t.Text))
		} else {
			messages = append(messages, llm.UserText(t.Text))
		}
	}
	messages = append(messages, llm.UserText(turn.Message))

	functions := FunctionSpecs(registry)

	for i := 0; i < s.maxIterations; i++ {
		resp, err := s.model.Generate(ctx, llm.Request{
			System:      turn.System,
			Messages:    messages,
			Functions:   functions,
			Temperature: s.temperature,
		})
		if err != nil {
			return out, fmt.Errorf("LLMSelector.SelectAndInvoke: generate: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			out.Answer = resp.Text
			return out, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleModel, Text: resp.Text, ToolCalls: resp.ToolCalls})

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			res := registry.Invoke(ctx, call.Name, tools.Call{
				Input:   callInput(call.Args),
				Args:    call.Args,
				Tenant:  turn.Tenant,
				History: turn.History,
			})
			out.Invocations = append(out.Invocations, res)

			s.log.Debug().
				Str("tool", res.ToolName).
				Bool("failed", res.Failed()).
				Dur("duration", res.Duration).
				Msg("Tool invoked")

			if res.Direct {
				out.Answer = res.Output
				return out, nil
			}
			results = append(results, llm.ToolResult{ID: call.ID, Name: call.Name, Output: res.Output})
		}

		messages = append(messages, llm.Message{Role: llm.RoleUser, ToolResults: results})
	}

	s.log.Warn().Int("iterations", s.maxIterations).Msg("Turn hit the iteration limit")
	out.Answer = IterationLimitAnswer
	return out, nil
}

// FunctionSpecs declares the registry's tools to the model.
func FunctionSpecs(registry *tools.Registry) []llm.FunctionSpec {
	all := registry.All()
	specs := make([]llm.FunctionSpec, len(all))
	for i, t := range all {
		params := make([]llm.ParamSpec, len(t.Params))
		for j, p := range t.Params {
			params[j] = llm.ParamSpec{Name: p.Name, Description: p.Description, Required: p.Required}
		}
		specs[i] = llm.FunctionSpec{Name: t.Name, Description: t.Description, Params: params}
	}
	return specs
}

// callInput picks the string handed to single-input tools.
func callInput(args map[string]any) string {
	if s, ok := args["input"].(string); ok {
		return s
	}
	if len(args) == 1 {
		for _, v := range args {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(b)
}
