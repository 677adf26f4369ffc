// Package agent runs conversation turns: it reads the conversation history,
// lets a selector route the message to tools, and records the exchange.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/history"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/dvloznov/finance-assistant/internal/trace"
	"github.com/rs/zerolog"
)

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message is empty")

// Reply is the outcome of one turn. Err is set when the turn failed; Answer
// then carries the "Error: ..." text that was recorded in history.
type Reply struct {
	Answer      string         `json:"answer"`
	Invocations []tools.Result `json:"tools"`
	Err         error          `json:"-"`
}

// Agent answers user messages.
type Agent struct {
	history  history.Store
	locks    *history.KeyedMutex
	registry *tools.Registry
	selector Selector
	recorder trace.Recorder
	log      zerolog.Logger
}

// Options configures an Agent. Recorder defaults to trace.Nop.
type Options struct {
	History  history.Store
	Registry *tools.Registry
	Selector Selector
	Recorder trace.Recorder
}

// New creates an agent.
func New(opts Options, log zerolog.Logger) *Agent {
	rec := opts.Recorder
	if rec == nil {
		rec = trace.Nop{}
	}
	return &Agent{
		history:  opts.History,
		locks:    history.NewKeyedMutex(),
		registry: opts.Registry,
		selector: opts.Selector,
		recorder: rec,
		log:      log,
	}
}

// Registry returns the tools available to the agent.
func (a *Agent) Registry() *tools.Registry { return a.registry }

// Respond runs one turn for (tenant, conversationID). Turns on the same
// conversation are serialized. Tool and model failures do not return an
// error: they are reported in Reply.Err and recorded as the assistant turn.
// An error is returned only when the turn could not be read or recorded.
func (a *Agent) Respond(ctx context.Context, tenant identity.TenantID, conversationID, message string) (Reply, error) {
	if tenant.IsZero() || conversationID == "" {
		return Reply{}, history.ErrInvalidKey
	}
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}

	unlock := a.locks.Lock(tenant, conversationID)
	defer unlock()

	log := logger.ForTurn(a.log, tenant.String(), conversationID)
	ctx = logger.WithContext(ctx, log)

	// Step 1: Read the conversation so far
	past, err := a.history.Get(ctx, tenant, conversationID)
	if err != nil {
		return Reply{}, fmt.Errorf("Agent.Respond: read history: %w", err)
	}

	// Step 2: Route the message
	outcome, err := a.selector.SelectAndInvoke(ctx, TurnContext{
		Tenant:         tenant,
		ConversationID: conversationID,
		System:         SystemPrompt(tenant),
		History:        past,
		Message:        message,
	}, a.registry)

	reply := Reply{Answer: outcome.Answer, Invocations: outcome.Invocations}
	if err != nil {
		reply.Err = err
		reply.Answer = fmt.Sprintf("Error: %v", err)
		log.Error().Err(err).Msg("Turn failed")
	}

	// The turn is recorded even when the caller has gone away.
	saveCtx := context.WithoutCancel(ctx)

	// Step 3: Trace the tool invocations
	if len(outcome.Invocations) > 0 {
		records := trace.FromResults(tenant, conversationID, outcome.Invocations)
		if err := a.recorder.Record(saveCtx, records...); err != nil {
			log.Warn().Err(err).Msg("Recording tool trace failed")
		}
	}

	// Step 4: Record the exchange
	if err := a.history.Append(saveCtx, tenant, conversationID,
		domain.UserTurn(message),
		domain.AssistantTurn(reply.Answer),
	); err != nil {
		return reply, fmt.Errorf("Agent.Respond: append history: %w", err)
	}

	log.Info().
		Strs("tools", toolNames(outcome.Invocations)).
		Bool("failed", reply.Err != nil).
		Msg("Turn completed")

	return reply, nil
}

func toolNames(results []tools.Result) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.ToolName
	}
	return names
}
