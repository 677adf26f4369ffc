package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single tool call.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of one invocation. Output is always set; on
// failure it is the "Error: ..." observation handed back to the model.
type Result struct {
	ToolName string        `json:"tool"`
	Kind     Kind          `json:"-"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
	Direct   bool          `json:"return_direct"`
}

// Failed reports whether the invocation produced an error observation.
func (r Result) Failed() bool { return r.Err != nil }

// Registry holds the tools available to a turn, in registration order.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	order   []string
	timeout time.Duration
	log     zerolog.Logger
}

// NewRegistry creates an empty registry. A non-positive timeout uses
// DefaultTimeout.
func NewRegistry(timeout time.Duration, log zerolog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		timeout: timeout,
		log:     log,
	}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)

	r.log.Debug().Str("tool", tool.Name).Stringer("kind", tool.Kind).Msg("Registered tool")
	return nil
}

// MustRegister registers tools and panics on error. Use it for static
// wiring at startup.
func (r *Registry) MustRegister(tools ...*Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(fmt.Sprintf("register tool %s: %v", t.Name, err))
		}
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns the tools in registration order.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Invoke runs a tool with a timeout. It never returns an error: unknown
// tools, failures, timeouts and panics all become an "Error: ..." output.
func (r *Registry) Invoke(ctx context.Context, name string, call Call) Result {
	start := time.Now()
	res := Result{ToolName: name, Input: call.Input}

	tool := r.Get(name)
	if tool == nil {
		res.Err = fmt.Errorf("%w: %s", ErrToolNotFound, name)
		res.Output = errorObservation(res.Err)
		return res
	}
	res.Kind = tool.Kind
	res.Direct = tool.ReturnDirect

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.execute(ctx, tool, call)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s timed out after %s: %w", name, r.timeout, err)
	}

	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		res.Output = errorObservation(err)
		res.Direct = false
	} else {
		res.Output = out
	}

	r.log.Debug().
		Str("tool", name).
		Dur("duration", res.Duration).
		Bool("success", err == nil).
		Msg("Tool invoked")

	return res
}

// execute runs the tool on its own goroutine so a tool that ignores its
// context cannot hold the turn past the timeout.
func (r *Registry) execute(ctx context.Context, tool *Tool, call Call) (string, error) {
	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error().
					Str("tool", tool.Name).
					Interface("panic", p).
					Bytes("stack", debug.Stack()).
					Msg("Tool panicked")
				done <- outcome{err: fmt.Errorf("%s panicked: %v", tool.Name, p)}
			}
		}()
		out, err := tool.Execute(ctx, call)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func errorObservation(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "Error") {
		return msg
	}
	return "Error: " + msg
}
