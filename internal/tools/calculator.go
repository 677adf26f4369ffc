package tools

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// calculatorPackages are the only packages interpreted code can import.
var calculatorPackages = map[string]bool{
	"fmt":     true,
	"math":    true,
	"strconv": true,
	"strings": true,
	"sort":    true,
	"time":    true,
}

// MaxOutput caps interpreter output returned to the model.
const MaxOutput = 8 << 10

// Interpreter evaluates Go snippets with a restricted standard library.
type Interpreter struct {
	symbols interp.Exports
}

// NewInterpreter builds the symbol table once; each Run gets a fresh
// interpreter so runs share no state.
func NewInterpreter() *Interpreter {
	symbols := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		// keys look like "strings/strings"
		pkg := key
		if i := strings.LastIndex(key, "/"); i > 0 {
			pkg = key[:i]
		}
		if calculatorPackages[pkg] {
			symbols[key] = syms
		}
	}
	return &Interpreter{symbols: symbols}
}

// Run evaluates code REPL-style. Allowed packages are pre-imported. The
// captured output is returned, or the value of a trailing expression when
// nothing was printed.
func (in *Interpreter) Run(ctx context.Context, code string) (out string, err error) {
	var stdout, stderr bytes.Buffer
	i := interp.New(interp.Options{Stdout: &stdout, Stderr: &stderr})
	if err := i.Use(in.symbols); err != nil {
		return "", fmt.Errorf("load symbols: %w", err)
	}
	i.ImportUsed()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	res, err := i.EvalWithContext(ctx, code)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("execution stopped: %w", ctx.Err())
		}
		return "", err
	}

	text := strings.TrimSpace(stdout.String() + stderr.String())
	if text == "" && res.IsValid() && res.CanInterface() {
		if res.Kind() != reflect.Func {
			text = fmt.Sprint(res.Interface())
		}
	}
	return truncateOutput(text, MaxOutput), nil
}

// truncateOutput cuts text to at most limit bytes without splitting a rune.
func truncateOutput(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n... (output truncated)"
}

// CalculatorTool executes Go code for calculations.
func CalculatorTool(in *Interpreter) *Tool {
	return &Tool{
		Name: "calculator",
		Kind: KindCodeExecution,
		Description: "Useful for performing calculations or data analysis. Input should be Go code: statements " +
			"and expressions run like a REPL, with fmt, math, strconv, strings, sort and time already imported. " +
			"Print results with fmt.Println or end with an expression.",
		Params: InputParam("Go statements or an expression"),
		Execute: func(ctx context.Context, call Call) (string, error) {
			code := stripCodeFences(call.Input)
			if code == "" {
				return "", ErrEmptyInput
			}
			out, err := in.Run(ctx, code)
			if err != nil {
				return "", err
			}
			if out == "" {
				return "(no output)", nil
			}
			return out, nil
		},
	}
}

// stripCodeFences removes the markdown fences models wrap code in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
