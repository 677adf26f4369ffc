// Package tools defines the capabilities the agent can call and the
// registry that dispatches to them.
package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
)

var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrInvalidTool           = errors.New("invalid tool")
	ErrEmptyInput            = errors.New("input is required")
)

// Kind tags a tool with the capability it provides.
type Kind int

const (
	KindStockPrice Kind = iota + 1
	KindSQLQuery
	KindSQLSchema
	KindSQLListTables
	KindWebSearch
	KindCodeExecution
	KindKnowledge
)

var kindNames = map[Kind]string{
	KindStockPrice:    "stock_price",
	KindSQLQuery:      "sql_query",
	KindSQLSchema:     "sql_schema",
	KindSQLListTables: "sql_list_tables",
	KindWebSearch:     "web_search",
	KindCodeExecution: "code_execution",
	KindKnowledge:     "knowledge",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Param is a string parameter of a tool.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// InputParam is the single "input" parameter most tools take.
func InputParam(description string) []Param {
	return []Param{{Name: "input", Description: description, Required: true}}
}

// Call carries one invocation's arguments and the turn it belongs to.
type Call struct {
	Input   string
	Args    map[string]any
	Tenant  identity.TenantID
	History []domain.Turn
}

// Tool is a named capability. Tools are immutable once registered.
type Tool struct {
	Name        string
	Kind        Kind
	Description string
	Params      []Param

	// ReturnDirect marks output that is handed to the user as the answer
	// without another model pass.
	ReturnDirect bool

	Execute func(ctx context.Context, call Call) (string, error)
}

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Validate checks the tool is complete.
func (t *Tool) Validate() error {
	switch {
	case !toolNamePattern.MatchString(t.Name):
		return fmt.Errorf("%w: bad name %q", ErrInvalidTool, t.Name)
	case t.Description == "":
		return fmt.Errorf("%w: %s has no description", ErrInvalidTool, t.Name)
	case t.Execute == nil:
		return fmt.Errorf("%w: %s has no Execute", ErrInvalidTool, t.Name)
	case kindNames[t.Kind] == "":
		return fmt.Errorf("%w: %s has unknown kind %d", ErrInvalidTool, t.Name, int(t.Kind))
	}
	return nil
}
