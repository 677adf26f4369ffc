package tools

import (
	"time"

	"github.com/rs/zerolog"
)

// Deps are the collaborators of the standard tool set. Tools whose
// collaborator is nil are left out.
type Deps struct {
	Prices       PriceProvider
	Search       Searcher
	Interpreter  *Interpreter
	Knowledge    Answerer
	Querier      Querier
	EnforceScope bool
	Timeout      time.Duration
}

// NewDefaultRegistry registers the assistant's tools.
func NewDefaultRegistry(d Deps, log zerolog.Logger) *Registry {
	r := NewRegistry(d.Timeout, log)
	if d.Prices != nil {
		r.MustRegister(StockPriceTool(d.Prices))
	}
	if d.Interpreter != nil {
		r.MustRegister(CalculatorTool(d.Interpreter))
	}
	if d.Search != nil {
		r.MustRegister(MarketResearchTool(d.Search))
	}
	if d.Knowledge != nil {
		r.MustRegister(KnowledgeTool(d.Knowledge))
	}
	if d.Querier != nil {
		r.MustRegister(SQLQueryTool(d.Querier, d.EnforceScope), SQLSchemaTool(), SQLListTablesTool())
	}
	return r
}
