package knowledge

import (
	"context"
	"fmt"
)

// DefaultFacts is the built-in financial knowledge added on startup.
var DefaultFacts = []string{
	"When investing, diversification is key to reducing risk. Spread investments across different asset classes.",
	"Emergency funds should cover 3-6 months of expenses and be kept in liquid accounts.",
	"Tax-advantaged accounts like 401(k)s and IRAs offer significant benefits for retirement planning.",
	"Dollar-cost averaging involves investing a fixed amount regularly regardless of market conditions.",
	"Pay off high-interest debt before investing aggressively in the market.",
	"Index funds offer low-cost exposure to broad market segments with minimal fees.",
	"Rebalancing your portfolio periodically helps maintain your desired asset allocation.",
	"The rule of 72 can estimate how long it takes to double your money. Divide 72 by the annual rate of return.",
	"Time in the market beats timing the market. Long-term investing typically outperforms short-term trading.",
	"Consider your risk tolerance and time horizon when choosing investments.",
}

// AddDefaults indexes DefaultFacts, one chunk per fact. Facts already in the
// index are skipped, so calling it on every start is safe.
func (x *Index) AddDefaults(ctx context.Context) (int, error) {
	vectors, err := x.embedder.EmbedDocuments(ctx, DefaultFacts)
	if err != nil {
		return 0, fmt.Errorf("Index.AddDefaults: embed: %w", err)
	}

	pieces := make([]Piece, len(DefaultFacts))
	for i, fact := range DefaultFacts {
		pieces[i] = Piece{Text: fact, Start: 0, End: len([]rune(fact))}
	}

	chunks, err := x.Chunks(pieces, vectors, map[string]string{"source": SourceDefault})
	if err != nil {
		return 0, fmt.Errorf("Index.AddDefaults: %w", err)
	}

	added, err := x.store.Add(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("Index.AddDefaults: %w", err)
	}
	return added, nil
}
