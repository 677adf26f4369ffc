// Package seed generates the sample finance data loaded into an empty store.
// Output depends only on the seed value and the reference date.
package seed

import (
	"math/rand/v2"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// Rounds is how many passes over the user list generate transactions.
	Rounds = 30
	// TransactionWindowDays bounds transaction dates before the reference date.
	TransactionWindowDays = 180
	// HoldingWindowDays bounds purchase dates before the reference date.
	HoldingWindowDays = 365
)

// Roster is the fixed set of sample users.
var Roster = []domain.User{
	{Email: "siva@gmail.com", Name: "SivaPrasad Valluru", JoinDate: "2022-12-01"},
	{Email: "rishik@gmail.com", Name: "Rishik Valluru", JoinDate: "2023-01-15"},
	{Email: "michael.johnson@example.com", Name: "Michael Johnson", JoinDate: "2023-02-10"},
	{Email: "emily.brown@example.com", Name: "Emily Brown", JoinDate: "2023-03-05"},
	{Email: "robert.wilson@example.com", Name: "Robert Wilson", JoinDate: "2023-01-20"},
}

// Descriptions per category.
var Descriptions = map[string][]string{
	domain.CategoryIncome:         {"Salary", "Freelance work", "Investment returns", "Side hustle", "Bonus"},
	domain.CategoryFood:           {"Grocery shopping", "Restaurant", "Coffee shop", "Food delivery", "Lunch"},
	domain.CategoryUtilities:      {"Electricity bill", "Water bill", "Internet bill", "Phone bill", "Gas bill"},
	domain.CategoryTransportation: {"Gas", "Uber ride", "Public transport", "Car maintenance", "Parking fee"},
	domain.CategoryHousing:        {"Rent", "Mortgage", "Home repairs", "Furniture", "Home insurance"},
	domain.CategoryEntertainment:  {"Streaming service", "Movie tickets", "Concert", "Video games", "Books"},
	domain.CategoryHealthcare:     {"Doctor visit", "Prescription", "Health insurance", "Gym membership", "Therapy"},
	domain.CategoryShopping:       {"Clothes", "Electronics", "Gifts", "Home goods", "Personal care"},
	domain.CategoryEducation:      {"Tuition", "Textbooks", "Online course", "Workshop", "Certification"},
}

// Symbols is the stock universe; the first TierOneCount are large caps.
var Symbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "META",
	"TSLA", "NVDA", "JPM", "V", "WMT",
	"DIS", "NFLX", "PYPL", "ADBE", "CRM",
	"CSCO", "INTC", "AMD", "IBM", "ORCL",
}

// TierOneCount is how many leading Symbols use the higher price band.
const TierOneCount = 5

// Generator is deterministic for a given Seed and Now.
type Generator struct {
	Seed uint64
	// Now is the reference date; windows end here.
	Now time.Time
}

// New returns a generator anchored at now.
func New(seed uint64, now time.Time) *Generator {
	return &Generator{Seed: seed, Now: now}
}

// Users returns the fixed roster.
func (g *Generator) Users() []domain.User {
	out := make([]domain.User, len(Roster))
	copy(out, Roster)
	return out
}

// Transactions produces Rounds passes of 1-3 transactions per user.
func (g *Generator) Transactions(users []domain.User) []domain.Transaction {
	r := g.rng(1)
	var out []domain.Transaction
	for range Rounds {
		for _, u := range users {
			n := 1 + r.IntN(3)
			for range n {
				category := domain.Categories[r.IntN(len(domain.Categories))]
				pool := Descriptions[category]
				out = append(out, domain.Transaction{
					Email:       u.Email,
					Date:        g.daysAgo(r.IntN(TransactionWindowDays + 1)),
					Amount:      amountFor(r, category),
					Category:    category,
					Description: pool[r.IntN(len(pool))],
				})
			}
		}
	}
	return out
}

// Holdings produces 5-10 distinct symbols per user.
func (g *Generator) Holdings(users []domain.User) []domain.Holding {
	r := g.rng(2)
	var out []domain.Holding
	for _, u := range users {
		n := 5 + r.IntN(6)
		for _, idx := range r.Perm(len(Symbols))[:n] {
			out = append(out, domain.Holding{
				Email:         u.Email,
				Symbol:        Symbols[idx],
				Shares:        uniform(r, 1, 50),
				PurchasePrice: priceFor(r, idx),
				PurchaseDate:  g.daysAgo(r.IntN(HoldingWindowDays + 1)),
			})
		}
	}
	return out
}

func (g *Generator) rng(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(g.Seed, stream))
}

func (g *Generator) daysAgo(n int) string {
	now := g.Now
	if now.IsZero() {
		now = time.Now()
	}
	return civil.DateOf(now).AddDays(-n).String()
}

func amountFor(r *rand.Rand, category string) float64 {
	if category == domain.CategoryIncome {
		return uniform(r, 800, 3000)
	}
	return -uniform(r, 10, 500)
}

func priceFor(r *rand.Rand, symbolIdx int) float64 {
	if symbolIdx < TierOneCount {
		return uniform(r, 100, 3000)
	}
	return uniform(r, 20, 500)
}

// uniform draws from [lo, hi] rounded to cents.
func uniform(r *rand.Rand, lo, hi float64) float64 {
	v := decimal.NewFromFloat(lo + r.Float64()*(hi-lo)).Round(2)
	f, _ := v.Float64()
	return f
}
