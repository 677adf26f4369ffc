package domain

import (
	"github.com/dvloznov/finance-assistant/internal/identity"
)

// DateLayout is the civil date format used across the structured store.
const DateLayout = "2006-01-02"

// Category values a transaction may carry.
const (
	CategoryIncome         = "Income"
	CategoryFood           = "Food"
	CategoryUtilities      = "Utilities"
	CategoryTransportation = "Transportation"
	CategoryHousing        = "Housing"
	CategoryEntertainment  = "Entertainment"
	CategoryHealthcare     = "Healthcare"
	CategoryShopping       = "Shopping"
	CategoryEducation      = "Education"
)

// Categories lists every category in display order.
var Categories = []string{
	CategoryIncome,
	CategoryFood,
	CategoryUtilities,
	CategoryTransportation,
	CategoryHousing,
	CategoryEntertainment,
	CategoryHealthcare,
	CategoryShopping,
	CategoryEducation,
}

// User is immutable after creation.
type User struct {
	Email    identity.TenantID `json:"email_id"`
	Name     string            `json:"name"`
	JoinDate string            `json:"join_date"`
}

// Transaction is a single signed cash movement. Income is positive,
// every other category is negative.
type Transaction struct {
	ID          int64             `json:"id"`
	Email       identity.TenantID `json:"email_id"`
	Date        string            `json:"date"`
	Amount      float64           `json:"amount"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
}

// Holding is one lot in a user's portfolio.
type Holding struct {
	ID            int64             `json:"id"`
	Email         identity.TenantID `json:"email_id"`
	Symbol        string            `json:"symbol"`
	Shares        float64           `json:"shares"`
	PurchasePrice float64           `json:"purchase_price"`
	PurchaseDate  string            `json:"purchase_date"`
}
