package ledger

import (
	"time"
)

// Transaction is a single ledger entry.
type Transaction struct {
	ID            int64     `json:"id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency,omitempty"`
	Direction     string    `json:"direction"` // "expense" or "income"
	CategoryID    int64     `json:"category_id,omitempty"`
	Category      string    `json:"category,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Note          string    `json:"note,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// Category groups transactions.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"` // "expense" or "income"
}

// PaymentMethod is a way a transaction was settled.
type PaymentMethod struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Query filters transactions.
type Query struct {
	CategoryID    int64     `json:"category_id,omitempty"`
	Direction     string    `json:"direction,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	From          time.Time `json:"from,omitempty"`
	To            time.Time `json:"to,omitempty"`
	Keyword       string    `json:"keyword,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// BulkDeleteResult reports how many records a bulk delete removed.
type BulkDeleteResult struct {
	Deleted int `json:"deleted"`
}
