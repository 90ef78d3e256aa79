// Package sales keeps the append-only history of recorded sales.
package sales

import (
	"errors"
	"time"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

// ErrNotFound is returned when a sale ID is unknown.
var ErrNotFound = errors.New("sale not found")

// ErrDuplicate is returned when a sale ID is recorded twice.
var ErrDuplicate = errors.New("sale already recorded")

// Sale is one recorded invoice.
type Sale struct {
	ID          string          `json:"id"`
	SoldAt      time.Time       `json:"sold_at"`
	Summary     string          `json:"summary"`
	Total       pricing.Money   `json:"total"`
	ItemCount   int             `json:"item_count"`
	ReceiptFile string          `json:"receipt_file,omitempty"`
	Invoice     pricing.Invoice `json:"invoice"`
}

// NewSale snapshots inv into a sale record.
func NewSale(id string, soldAt time.Time, inv pricing.Invoice) *Sale {
	count := 0
	for _, line := range inv.Lines {
		count += line.Quantity
	}
	return &Sale{
		ID:        id,
		SoldAt:    soldAt,
		Summary:   inv.Summary(),
		Total:     inv.GrandTotal(),
		ItemCount: count,
		Invoice:   inv.Clone(),
	}
}

// DB stores sales. Sales are never updated or deleted.
type DB interface {
	// AppendSale records a new sale.
	AppendSale(sale *Sale) error

	// GetSale retrieves a sale by ID.
	GetSale(id string) (*Sale, error)

	// ListSales returns every sale, oldest first.
	ListSales() ([]*Sale, error)

	Close() error
}
