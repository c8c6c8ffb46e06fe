package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is the live catalog record the stock ledger mutates. Orders never
// reference it directly; they carry snapshots taken at checkout time.
type Product struct {
	ID       uuid.UUID
	SellerID uuid.UUID

	Name     string
	ImageURL string

	Price         int64 // minor currency units
	StockQuantity int32

	CreatedAt time.Time
	UpdatedAt time.Time
}
