package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the local read model of a catalog listing, kept up to date from product events.
type Product struct {
	ID         string
	SellerID   string
	Price      decimal.Decimal
	Quantity   int
	Negotiable bool
	UpdatedAt  time.Time
}

func (p *Product) InStock() bool {
	return p.Quantity > 0
}
