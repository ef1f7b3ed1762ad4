// Package pricing resolves product tiers to fixed prices used for reward amounts.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"referralhub/internal/config"
)

var ErrUnknownTier = errors.New("unknown product tier")

type Product struct {
	ID         string
	Name       string
	PriceCents int64
}

// Lookup is the narrow pricing interface consumed by the reward ledger.
type Lookup interface {
	Product(tier string) (Product, error)
	Price(tier string) (int64, error)
}

// DefaultProducts mirrors the storefront catalogue.
var DefaultProducts = []Product{
	{ID: "purrify-12g", Name: "Purrify 12g Trial", PriceCents: 499},
	{ID: "purrify-50g", Name: "Purrify 50g", PriceCents: 1499},
	{ID: "purrify-50g-autoship", Name: "Purrify 50g Autoship", PriceCents: 3199},
	{ID: "purrify-120g", Name: "Purrify Regular size 120g", PriceCents: 2999},
	{ID: "purrify-120g-autoship", Name: "Purrify 120g Autoship", PriceCents: 4999},
	{ID: "purrify-240g", Name: "Purrify Large size 240g", PriceCents: 5499},
	{ID: "purrify-240g-autoship", Name: "Purrify 240g Autoship", PriceCents: 7999},
}

type Catalog struct {
	products map[string]Product
}

func NewCatalog(products []Product) (*Catalog, error) {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.New("product id is required")
		}
		if p.PriceCents < 0 {
			return nil, fmt.Errorf("product %s: price must not be negative", id)
		}
		if _, dup := c.products[id]; dup {
			return nil, fmt.Errorf("product %s: duplicate id", id)
		}
		p.ID = id
		c.products[id] = p
	}
	return c, nil
}

// NewCatalogFromConfig builds a catalog from configuration, falling back to DefaultProducts when none are set.
func NewCatalogFromConfig(cfg config.PricingConfig) (*Catalog, error) {
	if len(cfg.Products) == 0 {
		return NewCatalog(DefaultProducts)
	}
	products := make([]Product, 0, len(cfg.Products))
	for _, p := range cfg.Products {
		products = append(products, Product{ID: p.ID, Name: p.Name, PriceCents: p.PriceCents})
	}
	return NewCatalog(products)
}

func (c *Catalog) Product(tier string) (Product, error) {
	p, ok := c.products[strings.TrimSpace(tier)]
	if !ok {
		return Product{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return p, nil
}

func (c *Catalog) Price(tier string) (int64, error) {
	p, err := c.Product(tier)
	if err != nil {
		return 0, err
	}
	return p.PriceCents, nil
}

// FormatCents renders an amount as dollars, e.g. 499 -> "$4.99".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
