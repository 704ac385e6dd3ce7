package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Product describes one purchasable plan.
type Product struct {
	Name        string   `yaml:"name" json:"name"`
	Price       int64    `yaml:"price" json:"price"` // cents
	PriceID     string   `yaml:"price_id" json:"-"`
	Features    []string `yaml:"features" json:"features"`
	Seats       int      `yaml:"seats" json:"seats"`
	MaxContacts string   `yaml:"max_contacts" json:"maxContacts"`
}

// Catalog maps a plan identifier to its product.
type Catalog map[string]Product

// DefaultCatalog returns the built-in plans. Stripe price ids come from the
// environment.
func DefaultCatalog(stripe StripeConfig) Catalog {
	return Catalog{
		"pro": {
			Name:        "MessageFlow Pro",
			Price:       9700,
			PriceID:     stripe.PriceIDPro,
			Features:    []string{"unlimited_contacts", "no_watermark", "lifetime_updates", "email_support"},
			Seats:       1,
			MaxContacts: "Infinity",
		},
		"business": {
			Name:        "MessageFlow Business",
			Price:       24700,
			PriceID:     stripe.PriceIDBusiness,
			Features:    []string{"unlimited_contacts", "no_watermark", "lifetime_updates", "phone_support", "white_label", "5_licenses"},
			Seats:       5,
			MaxContacts: "Infinity",
		},
	}
}

// LoadCatalog returns the default catalog, replaced by the plans in path when
// path is set. A plan in the file without a price_id keeps the one from the
// environment.
func LoadCatalog(path string, stripe StripeConfig) (Catalog, error) {
	catalog := DefaultCatalog(stripe)
	if path == "" {
		return catalog, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file struct {
		Plans map[string]Product `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no plans", path)
	}

	loaded := make(Catalog, len(file.Plans))
	for id, p := range file.Plans {
		if p.PriceID == "" {
			p.PriceID = catalog[id].PriceID
		}
		if p.MaxContacts == "" {
			p.MaxContacts = "Infinity"
		}
		loaded[id] = p
	}
	return loaded, nil
}

// Has reports whether plan is sold.
func (c Catalog) Has(plan string) bool {
	_, ok := c[plan]
	return ok
}

// Features returns the feature list for plan, or nil.
func (c Catalog) Features(plan string) []string {
	return c[plan].Features
}

// Plans returns the plan identifiers in a stable order.
func (c Catalog) Plans() []string {
	plans := make([]string, 0, len(c))
	for id := range c {
		plans = append(plans, id)
	}
	sort.Strings(plans)
	return plans
}
