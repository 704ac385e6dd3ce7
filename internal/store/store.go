// Package store holds issued licenses. Handlers depend on the Store
// interface only, so the snapshot file can be swapped for a database.
package store

import (
	"context"
	"errors"
	"sort"

	"messageflow-backend/internal/model"
)

var (
	ErrNotFound        = errors.New("license not found")
	ErrInvalidRecord   = errors.New("license record has no key")
	ErrCorruptSnapshot = errors.New("license snapshot is malformed")
)

// Store maps a license key to its record.
type Store interface {
	// Load reads persisted licenses at startup. A missing snapshot is not an
	// error.
	Load(ctx context.Context) error
	// Save persists the full set of licenses.
	Save(ctx context.Context) error
	Get(ctx context.Context, key string) (*model.License, error)
	// Put inserts or replaces a record and persists it immediately.
	Put(ctx context.Context, license *model.License) error
	// FindBySession returns the oldest license issued for a checkout session.
	FindBySession(ctx context.Context, sessionID string) (*model.License, error)
	List(ctx context.Context) ([]model.License, error)
	SetActive(ctx context.Context, key string, active bool) (*model.License, error)
	Len() int
}

func sortLicenses(licenses []model.License) {
	sort.Slice(licenses, func(i, j int) bool {
		a, b := licenses[i], licenses[j]
		if !a.PurchaseDate.Equal(b.PurchaseDate) {
			return a.PurchaseDate.Before(b.PurchaseDate)
		}
		return a.Key < b.Key
	})
}
