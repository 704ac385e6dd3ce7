package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"messageflow-backend/internal/model"
)

var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DeadLetters keeps completed-payment events that did not produce a license.
type DeadLetters struct {
	db *gorm.DB
}

func NewDeadLetters(db *gorm.DB) *DeadLetters {
	return &DeadLetters{db: db}
}

func (d *DeadLetters) Add(ctx context.Context, entry *model.DeadLetter) error {
	if d == nil || d.db == nil {
		return errors.New("dead letter storage not configured")
	}
	if err := d.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("store dead letter: %w", err)
	}
	return nil
}

// List returns dead letters, newest first. includeResolved adds entries
// already reconciled.
func (d *DeadLetters) List(ctx context.Context, includeResolved bool) ([]model.DeadLetter, error) {
	if d == nil || d.db == nil {
		return nil, nil
	}
	var entries []model.DeadLetter
	q := d.db.WithContext(ctx).Order("created_at DESC")
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return entries, nil
}

func (d *DeadLetters) Resolve(ctx context.Context, id string) (*model.DeadLetter, error) {
	if d == nil || d.db == nil {
		return nil, ErrDeadLetterNotFound
	}
	var entry model.DeadLetter
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&entry).Error; err != nil {
			return err
		}
		entry.Resolved = true
		return tx.Model(&model.DeadLetter{}).Where("id = ?", id).Update("resolved", true).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeadLetterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve dead letter: %w", err)
	}
	return &entry, nil
}
