package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"messageflow-backend/internal/model"
)

// DBStore keeps licenses in the licenses table. Every Put commits on its
// own, so Save has nothing left to flush.
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Load(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.License{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count licenses: %w", err)
	}
	log.Info().Int64("count", count).Msg("Licenses loaded")
	return nil
}

func (s *DBStore) Save(_ context.Context) error {
	return nil
}

func (s *DBStore) Get(ctx context.Context, key string) (*model.License, error) {
	var license model.License
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&license).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return &license, nil
}

func (s *DBStore) Put(ctx context.Context, license *model.License) error {
	if license == nil || license.Key == "" {
		return ErrInvalidRecord
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(license).Error
	if err != nil {
		return fmt.Errorf("put license: %w", err)
	}
	return nil
}

func (s *DBStore) FindBySession(ctx context.Context, sessionID string) (*model.License, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	var license model.License
	err := s.db.WithContext(ctx).
		Where("stripe_session_id = ?", sessionID).
		Order("purchase_date ASC").
		First(&license).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find license by session: %w", err)
	}
	return &license, nil
}

func (s *DBStore) List(ctx context.Context) ([]model.License, error) {
	var licenses []model.License
	if err := s.db.WithContext(ctx).Order("purchase_date ASC, key ASC").Find(&licenses).Error; err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	return licenses, nil
}

func (s *DBStore) SetActive(ctx context.Context, key string, active bool) (*model.License, error) {
	var license model.License
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ?", key).First(&license).Error; err != nil {
			return err
		}
		license.Active = active
		return tx.Model(&model.License{}).Where("key = ?", key).Update("active", active).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set license active: %w", err)
	}
	return &license, nil
}

func (s *DBStore) Len() int {
	var count int64
	if err := s.db.Model(&model.License{}).Count(&count).Error; err != nil {
		log.Error().Err(err).Msg("Failed to count licenses")
		return 0
	}
	return int(count)
}
