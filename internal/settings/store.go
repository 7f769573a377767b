// Package settings persists the CRM credentials the lookup pipeline needs.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whatsapp-crm-lookup/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyAPIKey     = "ghlApiKey"
	KeyLocationID = "ghlLocationId"
)

var ErrIncomplete = errors.New("api key and location id are both required")

// Credentials scope every CRM lookup. Both fields are required for the
// pipeline to do anything.
type Credentials struct {
	APIKey     string `json:"apiKey"`
	LocationID string `json:"locationId"`
}

func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.LocationID != ""
}

// MaskAPIKey hides all but the last four characters of a key. Short keys
// are hidden entirely; an empty key stays empty.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// Static serves fixed credentials, e.g. from command-line flags.
type Static Credentials

func (s Static) Get(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns whatever is stored. Missing keys come back as empty strings.
func (s *Store) Get(ctx context.Context) (Credentials, error) {
	var rows []models.SystemSetting
	err := s.db.WithContext(ctx).
		Where("key IN ?", []string{KeyAPIKey, KeyLocationID}).
		Find(&rows).Error
	if err != nil {
		return Credentials{}, fmt.Errorf("read settings: %w", err)
	}

	var creds Credentials
	for _, row := range rows {
		switch row.Key {
		case KeyAPIKey:
			creds.APIKey = row.Value
		case KeyLocationID:
			creds.LocationID = row.Value
		}
	}
	return creds, nil
}

// Set trims and saves both values. Either one empty yields ErrIncomplete and
// nothing is written.
func (s *Store) Set(ctx context.Context, creds Credentials) error {
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.LocationID = strings.TrimSpace(creds.LocationID)
	if !creds.Complete() {
		return ErrIncomplete
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range []models.SystemSetting{
			{Key: KeyAPIKey, Value: creds.APIKey},
			{Key: KeyLocationID, Value: creds.LocationID},
		} {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("save %s: %w", row.Key, err)
			}
		}
		return nil
	})
}

// Seed copies non-empty environment values into keys that are not stored yet.
// Stored values win over the environment.
func (s *Store) Seed(ctx context.Context, creds Credentials) error {
	for _, seed := range []models.SystemSetting{
		{Key: KeyAPIKey, Value: strings.TrimSpace(creds.APIKey)},
		{Key: KeyLocationID, Value: strings.TrimSpace(creds.LocationID)},
	} {
		if seed.Value == "" {
			continue
		}
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&seed).Error
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed.Key, err)
		}
	}
	return nil
}
