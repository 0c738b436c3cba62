package db

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"gorm.io/gorm"

	"pageinsight/internal/config"
)

// APIKey is a bearer token accepted by the analytics routes.
type APIKey struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Name is a user-friendly identifier for this key (e.g. "marketing-site").
	Name string `gorm:"size:128;not null" json:"name"`

	// Key is the actual bearer token value. It is only ever returned once,
	// by CreateAPIKey.
	Key string `gorm:"uniqueIndex;size:255;not null" json:"-"`

	// Active indicates whether this key is currently enabled.
	Active bool `json:"active"`
}

// EnsureBootstrapAPIKey makes sure the key from config exists and is
// active. Nothing happens when no key is configured.
func EnsureBootstrapAPIKey(db *gorm.DB, cfg *config.Config) error {
	if cfg.APIKey == "" {
		return nil
	}

	// Use Find so "not found" doesn't log as error.
	var existing APIKey
	if err := db.Where("key = ?", cfg.APIKey).Limit(1).Find(&existing).Error; err != nil {
		return err
	}
	if existing.ID != 0 {
		if existing.Active {
			return nil
		}
		return db.Model(&existing).Update("active", true).Error
	}

	return db.Create(&APIKey{
		Name:   "bootstrap",
		Key:    cfg.APIKey,
		Active: true,
	}).Error
}

// ErrInvalidAPIKey is returned when a token matches no active key.
var ErrInvalidAPIKey = errors.New("invalid API key")

// FindActiveAPIKey looks up an enabled key by token.
func FindActiveAPIKey(ctx context.Context, db *gorm.DB, token string) (*APIKey, error) {
	var key APIKey
	err := db.WithContext(ctx).Where("key = ? AND active = ?", token, true).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

var (
	// ErrAPIKeyNotFound is returned by the management helpers for unknown ids.
	ErrAPIKeyNotFound = errors.New("API key not found")
	// ErrProtectedAPIKey guards the bootstrap key against removal.
	ErrProtectedAPIKey = errors.New("the bootstrap API key cannot be changed")
)

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "pi_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// CreateAPIKey stores a fresh random key under name.
func CreateAPIKey(ctx context.Context, db *gorm.DB, name string) (*APIKey, error) {
	token, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	key := &APIKey{Name: name, Key: token, Active: true}
	if err := db.WithContext(ctx).Create(key).Error; err != nil {
		return nil, err
	}
	return key, nil
}

func ListAPIKeys(ctx context.Context, db *gorm.DB) ([]APIKey, error) {
	var keys []APIKey
	err := db.WithContext(ctx).Order("id").Find(&keys).Error
	return keys, err
}

// loadAPIKey fetches a key by id, refusing the one whose token is protected.
func loadAPIKey(ctx context.Context, db *gorm.DB, id uint, protected string) (*APIKey, error) {
	var key APIKey
	err := db.WithContext(ctx).First(&key, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	if protected != "" && key.Key == protected {
		return nil, ErrProtectedAPIKey
	}
	return &key, nil
}

// SetAPIKeyActive enables or disables a key other than protected.
func SetAPIKeyActive(ctx context.Context, db *gorm.DB, id uint, active bool, protected string) (*APIKey, error) {
	key, err := loadAPIKey(ctx, db, id, protected)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(key).Update("active", active).Error; err != nil {
		return nil, err
	}
	key.Active = active
	return key, nil
}

// DeleteAPIKey removes a key other than protected and returns it.
func DeleteAPIKey(ctx context.Context, db *gorm.DB, id uint, protected string) (*APIKey, error) {
	key, err := loadAPIKey(ctx, db, id, protected)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(key).Error; err != nil {
		return nil, err
	}
	return key, nil
}
