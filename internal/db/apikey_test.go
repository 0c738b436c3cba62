package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pageinsight/internal/config"
)

func TestEnsureBootstrapAPIKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cfg := &config.Config{APIKey: "secret-token"}

	if err := EnsureBootstrapAPIKey(db, cfg); err != nil {
		t.Fatalf("EnsureBootstrapAPIKey: %v", err)
	}
	key, err := FindActiveAPIKey(ctx, db, "secret-token")
	if err != nil {
		t.Fatalf("FindActiveAPIKey: %v", err)
	}
	if key.Name != "bootstrap" {
		t.Errorf("Name = %q, want bootstrap", key.Name)
	}

	// Deactivated keys are re-enabled, not duplicated.
	if err := db.Model(key).Update("active", false).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := FindActiveAPIKey(ctx, db, "secret-token"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("inactive key lookup err = %v, want ErrInvalidAPIKey", err)
	}
	if err := EnsureBootstrapAPIKey(db, cfg); err != nil {
		t.Fatalf("second EnsureBootstrapAPIKey: %v", err)
	}
	var count int64
	db.Model(&APIKey{}).Count(&count)
	if count != 1 {
		t.Errorf("api key rows = %d, want 1", count)
	}
	if _, err := FindActiveAPIKey(ctx, db, "secret-token"); err != nil {
		t.Errorf("key should be active again: %v", err)
	}
}

func TestEnsureBootstrapAPIKey_NoKeyConfigured(t *testing.T) {
	db := newTestDB(t)
	if err := EnsureBootstrapAPIKey(db, &config.Config{}); err != nil {
		t.Fatalf("EnsureBootstrapAPIKey: %v", err)
	}
	var count int64
	db.Model(&APIKey{}).Count(&count)
	if count != 0 {
		t.Errorf("no key should be created, got %d", count)
	}
}

func TestAPIKeyManagement(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cfg := &config.Config{APIKey: "boot"}
	if err := EnsureBootstrapAPIKey(db, cfg); err != nil {
		t.Fatal(err)
	}

	created, err := CreateAPIKey(ctx, db, "marketing-site")
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if !strings.HasPrefix(created.Key, "pi_") || !created.Active {
		t.Errorf("created = %+v", created)
	}
	if _, err := FindActiveAPIKey(ctx, db, created.Key); err != nil {
		t.Errorf("new key should authenticate: %v", err)
	}

	keys, err := ListAPIKeys(ctx, db)
	if err != nil || len(keys) != 2 {
		t.Fatalf("ListAPIKeys = %d keys, %v", len(keys), err)
	}

	if _, err := SetAPIKeyActive(ctx, db, created.ID, false, cfg.APIKey); err != nil {
		t.Fatalf("SetAPIKeyActive: %v", err)
	}
	if _, err := FindActiveAPIKey(ctx, db, created.Key); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("disabled key lookup err = %v", err)
	}

	boot := keys[0]
	if _, err := DeleteAPIKey(ctx, db, boot.ID, cfg.APIKey); !errors.Is(err, ErrProtectedAPIKey) {
		t.Errorf("deleting bootstrap key err = %v, want ErrProtectedAPIKey", err)
	}
	if _, err := SetAPIKeyActive(ctx, db, boot.ID, false, cfg.APIKey); !errors.Is(err, ErrProtectedAPIKey) {
		t.Errorf("disabling bootstrap key err = %v, want ErrProtectedAPIKey", err)
	}

	if _, err := DeleteAPIKey(ctx, db, created.ID, cfg.APIKey); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if _, err := DeleteAPIKey(ctx, db, created.ID, cfg.APIKey); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("second delete err = %v, want ErrAPIKeyNotFound", err)
	}
}
