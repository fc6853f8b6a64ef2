package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.StoreBackend != "file" {
		t.Errorf("expected default store backend file, got %s", cfg.StoreBackend)
	}
	if cfg.BindingsFile != "data/bindings.json" {
		t.Errorf("unexpected default bindings file %s", cfg.BindingsFile)
	}
	if cfg.DefaultAssignedUserID != 1 {
		t.Errorf("expected default assigned user 1, got %d", cfg.DefaultAssignedUserID)
	}
	if cfg.RelatedEntityMode != "latest-active" {
		t.Errorf("unexpected default related entity mode %s", cfg.RelatedEntityMode)
	}
	if cfg.TokenRefreshInterval != time.Hour {
		t.Errorf("unexpected default refresh interval %s", cfg.TokenRefreshInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("DATA_DIR", "/var/lib/smsbridge")
	t.Setenv("DEFAULT_ASSIGNED_USER_ID", "42")
	t.Setenv("TOKEN_REFRESH_BEFORE", "30m")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.StoreBackend != "redis" {
		t.Errorf("expected lowercased backend redis, got %s", cfg.StoreBackend)
	}
	if cfg.BindingsFile != "/var/lib/smsbridge/bindings.json" {
		t.Errorf("bindings file should follow DATA_DIR, got %s", cfg.BindingsFile)
	}
	if cfg.DefaultAssignedUserID != 42 {
		t.Errorf("expected assigned user 42, got %d", cfg.DefaultAssignedUserID)
	}
	if cfg.TokenRefreshBefore != 30*time.Minute {
		t.Errorf("expected refresh-before 30m, got %s", cfg.TokenRefreshBefore)
	}
}

func TestGetEnvAsIntInvalid(t *testing.T) {
	t.Setenv("DEFAULT_ASSIGNED_USER_ID", "not-a-number")
	cfg := Load()
	if cfg.DefaultAssignedUserID != 1 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.DefaultAssignedUserID)
	}
}
