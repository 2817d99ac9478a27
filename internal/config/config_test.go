package config_test

import (
	"strings"
	"testing"

	"vn.io.arda/idbridge/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}
	if cfg.Bridge.Mode != config.ModeRest {
		t.Fatalf("default mode = %q, want rest", cfg.Bridge.Mode)
	}
	if cfg.Realms.AdminRealm != "master" {
		t.Fatalf("default admin realm = %q", cfg.Realms.AdminRealm)
	}
	if cfg.Cache.ProfileTTLSeconds != 60 {
		t.Fatalf("default profile ttl = %d", cfg.Cache.ProfileTTLSeconds)
	}
	if cfg.Remote.AuthEndpoint != "/auth/token" {
		t.Fatalf("default auth endpoint = %q", cfg.Remote.AuthEndpoint)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("BRIDGE_MODE", "database")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.Mode != config.ModeDatabase {
		t.Fatalf("mode = %q, want database", cfg.Bridge.Mode)
	}
	if cfg.Database.Host != "db.internal" {
		t.Fatalf("host = %q, want db.internal", cfg.Database.Host)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := validBase()
	cfg.Bridge.Mode = "ldap"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestValidateRestMode(t *testing.T) {
	cfg := validBase()
	cfg.Remote.BaseURL = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}

	cfg = validBase()
	cfg.Remote.BaseURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed base URL")
	}

	cfg = validBase()
	cfg.Remote.TimeoutMS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}
}

func TestValidateDatabaseMode(t *testing.T) {
	cfg := validBase()
	cfg.Bridge.Mode = config.ModeDatabase
	cfg.Database.PoolSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero pool size")
	}

	cfg = validBase()
	cfg.Bridge.Mode = config.ModeDatabase
	cfg.Database.PoolSize = 10
	cfg.Database.AttributeMappings = []string{"department"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for mapping without colon")
	}
}

func validBase() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{Mode: config.ModeRest},
		Remote: config.RemoteConfig{
			BaseURL:      "http://erp.local:8080/rest",
			AuthEndpoint: "/auth/token",
			UserEndpoint: "/services/getUserInfo",
			TimeoutMS:    5000,
		},
		Cache: config.CacheConfig{ProfileTTLSeconds: 60},
	}
}
