package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.App.BaseURL == "" {
		t.Fatal("expected a default base URL")
	}
	if cfg.App.AnonExpiryMonths != 6 {
		t.Fatalf("expected default expiry of 6 months, got %d", cfg.App.AnonExpiryMonths)
	}
	if cfg.App.CustomLinkQuota != 5 {
		t.Fatalf("expected default quota of 5, got %d", cfg.App.CustomLinkQuota)
	}
	if cfg.SafeBrowsing.Endpoint == "" {
		t.Fatal("expected a default Safe Browsing endpoint")
	}
	if cfg.SafeBrowsing.CacheTTL != "1h" {
		t.Fatalf("expected default cache TTL of 1h, got %q", cfg.SafeBrowsing.CacheTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PUBLIC_BASE_URL", "https://lit.example")
	t.Setenv("CUSTOM_LINK_QUOTA", "10")
	t.Setenv("ENABLE_SAFE_BROWSING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.App.BaseURL != "https://lit.example" {
		t.Fatalf("expected env override for base URL, got %q", cfg.App.BaseURL)
	}
	if cfg.App.CustomLinkQuota != 10 {
		t.Fatalf("expected env override for quota, got %d", cfg.App.CustomLinkQuota)
	}
	if !cfg.SafeBrowsing.Enabled {
		t.Fatal("expected Safe Browsing to be enabled via env")
	}
}
