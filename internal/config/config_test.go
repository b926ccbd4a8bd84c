package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.MaxRetry != 3 {
		t.Errorf("Expected default max retry 3, got %d", cfg.MaxRetry)
	}
	if cfg.Workers != 4 || cfg.QueueSize != 64 {
		t.Errorf("Expected default pool sizing, got workers=%d queue=%d", cfg.Workers, cfg.QueueSize)
	}
	if cfg.Sandbox.Image != "sandbox:latest" {
		t.Errorf("Expected default sandbox image, got %s", cfg.Sandbox.Image)
	}
	if cfg.Sandbox.MemoryLimitMB != 512 {
		t.Errorf("Expected default memory limit 512, got %d", cfg.Sandbox.MemoryLimitMB)
	}
	if cfg.Sandbox.RunTimeout != 10*time.Minute {
		t.Errorf("Expected default run timeout, got %v", cfg.Sandbox.RunTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_RETRY", "5")
	t.Setenv("SANDBOX_RUN_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.MaxRetry != 5 {
		t.Errorf("Expected max retry 5, got %d", cfg.MaxRetry)
	}
	if cfg.Sandbox.RunTimeout != 30*time.Second {
		t.Errorf("Expected 30s run timeout, got %v", cfg.Sandbox.RunTimeout)
	}
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Expected missing API key to fail validation")
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("MAX_RETRY", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxRetry != 3 {
		t.Errorf("Expected fallback max retry 3, got %d", cfg.MaxRetry)
	}
}

func TestValidate_RejectsNegativeRetry(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("MAX_RETRY", "-1")

	if _, err := Load(); err == nil {
		t.Error("Expected negative max retry to fail validation")
	}
}

func TestIsDevelopment(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://masim.example.com", false},
	}
	for _, tc := range cases {
		cfg := &Config{FrontendURL: tc.url}
		if got := cfg.IsDevelopment(); got != tc.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
