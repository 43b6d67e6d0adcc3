package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethoslog/internal/progress"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LISTEN_ADDR", "DATABASE_PATH", "TASK_BASE_XP", "REVERSAL_LOOKBACK_DAYS", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "ethoslog.db" {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.TaskBaseXP != 10 {
		t.Fatalf("unexpected base xp: %d", cfg.TaskBaseXP)
	}
	if cfg.ReversalLookback != 7*24*time.Hour {
		t.Fatalf("unexpected lookback: %s", cfg.ReversalLookback)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("TASK_BASE_XP", "15")
	t.Setenv("REVERSAL_LOOKBACK_DAYS", "3")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg := Load()
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.TaskBaseXP != 15 {
		t.Fatalf("unexpected base xp: %d", cfg.TaskBaseXP)
	}
	if cfg.ReversalLookback != 72*time.Hour {
		t.Fatalf("unexpected lookback: %s", cfg.ReversalLookback)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("unexpected log format: %s", cfg.LogFormat)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("TASK_BASE_XP", "-1")
	if err := Load().Validate(); err == nil {
		t.Fatal("expected negative base xp to fail validation")
	}
}

func TestLoadCatalogDefault(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog returned error: %v", err)
	}
	def, ok := catalog.Get("first_task")
	if !ok {
		t.Fatal("expected first_task in default catalog")
	}
	if !def.RequiresClaim {
		t.Fatal("expected first_task to require a claim")
	}
	push, ok := catalog.Get("push_5")
	if !ok || push.Requirement.Category != progress.CategoryPush {
		t.Fatalf("unexpected push_5 definition: %+v", push)
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := []byte(`achievements:
  - id: ten_workouts
    title: Ten
    xp_reward: 5
    requirement:
      metric: workouts_completed
      threshold: 10
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog returned error: %v", err)
	}
	if len(catalog.All()) != 1 {
		t.Fatalf("expected 1 achievement, got %d", len(catalog.All()))
	}
}

func TestCatalogFromYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":          "achievements: []",
		"missing title":  "achievements:\n  - id: a\n    requirement: {metric: level, threshold: 2}",
		"unknown metric": "achievements:\n  - id: a\n    title: A\n    requirement: {metric: steps, threshold: 2}",
		"bad category":   "achievements:\n  - id: a\n    title: A\n    requirement: {metric: category_level, category: arms, threshold: 2}",
		"duplicate":      "achievements:\n  - id: a\n    title: A\n    requirement: {metric: level, threshold: 2}\n  - id: a\n    title: B\n    requirement: {metric: level, threshold: 3}",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := CatalogFromYAML([]byte(data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
