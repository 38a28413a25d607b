package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	mgr := NewManager()
	if err := mgr.Load(t.TempDir()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rc := mgr.Get()
	if rc.MemoryBudgetFraction != 0.8 {
		t.Fatalf("MemoryBudgetFraction = %v, want default 0.8", rc.MemoryBudgetFraction)
	}
	if rc.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want default info", rc.LogLevel)
	}
	if rc.SealRetries != 3 {
		t.Fatalf("SealRetries = %d, want default 3", rc.SealRetries)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := "memory_budget_fraction: 0.5\nlog_level: debug\nseal_retries: 7\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}

	mgr := NewManager()
	if err := mgr.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rc := mgr.Get()
	if rc.MemoryBudgetFraction != 0.5 {
		t.Fatalf("MemoryBudgetFraction = %v, want 0.5", rc.MemoryBudgetFraction)
	}
	if rc.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", rc.LogLevel)
	}
	if rc.SealRetries != 7 {
		t.Fatalf("SealRetries = %d, want 7", rc.SealRetries)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "memory_budget_fraction: 0.5\nlog_level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
	os.Setenv("GLYCIN_MEMORY_BUDGET_FRACTION", "0.3")
	os.Setenv("GLYCIN_LOG_LEVEL", "warn")
	defer os.Unsetenv("GLYCIN_MEMORY_BUDGET_FRACTION")
	defer os.Unsetenv("GLYCIN_LOG_LEVEL")

	mgr := NewManager()
	if err := mgr.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rc := mgr.Get()
	if rc.MemoryBudgetFraction != 0.3 {
		t.Fatalf("MemoryBudgetFraction = %v, want env override 0.3", rc.MemoryBudgetFraction)
	}
	if rc.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want env override warn", rc.LogLevel)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager()
	mgr.base.MemoryBudgetFraction = 0.65
	mgr.base.LogLevel = "error"
	if err := mgr.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mgr2 := NewManager()
	if err := mgr2.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rc := mgr2.Get()
	if rc.MemoryBudgetFraction != 0.65 {
		t.Fatalf("MemoryBudgetFraction = %v, want 0.65", rc.MemoryBudgetFraction)
	}
	if rc.LogLevel != "error" {
		t.Fatalf("LogLevel = %q, want error", rc.LogLevel)
	}
}
