package config

import (
	"path/filepath"
	"sync"
	"testing"
)

func resetGlobal() {
	current = nil
	once = *new(sync.Once)
}

func TestInitialize(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	path := writeConfig(t, "policy:\n  mode: \"LEGAL\"\naudit:\n  backend: memory\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("GetConfig() = nil after Initialize")
	}
	if cfg.Policy.Mode != "LEGAL" {
		t.Errorf("Policy.Mode = %q, want LEGAL", cfg.Policy.Mode)
	}
}

func TestInitialize_MultipleCallsIgnored(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	first := writeConfig(t, "policy:\n  mode: \"LEGAL\"\n")
	second := writeConfig(t, "policy:\n  mode: \"HEALTHCARE\"\n")

	if err := Initialize(first); err != nil {
		t.Fatalf("Initialize(first) error = %v", err)
	}
	if err := Initialize(second); err != nil {
		t.Fatalf("Initialize(second) error = %v", err)
	}
	if got := GetConfig().Policy.Mode; got != "LEGAL" {
		t.Errorf("Policy.Mode = %q, want LEGAL from the first call", got)
	}
}

func TestInitialize_MissingFileUsesDefaults(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	if err := Initialize(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := GetConfig().Policy.Mode; got != DefaultPolicyMode {
		t.Errorf("Policy.Mode = %q, want default", got)
	}
}

func TestReload(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	initial := NewDefaultConfig()
	SetConfig(initial)

	prev, next, err := Reload(writeConfig(t, "policy:\n  mode: \"FINANCIAL_SERVICES\"\n"))
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if prev != initial {
		t.Error("Reload() did not return the replaced configuration")
	}
	if next != GetConfig() || next.Policy.Mode != "FINANCIAL_SERVICES" {
		t.Errorf("Policy.Mode = %q after reload", GetConfig().Policy.Mode)
	}

	if _, _, err := Reload(writeConfig(t, "learning:\n  step: 3\n")); err == nil {
		t.Fatal("Reload() with invalid file error = nil")
	}
	if got := GetConfig().Policy.Mode; got != "FINANCIAL_SERVICES" {
		t.Errorf("failed reload replaced config: mode = %q", got)
	}
}

func TestGetConfig_Concurrent(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)
	SetConfig(NewDefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				SetConfig(NewDefaultConfig())
				return
			}
			if GetConfig() == nil {
				t.Error("GetConfig() = nil")
			}
		}(i)
	}
	wg.Wait()
}
