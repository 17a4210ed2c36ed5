package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONConfigSuccess(t *testing.T) {
	path := writeTempConfig(t, `{"port":29900,"password":"secret","passwordrequired":true,"timeout":12.5,"updaterate":64,"statslog":"./stats.log","statsperiod":30}`)

	var cfg Config
	if err := parseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("parseJSONConfig returned error: %v", err)
	}

	if cfg.Port != 29900 {
		t.Fatalf("unexpected port: %+v", cfg)
	}

	if cfg.Password != "secret" || !cfg.PasswordRequired {
		t.Fatalf("expected password fields to be populated: %+v", cfg)
	}

	if cfg.Timeout != 12.5 || cfg.UpdateRate != 64 || cfg.StatsPeriod != 30 {
		t.Fatalf("unexpected numeric fields: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFile(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := parseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("parseJSONConfig expected error for missing file")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
