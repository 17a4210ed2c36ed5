package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONConfigSuccessClient(t *testing.T) {
	path := writeTempClientConfig(t, `{"serveraddr":"2.2.2.2:29900","password":"secret","timeout":12.5,"updaterate":64,"reconnect":true,"statslog":"./stats.log","statsperiod":30}`)

	var cfg Config
	if err := parseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("parseJSONConfig returned error: %v", err)
	}

	if cfg.ServerAddr != "2.2.2.2:29900" {
		t.Fatalf("unexpected server address: %+v", cfg)
	}

	if cfg.Password != "secret" || !cfg.Reconnect {
		t.Fatalf("unexpected field values: %+v", cfg)
	}

	if cfg.Timeout != 12.5 || cfg.UpdateRate != 64 || cfg.StatsPeriod != 30 {
		t.Fatalf("unexpected numeric fields: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFileClient(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := parseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("parseJSONConfig expected error for missing file")
	}
}

func writeTempClientConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
