package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfigFile(t, "anthropic_api_key: test-key\n"))
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg := LoadConfig()

	if cfg.ListenAddr != ":8001" {
		t.Fatalf("expected default listen addr :8001, got %s", cfg.ListenAddr)
	}
	if cfg.ServiceUsername != "evaluator" || cfg.ServicePassword != "changeme" {
		t.Fatalf("unexpected default credentials: %s/%s", cfg.ServiceUsername, cfg.ServicePassword)
	}
	if cfg.MCPServerURL != "http://redmine-mcp-server:8000" {
		t.Fatalf("unexpected default MCP URL: %s", cfg.MCPServerURL)
	}
	if cfg.LLMProvider != "anthropic" {
		t.Fatalf("expected default provider anthropic, got %s", cfg.LLMProvider)
	}
	if cfg.MaxTokens != 4096 {
		t.Fatalf("expected default max_tokens 4096, got %d", cfg.MaxTokens)
	}
	if cfg.EvalTimeout() != 5*time.Minute {
		t.Fatalf("expected default eval timeout 5m, got %s", cfg.EvalTimeout())
	}
	if cfg.CorrelationMinutes != 60 {
		t.Fatalf("expected default correlation window 60m, got %d", cfg.CorrelationMinutes)
	}
	if !cfg.StoreRedmine {
		t.Fatalf("store_redmine should default to true")
	}
	if cfg.ClickHouseDatabase != "mnoc_prod" {
		t.Fatalf("expected default database mnoc_prod, got %s", cfg.ClickHouseDatabase)
	}
	if cfg.DigestSchedule != "0 9 * * *" {
		t.Fatalf("unexpected default digest schedule: %s", cfg.DigestSchedule)
	}
	if cfg.ClickHouseEnabled() {
		t.Fatalf("clickhouse should be disabled without addr and user")
	}
}

func TestLoadConfigYAMLValues(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfigFile(t, `
listen_addr: ":9090"
anthropic_api_key: yaml-key
max_tokens: 2048
store_redmine: false
clickhouse_addr: "clickhouse:9000"
clickhouse_user: analytics
`))

	cfg := LoadConfig()

	if cfg.ListenAddr != ":9090" {
		t.Fatalf("yaml listen_addr not applied, got %s", cfg.ListenAddr)
	}
	if cfg.MaxTokens != 2048 {
		t.Fatalf("yaml max_tokens not applied, got %d", cfg.MaxTokens)
	}
	if cfg.StoreRedmine {
		t.Fatalf("yaml store_redmine=false not applied")
	}
	if !cfg.ClickHouseEnabled() {
		t.Fatalf("clickhouse should be enabled with addr and user set")
	}
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfigFile(t, `
listen_addr: ":9090"
anthropic_api_key: yaml-key
correlation_minutes: 30
`))
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("CORRELATION_MINUTES", "90")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("STORE_REDMINE", "false")

	cfg := LoadConfig()

	if cfg.ListenAddr != ":7070" {
		t.Fatalf("env should override yaml listen_addr, got %s", cfg.ListenAddr)
	}
	if cfg.CorrelationMinutes != 90 {
		t.Fatalf("env should override yaml correlation_minutes, got %d", cfg.CorrelationMinutes)
	}
	if cfg.AnthropicAPIKey != "env-key" {
		t.Fatalf("env should override yaml api key")
	}
	if cfg.StoreRedmine {
		t.Fatalf("STORE_REDMINE=false should disable the redmine sink")
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg := LoadConfig()
	if cfg.ListenAddr != ":8001" {
		t.Fatalf("missing config file should fall back to defaults, got %s", cfg.ListenAddr)
	}
	if cfg.AnthropicAPIKey != "env-key" {
		t.Fatalf("env api key not applied")
	}
}
