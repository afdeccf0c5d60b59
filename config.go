package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr      string `yaml:"listen_addr"`
	ServiceUsername string `yaml:"service_username"`
	ServicePassword string `yaml:"service_password"`

	MCPServerURL string `yaml:"mcp_server_url"`
	MCPUsername  string `yaml:"mcp_username"`
	MCPPassword  string `yaml:"mcp_password"`

	LLMProvider        string `yaml:"llm_provider"`
	LLMModel           string `yaml:"llm_model"`
	AnthropicAPIKey    string `yaml:"anthropic_api_key"`
	OpenAIAPIKey       string `yaml:"openai_api_key"`
	MaxTokens          int    `yaml:"max_tokens"`
	EvalTimeoutSeconds int    `yaml:"eval_timeout_seconds"`

	CorrelationMinutes int  `yaml:"correlation_minutes"`
	StoreRedmine       bool `yaml:"store_redmine"`

	ClickHouseAddr        string `yaml:"clickhouse_addr"`
	ClickHouseUser        string `yaml:"clickhouse_user"`
	ClickHousePassword    string `yaml:"clickhouse_password"`
	ClickHouseDatabase    string `yaml:"clickhouse_database"`
	ClickHouseCreateTable bool   `yaml:"clickhouse_create_table"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	DigestChannelID string `yaml:"digest_channel_id"`
	DigestSchedule  string `yaml:"digest_schedule"`
}

func LoadConfig() Config {
	var cfg Config

	// Bool fields that default to true must be set before unmarshal.
	cfg.StoreRedmine = true

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.ServiceUsername, "SERVICE_USERNAME")
	envOverride(&cfg.ServicePassword, "SERVICE_PASSWORD")
	envOverride(&cfg.MCPServerURL, "MCP_SERVER_URL")
	envOverride(&cfg.MCPUsername, "MCP_USERNAME")
	envOverride(&cfg.MCPPassword, "MCP_PASSWORD")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.MaxTokens, "MAX_TOKENS")
	envOverrideInt(&cfg.EvalTimeoutSeconds, "EVAL_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.CorrelationMinutes, "CORRELATION_MINUTES")
	envOverrideBool(&cfg.StoreRedmine, "STORE_REDMINE")
	envOverride(&cfg.ClickHouseAddr, "CLICKHOUSE_ADDR")
	envOverride(&cfg.ClickHouseUser, "CLICKHOUSE_USER")
	envOverride(&cfg.ClickHousePassword, "CLICKHOUSE_PASSWORD")
	envOverride(&cfg.ClickHouseDatabase, "CLICKHOUSE_DATABASE")
	envOverrideBool(&cfg.ClickHouseCreateTable, "CLICKHOUSE_CREATE_TABLE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.DigestChannelID, "DIGEST_CHANNEL_ID")
	envOverride(&cfg.DigestSchedule, "DIGEST_SCHEDULE")

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8001"
	}
	if cfg.ServiceUsername == "" {
		cfg.ServiceUsername = "evaluator"
	}
	if cfg.ServicePassword == "" {
		cfg.ServicePassword = "changeme"
	}
	if cfg.MCPServerURL == "" {
		cfg.MCPServerURL = "http://redmine-mcp-server:8000"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.EvalTimeoutSeconds == 0 {
		cfg.EvalTimeoutSeconds = 300
	}
	if cfg.CorrelationMinutes == 0 {
		cfg.CorrelationMinutes = 60
	}
	if cfg.ClickHouseDatabase == "" {
		cfg.ClickHouseDatabase = "mnoc_prod"
	}
	if cfg.DigestSchedule == "" {
		cfg.DigestSchedule = "0 9 * * *"
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if cfg.EvalTimeoutSeconds < 1 {
		log.Fatalf("invalid eval_timeout_seconds '%d': must be >= 1", cfg.EvalTimeoutSeconds)
	}
	if cfg.CorrelationMinutes < 1 {
		log.Fatalf("invalid correlation_minutes '%d': must be >= 1", cfg.CorrelationMinutes)
	}
	if cfg.MaxTokens < 1 {
		log.Fatalf("invalid max_tokens '%d': must be >= 1", cfg.MaxTokens)
	}
	if cfg.DigestChannelID != "" && cfg.SlackBotToken == "" {
		log.Fatalf("slack_bot_token is required when digest_channel_id is set")
	}

	return cfg
}

// ClickHouseEnabled reports whether the analytics path is configured.
func (c Config) ClickHouseEnabled() bool {
	return c.ClickHouseAddr != "" && c.ClickHouseUser != ""
}

func (c Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutSeconds) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
