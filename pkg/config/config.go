package config

import (
	"os"
	"strconv"
)

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// GraphConfig identifies the app registration and target mailbox at the
// mail provider.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Mailbox      string `yaml:"mailbox"`
}

// LLMConfig holds classifier provider settings.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// WebhookConfig holds the notification endpoint settings. ClientState is
// the shared secret echoed back by the provider in every notification.
type WebhookConfig struct {
	ClientState string `yaml:"client_state"`
	PublicURL   string `yaml:"public_url"`
}

// SubscriptionConfig controls change-notification subscription lifetime
// and the window before expiry in which renewal is attempted.
type SubscriptionConfig struct {
	LifetimeMinutes    int `yaml:"lifetime_minutes"`
	RenewalWindowHours int `yaml:"renewal_window_hours"`
}

// OverrideDBFromEnv applies environment variable overrides.
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideRedisFromEnv applies environment variable overrides.
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideServerFromEnv applies environment variable overrides.
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideGraphFromEnv applies environment variable overrides.
func OverrideGraphFromEnv(cfg *GraphConfig) {
	if v := os.Getenv("MS_TENANT_ID"); v != "" {
		cfg.TenantID = v
	}
	if v := os.Getenv("MS_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("MS_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("MS_USER_EMAIL"); v != "" {
		cfg.Mailbox = v
	}
}

// OverrideLLMFromEnv applies environment variable overrides.
func OverrideLLMFromEnv(cfg *LLMConfig) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Model = v
	}
}

// OverrideWebhookFromEnv applies environment variable overrides.
func OverrideWebhookFromEnv(cfg *WebhookConfig) {
	if v := os.Getenv("WEBHOOK_CLIENT_STATE"); v != "" {
		cfg.ClientState = v
	}
	if v := os.Getenv("WEBHOOK_PUBLIC_URL"); v != "" {
		cfg.PublicURL = v
	}
}
