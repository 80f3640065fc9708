package config

import (
	"log"

	"gopkg.in/yaml.v3"

	"mailtriage/pkg/config"
)

type Config struct {
	Server       config.ServerConfig       `yaml:"server"`
	DB           config.DBConfig           `yaml:"db"`
	Redis        config.RedisConfig        `yaml:"redis"`
	Graph        config.GraphConfig        `yaml:"graph"`
	LLM          config.LLMConfig          `yaml:"llm"`
	Webhook      config.WebhookConfig      `yaml:"webhook"`
	Subscription config.SubscriptionConfig `yaml:"subscription"`
}

func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	// env vars take precedence over files
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideGraphFromEnv(&cfg.Graph)
	config.OverrideLLMFromEnv(&cfg.LLM)
	config.OverrideWebhookFromEnv(&cfg.Webhook)

	if cfg.Subscription.LifetimeMinutes == 0 {
		// provider maximum for mailbox message resources (~3 days)
		cfg.Subscription.LifetimeMinutes = 4230
	}
	if cfg.Subscription.RenewalWindowHours == 0 {
		cfg.Subscription.RenewalWindowHours = 48
	}

	return &cfg
}
