package config

import (
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Enabled    bool   `yaml:"enabled"`
	ReceiptTTL int    `yaml:"receipt_ttl_hours"`
}

type YamlAPNSConfig struct {
	Certificate string `yaml:"certificate"`
	Key         string `yaml:"key"`
	Sandbox     bool   `yaml:"sandbox"`
}

type YamlGCMConfig struct {
	APIKey string `yaml:"api_key"`
}

type YamlADMConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string          `yaml:"project_id"`
	ListenAddr             string          `yaml:"listen_addr"`
	ApplicationName        string          `yaml:"application_name"`
	Provider               string          `yaml:"provider"`
	AWSRegion              string          `yaml:"aws_region"`
	AWSAccessKeyID         string          `yaml:"aws_access_key_id"`
	AWSSecretAccessKey     string          `yaml:"aws_secret_access_key"`
	APNS                   YamlAPNSConfig  `yaml:"apns"`
	GCM                    YamlGCMConfig   `yaml:"gcm"`
	ADM                    YamlADMConfig   `yaml:"adm"`
	TopicID                string          `yaml:"topic_id"`
	SubscriptionID         string          `yaml:"subscription_id"`
	SubscriptionDLQTopicID string          `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig  `yaml:"cors"`
	RedisConfig            YamlRedisConfig `yaml:"redis"`
	NumPipelineWorkers     int             `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:       baseCfg.ProjectID,
		ListenAddr:      baseCfg.ListenAddr,
		ApplicationName: baseCfg.ApplicationName,
		Provider:        baseCfg.Provider,
		AWSRegion:       baseCfg.AWSRegion,

		AWSAccessKeyID:     baseCfg.AWSAccessKeyID,
		AWSSecretAccessKey: baseCfg.AWSSecretAccessKey,
		APNS: APNSConfig{
			Certificate: baseCfg.APNS.Certificate,
			Key:         baseCfg.APNS.Key,
			Sandbox:     baseCfg.APNS.Sandbox,
		},
		GCM: GCMConfig{APIKey: baseCfg.GCM.APIKey},
		ADM: ADMConfig{
			ClientID:     baseCfg.ADM.ClientID,
			ClientSecret: baseCfg.ADM.ClientSecret,
		},
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:       baseCfg.RedisConfig.Addr,
			Password:   baseCfg.RedisConfig.Password,
			DB:         baseCfg.RedisConfig.DB,
			Enabled:    baseCfg.RedisConfig.Enabled,
			ReceiptTTL: baseCfg.RedisConfig.ReceiptTTL,
		},
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"provider", cfg.Provider,
	)

	return cfg, nil
}
