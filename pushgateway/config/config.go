package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// Provider selects the gateway backend.
const (
	ProviderSNS    = "sns"
	ProviderDirect = "direct"
)

// DefaultApplicationName is the provider-side name for this app when the
// config does not override it.
const DefaultApplicationName = "gasp-snsmobile-service"

type RedisConfig struct {
	Enabled    bool
	Addr       string
	Password   string
	DB         int
	ReceiptTTL int // hours
}

// APNSConfig carries the Apple push certificate and key as PEM strings.
// Sandbox routes registrations through the APNS_SANDBOX variant.
type APNSConfig struct {
	Certificate string
	Key         string
	Sandbox     bool
}

// GCMConfig holds the single Google secret: the server API key for the SNS
// provider, or the service-account JSON for the direct provider.
type GCMConfig struct {
	APIKey string
}

// ADMConfig holds the Amazon Device Messaging OAuth pair. Only the SNS
// provider can deliver to ADM.
type ADMConfig struct {
	ClientID     string
	ClientSecret string
}

// Config defines the single, authoritative configuration.
type Config struct {
	ProjectID       string
	ListenAddr      string
	ApplicationName string
	Provider        string
	AWSRegion       string

	// Explicit AWS key pair; when empty the SDK's default chain applies.
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	APNS APNSConfig
	GCM  GCMConfig
	ADM  ADMConfig

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig

	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// PlatformCredentials maps the configured secrets onto the platform
// variants: certificate platforms get a principal, single-secret platforms
// do not.
func (c *Config) PlatformCredentials() map[push.Platform]push.Credentials {
	creds := make(map[push.Platform]push.Credentials)
	if c.APNS.Certificate != "" || c.APNS.Key != "" {
		platform := push.PlatformAPNS
		if c.APNS.Sandbox {
			platform = push.PlatformAPNSSandbox
		}
		creds[platform] = push.Credentials{Principal: c.APNS.Certificate, Credential: c.APNS.Key}
	}
	if c.GCM.APIKey != "" {
		creds[push.PlatformGCM] = push.Credentials{Credential: c.GCM.APIKey}
	}
	if c.ADM.ClientID != "" || c.ADM.ClientSecret != "" {
		creds[push.PlatformADM] = push.Credentials{Principal: c.ADM.ClientID, Credential: c.ADM.ClientSecret}
	}
	return creds
}

// UpdateConfigWithEnvOverrides applies environment variables and final
// validation. Missing credentials or application name are fatal here, at
// startup, never per-request.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	override := func(key string, target *string) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*target = val
		}
	}

	override("PROJECT_ID", &cfg.ProjectID)
	override("APPLICATION_NAME", &cfg.ApplicationName)
	override("PUSH_PROVIDER", &cfg.Provider)
	override("AWS_REGION", &cfg.AWSRegion)
	override("AWS_ACCESS_KEY_ID", &cfg.AWSAccessKeyID)
	override("AWS_SECRET_ACCESS_KEY", &cfg.AWSSecretAccessKey)
	override("APNS_CERTIFICATE", &cfg.APNS.Certificate)
	override("APNS_KEY", &cfg.APNS.Key)
	override("GCM_API_KEY", &cfg.GCM.APIKey)
	override("ADM_CLIENT_ID", &cfg.ADM.ClientID)
	override("ADM_CLIENT_SECRET", &cfg.ADM.ClientSecret)
	override("SUBSCRIPTION_DLQ_TOPIC_ID", &cfg.SubscriptionDLQTopicID)

	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("APNS_SANDBOX"); val != "" {
		sandbox, _ := strconv.ParseBool(val)
		cfg.APNS.Sandbox = sandbox
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			cfg.NumPipelineWorkers = workers
		}
	}

	// Redis overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// CORS overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// Final validation
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = DefaultApplicationName
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderSNS
	}
	if cfg.Provider != ProviderSNS && cfg.Provider != ProviderDirect {
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
	if cfg.Provider == ProviderSNS && cfg.AWSRegion == "" {
		return nil, fmt.Errorf("aws_region is required for the sns provider (set via YAML or AWS_REGION env var)")
	}
	if len(cfg.PlatformCredentials()) == 0 {
		return nil, fmt.Errorf("no platform credentials configured; at least one of APNS, GCM or ADM is required")
	}
	if cfg.APNS.Certificate != "" && cfg.APNS.Key == "" {
		return nil, fmt.Errorf("apns certificate configured without its key")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Redis.ReceiptTTL <= 0 {
		cfg.Redis.ReceiptTTL = 24
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}
	if cfg.SubscriptionID != "" && cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required when a subscription is configured")
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
