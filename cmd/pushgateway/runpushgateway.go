package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/gasp-push-gateway/internal/api"
	"github.com/tinywideclouds/gasp-push-gateway/internal/provider/direct"
	"github.com/tinywideclouds/gasp-push-gateway/internal/provider/sns"
	"github.com/tinywideclouds/gasp-push-gateway/internal/receipts"
	"github.com/tinywideclouds/gasp-push-gateway/internal/registrar"
	"github.com/tinywideclouds/gasp-push-gateway/internal/registry"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
	"github.com/tinywideclouds/gasp-push-gateway/pushgateway"
	"github.com/tinywideclouds/gasp-push-gateway/pushgateway/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "gasp-push-gateway")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Provider Gateway ---
	var gateway push.Gateway
	switch cfg.Provider {
	case config.ProviderSNS:
		snsClient, err := sns.NewClient(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
		if err != nil {
			logger.Error("SNS client failed", "err", err)
			os.Exit(1)
		}
		gateway = sns.NewGateway(snsClient, logger)
		logger.Info("Push gateway initialized", "provider", config.ProviderSNS, "region", cfg.AWSRegion)
	case config.ProviderDirect:
		gateway = direct.NewGateway(logger)
		logger.Info("Push gateway initialized", "provider", config.ProviderDirect)
	}

	// --- Platform Applications & Registries ---
	creds := cfg.PlatformCredentials()
	platforms := make([]push.Platform, 0, len(creds))
	for _, p := range push.Platforms {
		if _, ok := creds[p]; ok {
			platforms = append(platforms, p)
		}
	}
	registries := registry.NewSet(platforms)

	reg, err := registrar.Bootstrap(ctx, gateway, registries, cfg.ApplicationName, creds, logger)
	if err != nil {
		logger.Error("Platform application bootstrap failed", "err", err)
		os.Exit(1)
	}
	logger.Info("Platform applications ready", "platforms", reg.Platforms())

	// --- Broadcast Receipts (optional) ---
	var receiptStore *receipts.Store
	if cfg.Redis.Enabled {
		logger.Info("Initializing broadcast receipt store...", "addr", cfg.Redis.Addr)
		receiptStore, err = receipts.NewStore(
			cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.ReceiptTTL)*time.Hour,
		)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer func() { _ = receiptStore.Close() }()
	}

	// --- Consumer & Service ---
	var consumer messagepipeline.MessageConsumer
	if cfg.SubscriptionID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer func() { _ = psClient.Close() }()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Ingestion consumer failed", "err", err)
			os.Exit(1)
		}
	}

	service, err := pushgateway.New(cfg, consumer, gateway, reg, registries, storeOrNil(receiptStore), logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// storeOrNil avoids handing the service a typed-nil interface when the
// receipt store is disabled.
func storeOrNil(s *receipts.Store) api.ReceiptStore {
	if s == nil {
		return nil
	}
	return s
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
