// Package pushgateway assembles the Gasp! push gateway: the HTTP surface
// for device registration and domain events, and the optional Pub/Sub
// ingestion pipeline feeding the same broadcast fan-out.
package pushgateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/gasp-push-gateway/internal/api"
	"github.com/tinywideclouds/gasp-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/gasp-push-gateway/internal/pipeline"
	"github.com/tinywideclouds/gasp-push-gateway/internal/registrar"
	"github.com/tinywideclouds/gasp-push-gateway/internal/registry"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
	"github.com/tinywideclouds/gasp-push-gateway/pushgateway/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.DomainEvent]
	registrar       *registrar.Registrar
	logger          *slog.Logger
}

// New assembles the service. The consumer may be nil for HTTP-only
// deployments; receipts may be nil when the receipt store is disabled.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	gateway push.Gateway,
	reg *registrar.Registrar,
	registries *registry.Set,
	receiptStore api.ReceiptStore,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Fan-out core
	dispatcher := dispatch.NewDispatcher(registries, gateway, logger)

	// 3. Optional ingestion pipeline
	var streamingService *messagepipeline.StreamingService[pipeline.DomainEvent]
	if consumer != nil {
		processor := pipeline.NewProcessor(dispatcher, receiptStore, logger)
		var err error
		streamingService, err = messagepipeline.NewStreamingService[pipeline.DomainEvent](
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.DomainEventTransformer,
			processor,
			slog.New(slog.DiscardHandler),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 4. HTTP API
	deviceAPI := api.NewDeviceAPI(reg, logger)
	eventAPI := api.NewEventAPI(dispatcher, receiptStore, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}

	handle("POST /api/v1/register/{platform}", deviceAPI.RegisterHandler)
	handle("POST /api/v1/unregister/{platform}", deviceAPI.UnregisterHandler)
	handle("POST /api/v1/events/{kind}", eventAPI.EventHandler)
	handle("GET /api/v1/broadcasts/{id}", eventAPI.BroadcastHandler)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	mux.Handle("GET /metrics", promhttp.Handler())

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		registrar:       reg,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Ingestion pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	// Platform applications are torn down last, after traffic has stopped.
	w.registrar.Close(ctx)
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
