// cmd/order-service/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"marketplace/internal/pkg/bootstrap"
	"marketplace/internal/pkg/database"
	"marketplace/internal/pkg/httpclient"
	"marketplace/internal/pkg/idempotency"
	"marketplace/internal/pkg/logger"
	"marketplace/internal/pkg/metrics"
	"marketplace/internal/pkg/mq"
	"marketplace/internal/pkg/nacos"
	"marketplace/internal/pkg/redis"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/saga/journal"
	"marketplace/internal/service/order/application"
	"marketplace/internal/service/order/domain"
	"marketplace/internal/service/order/domain/port"
	"marketplace/internal/service/order/infrastructure/adapter"
	"marketplace/internal/service/order/infrastructure/memory"
	"marketplace/internal/service/order/infrastructure/persistence"
	"marketplace/internal/service/order/interfaces"
	vendordomain "marketplace/internal/service/seller/domain"
	vendorinfra "marketplace/internal/service/seller/infrastructure"
)

const serviceName = "order-service"

// main 函数是应用的"组装根" (Composition Root)
func main() {
	configPath := flag.String("config", "config/order-service.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.Name, cfg.App.LogLevel)

	ctx := context.Background()
	deps, err := wire(ctx, cfg)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to wire dependencies")
	}

	err = bootstrap.StartService(bootstrap.AppInfo{
		Config:           cfg,
		RegisterHandlers: deps.register,
		Cleanup:          deps.cleanup,
		Registry:         deps.registry,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
}

type dependencies struct {
	register func(mux *http.ServeMux)
	cleanup  []func(ctx context.Context) error
	registry bootstrap.Registry
}

func wire(ctx context.Context, cfg *bootstrap.Config) (*dependencies, error) {
	deps := &dependencies{}

	var db *gorm.DB
	if cfg.App.StorageDriver == "mysql" {
		var err error
		db, err = database.Open(ctx, database.Options{
			DSN:          cfg.Infra.MySQL.DSN,
			MaxOpenConns: cfg.Infra.MySQL.MaxOpenConns,
			MaxIdleConns: cfg.Infra.MySQL.MaxIdleConns,
		})
		if err != nil {
			return nil, err
		}
		deps.cleanup = append(deps.cleanup, func(context.Context) error { return database.Close(db) })
		if cfg.Infra.MySQL.AutoMigrate {
			models := append(persistence.Models(), vendorinfra.Models()...)
			models = append(models, journal.Models()...)
			if err := database.Migrate(ctx, db, models...); err != nil {
				return nil, err
			}
		}
	}

	var (
		links   domain.LinkStore
		vendors port.VendorDirectory
	)
	if db != nil {
		links = persistence.NewGormLinkStore(db)
		vendors = vendorinfra.NewGormDirectory(db)
	} else {
		links = memory.NewLinkStore()
		d := vendorinfra.NewMemoryDirectory()
		for _, v := range cfg.Vendors {
			d.AddVendor(vendordomain.Vendor{ID: v.ID, Handle: v.Handle, Name: v.Name}, v.Locations...)
		}
		vendors = d
	}

	var (
		nc         *nacos.Client
		discoverer nacos.Discoverer
	)
	if len(cfg.Infra.Nacos.Addrs) > 0 {
		var err error
		nc, err = nacos.NewClient(nacos.Options{
			Addrs:     cfg.Infra.Nacos.Addrs,
			Namespace: cfg.Infra.Nacos.Namespace,
			Group:     cfg.Infra.Nacos.Group,
		})
		if err != nil {
			return nil, err
		}
		deps.registry = nc
		discoverer = nc
		deps.cleanup = append(deps.cleanup, func(context.Context) error { nc.Close(); return nil })
	}
	orders := orderService(ctx, cfg.Infra.OrderService, discoverer)

	var guard port.IdempotencyGuard = idempotency.NewMemoryGuard(cfg.Infra.Redis.IdempotencyTTL)
	if cfg.App.StorageDriver != "memory" && cfg.Infra.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Infra.Redis.Addr,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("redis unavailable, idempotency falls back to memory")
		} else {
			guard = idempotency.NewRedisGuard(rdb, cfg.Infra.Redis.IdempotencyTTL)
			deps.cleanup = append(deps.cleanup, func(context.Context) error { return rdb.Close() })
		}
	}

	kafkaEnabled := len(cfg.Infra.Kafka.Brokers) > 0
	var publisher port.EventPublisher = mq.NoopPublisher{}
	if kafkaEnabled {
		kafkaPublisher := mq.NewPublisher(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic))
		publisher = kafkaPublisher
		deps.cleanup = append(deps.cleanup, func(context.Context) error { return kafkaPublisher.Close() })
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []sagaengine.Option{
		sagaengine.WithMetrics(metrics.NewSagaMetrics(registry)),
		sagaengine.WithTimeout(cfg.Saga.Timeout),
		sagaengine.WithCompensationTimeout(cfg.Saga.CompensationTimeout),
	}
	if cfg.Saga.JournalEnabled {
		if db != nil {
			opts = append(opts, sagaengine.WithJournal(journal.NewGormJournal(db)))
		} else {
			opts = append(opts, sagaengine.WithJournal(sagaengine.NewMemoryJournal()))
		}
	}

	svc := application.NewOrderApplicationService(sagaengine.NewCoordinator(opts...), orders, vendors, links, publisher, guard)
	deps.register = interfaces.NewOrderHandler(svc, registry).RegisterRoutes

	if kafkaEnabled && cfg.Infra.Kafka.OrderPlacedTopic != "" {
		deps.cleanup = append(deps.cleanup, startConsumer(cfg, interfaces.NewOrderPlacedConsumer(svc)))
	}

	logger.Ctx(ctx).Info().
		Str("storage_driver", cfg.App.StorageDriver).
		Bool("kafka", kafkaEnabled).
		Bool("nacos", nc != nil).
		Msg("order service wired")
	return deps, nil
}

// orderService 选择子订单的去处：配置了 nacos 时按服务名发现订单服务并以 base_url 兜底，
// 只有 base_url 时直连，两者都没有时留在内存中。
func orderService(ctx context.Context, cfg bootstrap.OrderServiceConfig, d nacos.Discoverer) port.OrderService {
	client := httpclient.NewClient(otel.Tracer(serviceName))
	switch {
	case d != nil && cfg.ServiceName != "":
		return adapter.NewResolvingOrderHTTPAdapter(client, nacos.NewResolver(d, cfg.ServiceName, cfg.BaseURL))
	case cfg.BaseURL != "":
		return adapter.NewOrderHTTPAdapter(client, cfg.BaseURL)
	default:
		logger.Ctx(ctx).Warn().Msg("order_service.base_url not set, child orders are kept in memory")
		return memory.NewOrderService()
	}
}

// startConsumer 在后台消费下单事件，返回的清理函数停止消费并关闭 reader 与死信 writer。
func startConsumer(cfg *bootstrap.Config, consumer *interfaces.OrderPlacedConsumer) func(context.Context) error {
	kafkaCfg := cfg.Infra.Kafka
	reader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.OrderPlacedTopic, kafkaCfg.ConsumerGroup)
	var deadLetter mq.MessageWriter
	if kafkaCfg.DeadLetterTopic != "" {
		deadLetter = mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.DeadLetterTopic)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Ctx(ctx).Info().
			Str("topic", kafkaCfg.OrderPlacedTopic).
			Str("group", kafkaCfg.ConsumerGroup).
			Msg("order placed consumer started")
		if err := consumer.Start(ctx, reader, deadLetter); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("order placed consumer stopped")
		}
	}()

	return func(shutdownCtx context.Context) error {
		cancel()
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
		err := reader.Close()
		if deadLetter != nil {
			err = errors.Join(err, deadLetter.Close())
		}
		return err
	}
}
