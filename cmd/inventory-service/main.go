// cmd/inventory-service/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"marketplace/internal/pkg/bootstrap"
	"marketplace/internal/pkg/database"
	"marketplace/internal/pkg/idempotency"
	"marketplace/internal/pkg/logger"
	"marketplace/internal/pkg/metrics"
	"marketplace/internal/pkg/mq"
	"marketplace/internal/pkg/nacos"
	"marketplace/internal/pkg/redis"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/saga/journal"
	"marketplace/internal/service/inventory/application"
	"marketplace/internal/service/inventory/domain"
	"marketplace/internal/service/inventory/domain/port"
	"marketplace/internal/service/inventory/infrastructure/cache"
	"marketplace/internal/service/inventory/infrastructure/memory"
	"marketplace/internal/service/inventory/infrastructure/persistence"
	"marketplace/internal/service/inventory/interfaces"
	vendordomain "marketplace/internal/service/seller/domain"
	vendorinfra "marketplace/internal/service/seller/infrastructure"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：读取配置，创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
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

// wire 根据 storage_driver 选择存储实现：
// memory 全部在进程内；mysql 使用 GORM；redis 的库存在 Redis 中，账目在配置了 DSN 时落 MySQL。
func wire(ctx context.Context, cfg *bootstrap.Config) (*dependencies, error) {
	deps := &dependencies{}

	var (
		db  *gorm.DB
		rdb *redis.Client
		err error
	)
	if cfg.App.StorageDriver == "mysql" || (cfg.App.StorageDriver == "redis" && cfg.Infra.MySQL.DSN != "") {
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
	if cfg.App.StorageDriver != "memory" && cfg.Infra.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Infra.Redis.Addr,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
		if err != nil && cfg.App.StorageDriver == "redis" {
			return nil, err
		}
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("redis unavailable, idempotency falls back to memory")
			rdb = nil
		} else {
			deps.cleanup = append(deps.cleanup, func(context.Context) error { return rdb.Close() })
		}
	}

	var (
		stock     domain.StockLevelStore
		ledger    domain.LedgerStore
		locations port.LocationDirectory
	)
	switch {
	case cfg.App.StorageDriver == "redis":
		redisStock, err := cache.NewRedisStockStore(rdb)
		if err != nil {
			return nil, err
		}
		stock = redisStock
	case db != nil:
		stock = persistence.NewGormStockStore(db)
	default:
		stock = memory.NewStockStore()
	}
	if db != nil {
		ledger = persistence.NewGormLedgerStore(db)
		locations = vendorinfra.NewGormDirectory(db)
	} else {
		ledger = memory.NewLedgerStore()
		locations = seededDirectory(cfg.Vendors)
	}

	var guard port.IdempotencyGuard = idempotency.NewMemoryGuard(cfg.Infra.Redis.IdempotencyTTL)
	if rdb != nil {
		guard = idempotency.NewRedisGuard(rdb, cfg.Infra.Redis.IdempotencyTTL)
	}

	var publisher port.EventPublisher = mq.NoopPublisher{}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
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
	if j := sagaJournal(cfg, db); j != nil {
		opts = append(opts, sagaengine.WithJournal(j))
	}

	svc := application.NewInventoryApplicationService(sagaengine.NewCoordinator(opts...), stock, ledger, publisher, guard, cfg.Saga.MaxAttempts)
	if cfg.App.StorageDriver == "memory" {
		if err := seedStock(ctx, svc, locations, cfg.Stock); err != nil {
			return nil, err
		}
	}
	handler := interfaces.NewInventoryHandler(svc, locations, registry)
	deps.register = handler.RegisterRoutes

	if len(cfg.Infra.Nacos.Addrs) > 0 {
		nc, err := nacos.NewClient(nacos.Options{
			Addrs:     cfg.Infra.Nacos.Addrs,
			Namespace: cfg.Infra.Nacos.Namespace,
			Group:     cfg.Infra.Nacos.Group,
		})
		if err != nil {
			return nil, err
		}
		deps.registry = nc
		deps.cleanup = append(deps.cleanup, func(context.Context) error { nc.Close(); return nil })
	}

	logger.Ctx(ctx).Info().
		Str("storage_driver", cfg.App.StorageDriver).
		Bool("redis", rdb != nil).
		Bool("nacos", deps.registry != nil).
		Bool("kafka", len(cfg.Infra.Kafka.Brokers) > 0).
		Msg("inventory service wired")
	return deps, nil
}

// sagaJournal 在启用时优先使用 MySQL，没有数据库时退回内存实现。
func sagaJournal(cfg *bootstrap.Config, db *gorm.DB) sagaengine.Journal {
	switch {
	case !cfg.Saga.JournalEnabled:
		return nil
	case db != nil:
		return journal.NewGormJournal(db)
	default:
		return sagaengine.NewMemoryJournal()
	}
}

func seededDirectory(seeds []bootstrap.VendorSeed) *vendorinfra.MemoryDirectory {
	d := vendorinfra.NewMemoryDirectory()
	for _, v := range seeds {
		d.AddVendor(vendordomain.Vendor{ID: v.ID, Handle: v.Handle, Name: v.Name}, v.Locations...)
	}
	return d
}

// seedStock 把配置中的初始库存以入库的方式写入，对账因此从第一条账目开始就能解释库存。
func seedStock(ctx context.Context, svc *application.InventoryApplicationService, locations port.LocationDirectory, seeds []bootstrap.StockSeed) error {
	for _, seed := range seeds {
		allowed, err := locations.LocationsForVendor(ctx, seed.VendorID)
		if err != nil {
			return err
		}
		_, err = svc.Restock(ctx, application.RestockRequest{
			InventoryItemID: seed.InventoryItemID,
			LocationID:      seed.LocationID,
			Quantity:        seed.Quantity,
			Notes:           "Initial stock",
			Actor:           application.Actor{VendorID: seed.VendorID, UserID: "system", AuthorizedLocationIDs: allowed},
		})
		if err != nil {
			return fmt.Errorf("seed stock %s at %s: %w", seed.InventoryItemID, seed.LocationID, err)
		}
	}
	if len(seeds) > 0 {
		logger.Ctx(ctx).Info().Int("seeds", len(seeds)).Msg("initial stock loaded")
	}
	return nil
}
