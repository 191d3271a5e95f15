// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/config.yaml"

// Config 是服务的完整配置，来源优先级：环境变量 > YAML 文件 > 默认值。
type Config struct {
	App   AppConfig   `yaml:"app"`
	Saga  SagaConfig  `yaml:"saga"`
	Infra InfraConfig `yaml:"infra"`
	// Vendors 与 Stock 只在 memory 存储下使用，用于本地运行时预置商家、仓位与初始库存
	Vendors []VendorSeed `yaml:"vendors"`
	Stock   []StockSeed  `yaml:"stock"`
}

type VendorSeed struct {
	ID        string   `yaml:"id"`
	Handle    string   `yaml:"handle"`
	Name      string   `yaml:"name"`
	Locations []string `yaml:"locations"`
}

// StockSeed 在启动时以一次入库写入，库存与账目因此一致。
type StockSeed struct {
	VendorID        string `yaml:"vendor_id"`
	InventoryItemID string `yaml:"inventory_item_id"`
	LocationID      string `yaml:"location_id"`
	Quantity        int64  `yaml:"quantity"`
}

type AppConfig struct {
	Name          string `yaml:"name"`
	Port          int    `yaml:"port"`
	LogLevel      string `yaml:"log_level"`
	StorageDriver string `yaml:"storage_driver"` // memory | mysql | redis
}

// SagaConfig 控制协调器的重试与超时行为。
type SagaConfig struct {
	MaxAttempts         int           `yaml:"max_attempts"`
	Timeout             time.Duration `yaml:"timeout"`
	CompensationTimeout time.Duration `yaml:"compensation_timeout"`
	JournalEnabled      bool          `yaml:"journal_enabled"`
}

type InfraConfig struct {
	Jaeger       JaegerConfig       `yaml:"jaeger"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	OrderService OrderServiceConfig `yaml:"order_service"`
	Nacos        NacosConfig        `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	// 拆单服务消费的下单事件 topic、消费组与死信 topic
	OrderPlacedTopic string `yaml:"order_placed_topic"`
	ConsumerGroup    string `yaml:"consumer_group"`
	DeadLetterTopic  string `yaml:"dead_letter_topic"`
}

type OrderServiceConfig struct {
	BaseURL string `yaml:"base_url"`
	// ServiceName 是配置了 nacos 时用于发现订单服务的服务名，发现失败退回 BaseURL
	ServiceName string `yaml:"service_name"`
}

// NacosConfig 为空 Addrs 时不做服务注册与发现。
type NacosConfig struct {
	Addrs     []string `yaml:"addrs"`
	Namespace string   `yaml:"namespace"`
	Group     string   `yaml:"group"`
}

var (
	currentConfig *Config
	configLock    sync.RWMutex
)

// DefaultConfig 返回一份可以直接在本地运行的配置（内存存储，无外部依赖）。
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:          "inventory-service",
			Port:          8080,
			LogLevel:      "info",
			StorageDriver: "memory",
		},
		Saga: SagaConfig{
			MaxAttempts:         3,
			Timeout:             30 * time.Second,
			CompensationTimeout: 10 * time.Second,
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{SampleRatio: 1},
			MySQL:  MySQLConfig{MaxOpenConns: 20, MaxIdleConns: 10, AutoMigrate: true},
			Redis:  RedisConfig{Addr: "localhost:6379", IdempotencyTTL: 24 * time.Hour},
			Kafka: KafkaConfig{
				Topic:            "inventory-saga-events",
				OrderPlacedTopic: "order-placed",
				ConsumerGroup:    "order-fanout",
				DeadLetterTopic:  "order-placed-dlt",
			},
			OrderService: OrderServiceConfig{ServiceName: "order-api"},
			Nacos:        NacosConfig{Group: "DEFAULT_GROUP"},
		},
	}
}

// Load 读取 YAML 配置并应用环境变量覆盖。
// path 为空时使用 CONFIG_PATH 或默认路径；默认路径不存在时不视为错误。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = getEnv("CONFIG_PATH", defaultConfigPath)
		explicit = path != defaultConfigPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// 没有配置文件时完全依赖默认值与环境变量
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configLock.Lock()
	currentConfig = cfg
	configLock.Unlock()
	return cfg, nil
}

// GetCurrentConfig 返回最近一次成功加载的配置。
func GetCurrentConfig() *Config {
	configLock.RLock()
	defer configLock.RUnlock()
	if currentConfig == nil {
		return DefaultConfig()
	}
	return currentConfig
}

// Validate 校验配置之间的依赖关系。
func (c *Config) Validate() error {
	switch c.App.StorageDriver {
	case "memory":
	case "mysql":
		if c.Infra.MySQL.DSN == "" {
			return errors.New("storage driver mysql requires infra.mysql.dsn (MYSQL_DSN)")
		}
	case "redis":
		if c.Infra.Redis.Addr == "" {
			return errors.New("storage driver redis requires infra.redis.addr (REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.App.StorageDriver)
	}
	if c.Saga.MaxAttempts < 1 {
		return fmt.Errorf("saga.max_attempts must be >= 1, got %d", c.Saga.MaxAttempts)
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("app.port must be positive, got %d", c.App.Port)
	}
	for i, seed := range c.Stock {
		if seed.VendorID == "" || seed.InventoryItemID == "" || seed.LocationID == "" {
			return fmt.Errorf("stock[%d]: vendor_id, inventory_item_id and location_id are required", i)
		}
		if seed.Quantity <= 0 {
			return fmt.Errorf("stock[%d]: quantity must be positive, got %d", i, seed.Quantity)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.App.Name = getEnv("SERVICE_NAME", cfg.App.Name)
	cfg.App.Port = getEnvInt("HTTP_PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.StorageDriver = getEnv("STORAGE_DRIVER", cfg.App.StorageDriver)

	cfg.Saga.MaxAttempts = getEnvInt("SAGA_MAX_ATTEMPTS", cfg.Saga.MaxAttempts)
	cfg.Saga.Timeout = getEnvDuration("SAGA_TIMEOUT", cfg.Saga.Timeout)

	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.OrderService.BaseURL = getEnv("ORDER_SERVICE_BASE_URL", cfg.Infra.OrderService.BaseURL)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Infra.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Infra.Kafka.Topic)
	if addrs := getEnv("NACOS_ADDRS", ""); addrs != "" {
		cfg.Infra.Nacos.Addrs = strings.Split(addrs, ",")
	}
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
