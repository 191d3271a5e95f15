// internal/pkg/redis/client.go
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"marketplace/internal/pkg/logger"
)

// Options 对应配置文件中的 infra.redis 段。
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Client 包装 go-redis 客户端，并维护一个按名称注册的 Lua 脚本表。
type Client struct {
	client  goredis.UniversalClient
	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 创建客户端并 Ping 一次，连接失败时直接返回错误。
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opts.Addr)
	}
	logger.Ctx(ctx).Info().Str("addr", opts.Addr).Msg("Redis connected")
	return Wrap(rdb), nil
}

// Wrap 用已有的 go-redis 客户端构造 Client。
func Wrap(rdb goredis.UniversalClient) *Client {
	return &Client{client: rdb, scripts: make(map[string]*goredis.Script)}
}

// GetClient 返回底层客户端，用于脚本之外的普通命令。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// LoadScriptFromContent 注册脚本并预先 SCRIPT LOAD，之后通过 EVALSHA 调用。
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return errors.Wrapf(err, "load script %s", name)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本。脚本缓存被清空时 go-redis 会自动回退到 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...any) (any, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %s not loaded", name)
	}
	res, err := script.Run(ctx, c.client, keys, args...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "run script %s", name)
	}
	return res, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
