// internal/pkg/nacos/client.go
package nacos

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"

	"marketplace/internal/pkg/logger"
)

const defaultGroup = "DEFAULT_GROUP"

// Options 是连接 Nacos 命名服务所需的配置。
type Options struct {
	Addrs     []string // host:port
	Namespace string
	Group     string
	LogDir    string
	CacheDir  string
}

// Client 封装了 Nacos 命名客户端
type Client struct {
	namingClient naming_client.INamingClient
	groupName    string
}

// NewClient 创建并返回一个新的 Nacos 客户端
func NewClient(opts Options) (*Client, error) {
	serverConfigs, err := serverConfigs(opts.Addrs)
	if err != nil {
		return nil, err
	}
	if opts.Group == "" {
		opts.Group = defaultGroup
	}
	if opts.LogDir == "" {
		opts.LogDir = "/tmp/nacos/log"
	}
	if opts.CacheDir == "" {
		opts.CacheDir = "/tmp/nacos/cache"
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir(opts.LogDir),
		constant.WithCacheDir(opts.CacheDir),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(opts.Namespace),
	)
	namingClient, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}

	logger.Ctx(context.Background()).Info().
		Strs("addrs", opts.Addrs).
		Str("namespace", opts.Namespace).
		Str("group", opts.Group).
		Msg("connected to nacos")
	return &Client{namingClient: namingClient, groupName: opts.Group}, nil
}

func serverConfigs(addrs []string) ([]constant.ServerConfig, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("nacos: no server address")
	}
	out := make([]constant.ServerConfig, 0, len(addrs))
	for _, addr := range addrs {
		host, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
		if err != nil {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", addr)
		}
		out = append(out, *constant.NewServerConfig(host, port))
	}
	return out, nil
}

// Register 注册一个临时实例，心跳断开后由 Nacos 自动摘除。
func (c *Client) Register(serviceName, ip string, port int) error {
	ok, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to register service with nacos: %w", err)
	}
	if !ok {
		return fmt.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	logger.Ctx(context.Background()).Info().Str("service", serviceName).Str("ip", ip).Int("port", port).
		Msg("service registered to nacos")
	return nil
}

func (c *Client) Deregister(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to deregister service with nacos: %w", err)
	}
	logger.Ctx(context.Background()).Info().Str("service", serviceName).Msg("service deregistered from nacos")
	return nil
}

// Discover 使用 Nacos 内置的负载均衡选出一个健康实例
func (c *Client) Discover(serviceName string) (string, int, error) {
	instance, err := c.namingClient.SelectOneHealthyInstance(vo.SelectOneHealthInstanceParam{
		ServiceName: serviceName,
		GroupName:   c.groupName,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to discover healthy instance for service '%s': %w", serviceName, err)
	}
	if instance == nil {
		return "", 0, fmt.Errorf("no healthy instance available for service '%s'", serviceName)
	}
	return instance.Ip, int(instance.Port), nil
}

func (c *Client) Close() {
	if c.namingClient != nil {
		c.namingClient.CloseClient()
	}
}

// OutboundIP 返回本机对外通信使用的地址，用作注册的实例 IP。
// UDP 的 Dial 不会真正发包。
func OutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
