// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"marketplace/internal/pkg/logger"
	"marketplace/internal/pkg/nacos"
	"marketplace/internal/pkg/tracing"
)

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	Config           *Config
	RegisterHandlers func(mux *http.ServeMux) // 允许每个服务注册自己独特的 HTTP 路由
	// Cleanup 在 HTTP 服务关闭之后按注册的逆序执行（关闭数据库、kafka writer 等）
	Cleanup []func(ctx context.Context) error
	// Registry 不为 nil 时，启动后注册实例，关停时最先注销
	Registry Registry
}

// Registry 是服务注册中心，nacos.Client 实现了它。
type Registry interface {
	Register(serviceName, ip string, port int) error
	Deregister(serviceName, ip string, port int) error
}

// register 注册本实例并返回注销函数。
func register(reg Registry, serviceName string, port int, hostIP func() (string, error)) (func(), error) {
	ip, err := hostIP()
	if err != nil {
		return nil, fmt.Errorf("get outbound ip: %w", err)
	}
	if err := reg.Register(serviceName, ip, port); err != nil {
		return nil, err
	}
	return func() {
		if err := reg.Deregister(serviceName, ip, port); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Msg("Error deregistering service")
		}
	}, nil
}

// StartService 封装了服务的通用启动和优雅关停逻辑，阻塞直到收到退出信号或服务出错。
func StartService(info AppInfo) error {
	cfg := info.Config
	if cfg == nil {
		cfg = GetCurrentConfig()
	}
	logger.Init(cfg.App.Name, cfg.App.LogLevel)

	tp, err := tracing.InitTracerProvider(cfg.App.Name, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(mux)
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	deregister := func() {}
	if info.Registry != nil {
		deregister, err = register(info.Registry, cfg.App.Name, cfg.App.Port, nacos.OutboundIP)
		if err != nil {
			_ = tp.Shutdown(context.Background())
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Ctx(gctx).Info().Msgf("%s listening on :%d", cfg.App.Name, cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Ctx(context.Background()).Info().Msgf("Shutting down service %s...", cfg.App.Name)
		// 先从注册中心摘除，再关闭 HTTP 服务
		deregister()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error shutting down http server")
		}
		for i := len(info.Cleanup) - 1; i >= 0; i-- {
			if err := info.Cleanup[i](shutdownCtx); err != nil {
				logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error during cleanup")
			}
		}
		// 最后关闭 Tracer Provider，确保清理过程中产生的 span 也被发送出去
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error shutting down tracer provider")
		}
		return nil
	})

	err = g.Wait()
	logger.Ctx(context.Background()).Info().Msgf("Service %s gracefully shut down.", cfg.App.Name)
	return err
}
