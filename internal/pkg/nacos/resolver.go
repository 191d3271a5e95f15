package nacos

import (
	"context"
	"net"
	"strconv"
	"strings"

	"marketplace/internal/pkg/logger"
)

// Discoverer 选出某个服务的一个健康实例。*Client 实现了它。
type Discoverer interface {
	Discover(serviceName string) (string, int, error)
}

// Resolver 每次调用时通过服务发现得到基础 URL，发现失败时退回静态地址。
type Resolver struct {
	discoverer  Discoverer
	serviceName string
	fallback    string
}

func NewResolver(d Discoverer, serviceName, fallback string) *Resolver {
	return &Resolver{discoverer: d, serviceName: serviceName, fallback: strings.TrimRight(fallback, "/")}
}

func (r *Resolver) BaseURL(ctx context.Context) string {
	if r.discoverer == nil || r.serviceName == "" {
		return r.fallback
	}
	host, port, err := r.discoverer.Discover(r.serviceName)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("service", r.serviceName).
			Str("fallback", r.fallback).
			Msg("service discovery failed, using static url")
		return r.fallback
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
