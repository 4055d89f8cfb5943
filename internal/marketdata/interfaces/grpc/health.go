// Package grpc gRPC 健康检查：整体服务与每个 symbol 的行情连接
package grpc

import (
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/stream"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StreamServicePrefix 单个 symbol 连接的健康检查服务名前缀
const StreamServicePrefix = "marketdata.stream."

// HealthReporter 把连接状态映射为 gRPC 健康状态
type HealthReporter struct {
	server      *health.Server
	serviceName string
}

// NewHealthReporter 创建健康状态上报器，整体服务初始为 SERVING
func NewHealthReporter(server *health.Server, serviceName string) *HealthReporter {
	server.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthReporter{server: server, serviceName: serviceName}
}

// StreamServiceName 返回 symbol 对应的健康检查服务名
func StreamServiceName(symbol domain.Symbol) string {
	return StreamServicePrefix + symbol.String()
}

// OnStateChange 作为 stream.StateListener 注册
func (r *HealthReporter) OnStateChange(change stream.StateChange) {
	r.server.SetServingStatus(StreamServiceName(change.Symbol), servingStatus(change.To))
}

// Shutdown 将所有服务置为 NOT_SERVING
func (r *HealthReporter) Shutdown() {
	r.server.Shutdown()
}

func servingStatus(state domain.ConnectionState) healthpb.HealthCheckResponse_ServingStatus {
	if state == domain.Connected {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
