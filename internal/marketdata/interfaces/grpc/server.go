package grpc

import (
	"github.com/wyfcoding/tradestream/pkg/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer 创建带日志、恢复拦截器的 gRPC 服务，注册健康检查与反射
func NewServer(healthServer *health.Server) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.GRPCRecoveryInterceptor(),
			middleware.GRPCLoggingInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(srv, healthServer)
	reflection.Register(srv)
	return srv
}
