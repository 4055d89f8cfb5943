// Package metrics 提供 Prometheus helper，包含行情采集、缓存、快照与 HTTP 指标
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/tradestream/pkg/logger"
)

// 快照决策结果标签
const (
	SnapshotPersisted = "persisted"
	SnapshotSkipped   = "skipped"
	SnapshotFailed    = "failed"
)

// Metrics 指标集合。nil *Metrics 上的记录方法均为空操作。
type Metrics struct {
	registry *prometheus.Registry

	// 行情帧
	FramesReceived  *prometheus.CounterVec
	FramesMalformed *prometheus.CounterVec

	// 连接状态（0=Disconnected 1=Connecting 2=Connected 3=Failed）
	ConnectionState    *prometheus.GaugeVec
	ReconnectAttempts  *prometheus.CounterVec
	ConnectionFailures *prometheus.CounterVec

	// 缓存
	CacheOps *prometheus.CounterVec

	// 快照
	SnapshotDecisions *prometheus.CounterVec
	SnapshotDuration  prometheus.Histogram

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New 创建指标实例并注册到独立 registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "stream_frames_total",
			Help:      "Total stream frames received",
		}, []string{"symbol"}),
		FramesMalformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "stream_frames_malformed_total",
			Help:      "Total stream frames dropped as malformed",
		}, []string{"symbol"}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "stream_connection_state",
			Help:      "Connection state per symbol (0=disconnected,1=connecting,2=connected,3=failed)",
		}, []string{"symbol"}),
		ReconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "stream_reconnect_attempts_total",
			Help:      "Total reconnect attempts",
		}, []string{"symbol"}),
		ConnectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "stream_connection_failures_total",
			Help:      "Symbols that exhausted their reconnect budget",
		}, []string{"symbol"}),
		CacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "cache_ops_total",
			Help:      "Latest price cache operations",
		}, []string{"op", "result"}),
		SnapshotDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "snapshot_decisions_total",
			Help:      "Snapshot policy outcomes",
		}, []string{"symbol", "result"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "snapshot_persist_duration_seconds",
			Help:      "Snapshot evaluate and persist duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FramesReceived,
		m.FramesMalformed,
		m.ConnectionState,
		m.ReconnectAttempts,
		m.ConnectionFailures,
		m.CacheOps,
		m.SnapshotDecisions,
		m.SnapshotDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在独立端口上暴露指标，ctx 结束时关闭
func (m *Metrics) Serve(ctx context.Context, port int, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Starting Prometheus HTTP server", "addr", srv.Addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RecordFrame 记录收到一帧
func (m *Metrics) RecordFrame(symbol string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(symbol).Inc()
}

// RecordMalformedFrame 记录丢弃的坏帧
func (m *Metrics) RecordMalformedFrame(symbol string) {
	if m == nil {
		return
	}
	m.FramesMalformed.WithLabelValues(symbol).Inc()
}

// SetConnectionState 更新连接状态
func (m *Metrics) SetConnectionState(symbol string, state int) {
	if m == nil {
		return
	}
	m.ConnectionState.WithLabelValues(symbol).Set(float64(state))
}

// RecordReconnect 记录一次重连尝试
func (m *Metrics) RecordReconnect(symbol string) {
	if m == nil {
		return
	}
	m.ReconnectAttempts.WithLabelValues(symbol).Inc()
}

// RecordConnectionFailure 记录连接进入终态 Failed
func (m *Metrics) RecordConnectionFailure(symbol string) {
	if m == nil {
		return
	}
	m.ConnectionFailures.WithLabelValues(symbol).Inc()
}

// RecordCacheOp 记录缓存操作
func (m *Metrics) RecordCacheOp(op, result string) {
	if m == nil {
		return
	}
	m.CacheOps.WithLabelValues(op, result).Inc()
}

// RecordSnapshotDecision 记录快照决策结果
func (m *Metrics) RecordSnapshotDecision(symbol, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotDecisions.WithLabelValues(symbol, result).Inc()
	m.SnapshotDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
