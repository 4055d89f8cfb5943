package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/tradestream/internal/marketdata/application"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	pricecache "github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/cache"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/messaging"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/persistence/memory"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/persistence/sqlstore"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/stream"
	grpcserver "github.com/wyfcoding/tradestream/internal/marketdata/interfaces/grpc"
	httpserver "github.com/wyfcoding/tradestream/internal/marketdata/interfaces/http"
	"github.com/wyfcoding/tradestream/pkg/cache"
	"github.com/wyfcoding/tradestream/pkg/config"
	"github.com/wyfcoding/tradestream/pkg/db"
	"github.com/wyfcoding/tradestream/pkg/grpcclient"
	"github.com/wyfcoding/tradestream/pkg/logger"
	"github.com/wyfcoding/tradestream/pkg/metrics"
	"github.com/wyfcoding/tradestream/pkg/middleware"
	"github.com/wyfcoding/tradestream/pkg/mq"
	"github.com/wyfcoding/tradestream/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
)

var (
	configPath  = flag.String("config", "configs/marketdata/config.toml", "config file path")
	healthcheck = flag.Bool("healthcheck", false, "probe the local gRPC health service and exit")
)

func main() {
	flag.Parse()
	if *healthcheck {
		if err := probe(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := run(); err != nil {
		slog.Error("marketdata exited with error", "error", err)
		os.Exit(1)
	}
}

// probe 通过 gRPC 健康检查确认本地实例已就绪
func probe() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	host := cfg.GRPC.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return grpcclient.Probe(ctx, grpcclient.ClientConfig{
		Target:         net.JoinHostPort(host, strconv.Itoa(cfg.GRPC.Port)),
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		RetryDelay:     200 * time.Millisecond,
	}, cfg.ServiceName)
}

func run() error {
	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Logger
	log, err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	})
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	log = log.With("service", cfg.ServiceName, "env", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Metrics
	m := metrics.New(cfg.ServiceName)

	// 4. Latest price cache
	var backend pricecache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		client, cleanup, err := cache.NewClient(ctx, cache.Config{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.MaxPoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer cleanup()
		backend = pricecache.NewRedisBackend(client)
	default:
		mem := pricecache.NewMemoryBackend(nil)
		mem.StartSweeper(ctx, cfg.Cache.SweepInterval)
		backend = mem
	}
	priceCache := pricecache.NewLatestPriceCache(backend,
		pricecache.WithKeyPrefix(cfg.Cache.KeyPrefix),
		pricecache.WithDefaultTTL(cfg.Cache.TTL),
		pricecache.WithLogger(log),
		pricecache.WithMetrics(m),
	)

	// 5. Snapshot store
	var repo domain.SnapshotRepository
	switch cfg.Database.Driver {
	case "memory":
		repo = memory.NewSnapshotRepository()
	default:
		database, err := db.Init(ctx, db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		if err != nil {
			return err
		}
		defer database.Close()

		sqlRepo := sqlstore.NewSnapshotRepository(database.DB)
		if cfg.Database.AutoMigrate {
			if err := sqlRepo.AutoMigrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		repo = sqlRepo
	}

	// 6. Event publisher
	var publisher domain.EventPublisher = messaging.NewLogPublisher(log)
	if cfg.Kafka.Enabled {
		producer := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			ClientID:     cfg.Kafka.ClientID,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		defer producer.Close()
		publisher = messaging.NewKafkaPublisher(producer)
	}

	// 7. Application
	threshold, err := cfg.Snapshot.ThresholdDecimal()
	if err != nil {
		return err
	}
	priceSource, err := domain.ParsePriceSource(cfg.Snapshot.PriceSource)
	if err != nil {
		return err
	}
	service := application.NewMarketDataService(priceCache, repo, publisher, application.ServiceConfig{
		Threshold:          threshold,
		PriceSource:        priceSource,
		PersistTimeout:     cfg.Snapshot.PersistTimeout,
		BreakerMaxFailures: cfg.Snapshot.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.Snapshot.BreakerOpenTimeout,
		SnapshotTopic:      cfg.Kafka.SnapshotTopic,
	}, log, m)

	// 8. Stream manager
	manager := stream.NewManager(stream.Config{
		BaseURL:           cfg.Stream.BaseURL,
		StreamSuffix:      cfg.Stream.StreamSuffix,
		ReadTimeout:       cfg.Stream.ReadTimeout,
		InitialBackoff:    cfg.Stream.InitialBackoff,
		MaxBackoff:        cfg.Stream.MaxBackoff,
		BackoffMultiplier: cfg.Stream.BackoffMultiplier,
		BackoffJitter:     cfg.Stream.BackoffJitter,
		MaxAttempts:       cfg.Stream.MaxAttempts,
		StableAfter:       cfg.Stream.StableAfter,
	}, stream.NewWebSocketDialer(cfg.Stream.HandshakeTimeout), service,
		stream.WithLogger(log),
		stream.WithMetrics(m),
		stream.WithDialLimiter(ratelimit.NewWaiter(cfg.Stream.DialRate, cfg.Stream.DialBurst)),
	)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Stream.ShutdownTimeout)
		defer cancel()
		done := logger.LogDuration(stopCtx, "stream manager shutdown")
		if err := manager.Stop(stopCtx); err != nil {
			log.Error("stream manager did not stop cleanly", "error", err)
		}
		done()
	}()

	healthServer := health.NewServer()
	healthReporter := grpcserver.NewHealthReporter(healthServer, cfg.ServiceName)
	manager.OnStateChange(healthReporter.OnStateChange)
	manager.OnStateChange(messaging.ConnectionFailedNotifier(publisher, cfg.Kafka.StreamFailedTopic, cfg.Kafka.WriteTimeout, log))

	// 9. Interfaces
	grpcSrv := grpcserver.NewServer(healthServer)

	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware(m))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "active_streams": manager.ActiveCount()})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")
	if cfg.HTTP.RateLimit.Enabled {
		limiter := ratelimit.NewKeyedLimiter(ratelimit.Limit{Rate: cfg.HTTP.RateLimit.QPS, Burst: cfg.HTTP.RateLimit.Burst}, 10*time.Minute)
		api.Use(middleware.RateLimitMiddleware(limiter, cfg.HTTP.RateLimit.Burst))
	}
	httpserver.NewMarketDataHandler(service, manager).RegisterRoutes(api)

	// 10. Start
	if err := manager.Start(ctx, cfg.Stream.Symbols); err != nil {
		return fmt.Errorf("failed to start stream manager: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		log.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		log.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Metrics.Enabled && cfg.Metrics.Port > 0 {
		g.Go(func() error {
			return m.Serve(gctx, cfg.Metrics.Port, cfg.Metrics.Path)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down servers...")
		healthReporter.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	return g.Wait()
}
