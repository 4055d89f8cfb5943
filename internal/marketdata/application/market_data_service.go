// Package application 行情服务的应用层：写路径（缓存 + 快照策略）与读路径
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/pkg/metrics"
)

// PriceCache 最新价缓存
type PriceCache interface {
	Put(ctx context.Context, quote domain.Quote, ttl time.Duration)
	Get(ctx context.Context, symbol string) (domain.Quote, bool)
}

// ServiceConfig 应用服务配置
type ServiceConfig struct {
	Threshold      decimal.Decimal
	PriceSource    domain.PriceSource
	PersistTimeout time.Duration

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	SnapshotTopic string
}

// MarketDataService 行情应用服务
type MarketDataService struct {
	cache     PriceCache
	repo      domain.SnapshotRepository
	publisher domain.EventPublisher
	policy    domain.SnapshotPolicy
	cfg       ServiceConfig
	breaker   *gobreaker.CircuitBreaker
	locks     sync.Map // domain.Symbol -> *sync.Mutex
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewMarketDataService 创建行情应用服务。publisher 可为 nil。
func NewMarketDataService(cache PriceCache, repo domain.SnapshotRepository, publisher domain.EventPublisher, cfg ServiceConfig, logger *slog.Logger, m *metrics.Metrics) *MarketDataService {
	if cfg.PriceSource == "" {
		cfg.PriceSource = domain.PriceSourceMid
	}
	if cfg.SnapshotTopic == "" {
		cfg.SnapshotTopic = domain.TopicSnapshotUpdated
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	logger = logger.With("component", "market_data_service")

	s := &MarketDataService{
		cache:     cache,
		repo:      repo,
		publisher: publisher,
		policy:    domain.NewSnapshotPolicy(cfg.Threshold),
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "snapshot-store",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// GetLatestPrice 从缓存读取最新价，未命中返回 *domain.PriceNotFoundError，不回退到快照
func (s *MarketDataService) GetLatestPrice(ctx context.Context, symbol string) (*PriceDTO, error) {
	quote, ok := s.cache.Get(ctx, symbol)
	if !ok {
		return nil, domain.NewPriceNotFoundError(domain.NormalizeSymbol(symbol).String())
	}
	return &PriceDTO{
		Symbol:    quote.Symbol.String(),
		BidPrice:  quote.BidPrice.String(),
		AskPrice:  quote.AskPrice.String(),
		Timestamp: quote.ObservedAt,
	}, nil
}

// GetSnapshot 读取持久化快照
func (s *MarketDataService) GetSnapshot(ctx context.Context, symbol string) (*SnapshotDTO, error) {
	sym := domain.NormalizeSymbol(symbol)
	if sym.IsEmpty() {
		return nil, fmt.Errorf("%w: empty symbol", domain.ErrSnapshotNotFound)
	}
	snap, err := s.repo.FindBySymbol(ctx, sym)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: symbol=%s", domain.ErrSnapshotNotFound, sym)
	}
	return &SnapshotDTO{
		Symbol:    snap.Symbol.String(),
		Price:     snap.Price.String(),
		UpdatedAt: snap.UpdatedAt,
	}, nil
}

// RecordQuote 先写缓存，再按策略决定是否更新快照。
// 快照失败只记录日志，不回滚缓存。
func (s *MarketDataService) RecordQuote(ctx context.Context, quote domain.Quote) {
	quote.Symbol = domain.NormalizeSymbol(quote.Symbol.String())
	if quote.Symbol.IsEmpty() {
		s.logger.WarnContext(ctx, "drop quote with empty symbol")
		return
	}

	s.cache.Put(ctx, quote, 0)
	s.evaluateSnapshot(ctx, quote)
}

type persistedSnapshot struct {
	previous *decimal.Decimal
	snapshot *domain.Snapshot
}

func (s *MarketDataService) evaluateSnapshot(ctx context.Context, quote domain.Quote) {
	// 在途持久化不随连接取消而中断，只受 persist_timeout 约束
	persistCtx := context.WithoutCancel(ctx)
	if s.cfg.PersistTimeout > 0 {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(persistCtx, s.cfg.PersistTimeout)
		defer cancel()
	}

	persisted := s.persistSnapshot(ctx, persistCtx, quote)
	if persisted == nil {
		return
	}
	// 发布在锁外进行，慢 broker 不阻塞同一 symbol 的快照判定
	s.publishSnapshotUpdated(persistCtx, quote, persisted)
}

// persistSnapshot 在 symbol 锁内完成读快照、判定、写快照，未落库时返回 nil
func (s *MarketDataService) persistSnapshot(ctx, persistCtx context.Context, quote domain.Quote) *persistedSnapshot {
	start := time.Now()
	sym := quote.Symbol

	mu := s.lockFor(sym)
	mu.Lock()
	defer mu.Unlock()

	price := s.cfg.PriceSource.PriceOf(quote)
	result, err := s.breaker.Execute(func() (interface{}, error) {
		last, err := s.repo.FindBySymbol(persistCtx, sym)
		if err != nil {
			return nil, err
		}
		var lastPrice *decimal.Decimal
		if last != nil {
			lastPrice = &last.Price
		}
		if !s.policy.ShouldUpdate(lastPrice, price) {
			return nil, nil
		}

		snap := &domain.Snapshot{Symbol: sym, Price: price, UpdatedAt: s.now()}
		if err := s.repo.Upsert(persistCtx, snap); err != nil {
			return nil, err
		}
		return &persistedSnapshot{previous: lastPrice, snapshot: snap}, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.metrics.RecordSnapshotDecision(sym.String(), metrics.SnapshotFailed, time.Since(start))
		s.logger.WarnContext(ctx, "snapshot store circuit open, skip persistence", "symbol", sym)
		return nil
	case err != nil:
		s.metrics.RecordSnapshotDecision(sym.String(), metrics.SnapshotFailed, time.Since(start))
		s.logger.ErrorContext(ctx, "snapshot persist failed",
			"symbol", sym, "price", price.String(), "error", fmt.Errorf("%w: %v", domain.ErrSnapshotPersist, err))
		return nil
	case result == nil:
		s.metrics.RecordSnapshotDecision(sym.String(), metrics.SnapshotSkipped, time.Since(start))
		return nil
	}

	s.metrics.RecordSnapshotDecision(sym.String(), metrics.SnapshotPersisted, time.Since(start))
	s.logger.DebugContext(ctx, "snapshot updated", "symbol", sym, "price", price.String())
	return result.(*persistedSnapshot)
}

func (s *MarketDataService) publishSnapshotUpdated(ctx context.Context, quote domain.Quote, p *persistedSnapshot) {
	if s.publisher == nil {
		return
	}
	event := domain.SnapshotUpdatedEvent{
		Symbol:      p.snapshot.Symbol.String(),
		Price:       p.snapshot.Price.String(),
		BidPrice:    quote.BidPrice.String(),
		AskPrice:    quote.AskPrice.String(),
		PriceSource: string(s.cfg.PriceSource),
		UpdatedAt:   p.snapshot.UpdatedAt,
	}
	if p.previous != nil {
		event.PreviousPrice = p.previous.String()
	}
	if err := s.publisher.Publish(ctx, s.cfg.SnapshotTopic, event.Symbol, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish snapshot updated event", "symbol", event.Symbol, "error", err)
	}
}

// lockFor 每个 symbol 独立一把锁，串行化同一 symbol 的读快照、判定、写快照
func (s *MarketDataService) lockFor(symbol domain.Symbol) *sync.Mutex {
	if mu, ok := s.locks.Load(symbol); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := s.locks.LoadOrStore(symbol, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
