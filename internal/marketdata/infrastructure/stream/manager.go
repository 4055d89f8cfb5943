package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/pkg/logger"
	"github.com/wyfcoding/tradestream/pkg/metrics"
	"github.com/wyfcoding/tradestream/pkg/ratelimit"
)

var (
	// ErrNoSymbols 没有可订阅的 symbol
	ErrNoSymbols = errors.New("no valid symbols to subscribe")
	// ErrAlreadyStarted 重复调用 Start
	ErrAlreadyStarted = errors.New("stream manager already started")
	// ErrStopped Stop 之后不能再 Start
	ErrStopped = errors.New("stream manager stopped")
)

// DefaultStreamSuffix bookTicker 流后缀
const DefaultStreamSuffix = "@bookTicker"

// QuoteRecorder 接收解析后的报价，同一 symbol 的调用按到达顺序串行
type QuoteRecorder interface {
	RecordQuote(ctx context.Context, quote domain.Quote)
}

// Config 连接管理配置
type Config struct {
	BaseURL      string
	StreamSuffix string
	// 单次读超时，0 表示不设置
	ReadTimeout time.Duration

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	BackoffJitter     float64
	// 连续失败后允许的重连次数，0 表示首次失败即 Failed
	MaxAttempts int
	// 连接保持超过该时长后重置重连预算
	StableAfter time.Duration
}

// StreamURL 拼接单个 symbol 的订阅地址
func (c Config) StreamURL(symbol domain.Symbol) string {
	suffix := c.StreamSuffix
	if suffix == "" {
		suffix = DefaultStreamSuffix
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.ToLower(symbol.String()) + suffix
}

// StateChange 一次连接状态迁移
type StateChange struct {
	Symbol domain.Symbol
	From   domain.ConnectionState
	To     domain.ConnectionState
	Status domain.ConnectionStatus
}

// StateListener 状态迁移回调，在该 symbol 的连接协程中同步调用
type StateListener func(change StateChange)

// Option 管理器可选项
type Option func(*Manager)

// WithLogger 设置日志
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics 设置指标
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDialLimiter 设置所有 symbol 共享的建连限流器
func WithDialLimiter(w ratelimit.Waiter) Option {
	return func(m *Manager) { m.limiter = w }
}

// WithTranslator 设置帧转换器
func WithTranslator(t *Translator) Option {
	return func(m *Manager) { m.translator = t }
}

type session struct {
	symbol domain.Symbol
	url    string
	status domain.ConnectionStatus
}

// Manager 每个 symbol 一条连接、一个协程；负责重连、退避与终态 Failed
type Manager struct {
	cfg        Config
	dialer     Dialer
	recorder   QuoteRecorder
	translator *Translator
	limiter    ratelimit.Waiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	sessions  map[domain.Symbol]*session
	listeners []StateListener
	wg        sync.WaitGroup
}

// NewManager 创建连接管理器
func NewManager(cfg Config, dialer Dialer, recorder QuoteRecorder, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		dialer:   dialer,
		recorder: recorder,
		limiter:  ratelimit.NewWaiter(0, 0),
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[domain.Symbol]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.translator == nil {
		m.translator = NewTranslator(m.now)
	}
	m.logger = m.logger.With("component", "stream_manager")
	return m
}

// OnStateChange 注册状态监听，应在 Start 前调用
func (m *Manager) OnStateChange(l StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Start 为每个 symbol 启动连接协程。空 symbol 跳过，重复 symbol 合并。
func (m *Manager) Start(ctx context.Context, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}

	unique := make([]domain.Symbol, 0, len(symbols))
	seen := make(map[domain.Symbol]struct{}, len(symbols))
	for _, raw := range symbols {
		sym := domain.NormalizeSymbol(raw)
		if sym.IsEmpty() {
			m.logger.WarnContext(ctx, "skip empty symbol", "raw", raw)
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		unique = append(unique, sym)
	}
	if len(unique) == 0 {
		return ErrNoSymbols
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = true

	for _, sym := range unique {
		s := &session{
			symbol: sym,
			url:    m.cfg.StreamURL(sym),
			status: domain.ConnectionStatus{Symbol: sym, State: domain.Disconnected, Since: m.now()},
		}
		m.sessions[sym] = s
		m.metrics.SetConnectionState(sym.String(), int(domain.Disconnected))
		m.wg.Add(1)
		go m.run(runCtx, s)
	}

	m.logger.InfoContext(ctx, "stream manager started", "symbols", unique)
	return nil
}

// Stop 取消所有连接并等待协程退出。可重复调用，Start 之前调用也安全。
// ctx 到期时返回 ctx.Err()，剩余协程在后台继续退出。
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	alreadyStopped := m.stopped
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if !alreadyStopped {
			m.logger.InfoContext(ctx, "stream manager stopped")
		}
		return nil
	case <-ctx.Done():
		m.logger.WarnContext(ctx, "stream manager stop timed out", "error", ctx.Err())
		return ctx.Err()
	}
}

// Status 返回各 symbol 连接状态的副本
func (m *Manager) Status() map[domain.Symbol]domain.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[domain.Symbol]domain.ConnectionStatus, len(m.sessions))
	for sym, s := range m.sessions {
		out[sym] = s.status
	}
	return out
}

// ActiveCount 当前处于 Connected 的连接数
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.status.State == domain.Connected {
			n++
		}
	}
	return n
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     m.cfg.InitialBackoff,
		RandomizationFactor: m.cfg.BackoffJitter,
		Multiplier:          m.cfg.BackoffMultiplier,
		MaxInterval:         m.cfg.MaxBackoff,
	}
	if b.InitialInterval <= 0 {
		b.InitialInterval = backoff.DefaultInitialInterval
	}
	if b.Multiplier < 1 {
		b.Multiplier = backoff.DefaultMultiplier
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()
	return b
}

// run 单个 symbol 的状态机：Connecting -> Connected -> Disconnected -> ... -> Failed
func (m *Manager) run(ctx context.Context, s *session) {
	defer m.wg.Done()

	bo := m.newBackOff()
	failures := 0

	for {
		if ctx.Err() != nil {
			m.transition(s, domain.Disconnected, nil)
			return
		}

		m.transition(s, domain.Connecting, nil)
		conn, err := m.dial(ctx, s)

		var cause error
		if err != nil {
			if ctx.Err() != nil {
				m.transition(s, domain.Disconnected, nil)
				return
			}
			cause = fmt.Errorf("%w: %v", domain.ErrConnectionFailure, err)
		} else {
			connectedAt := m.now()
			sessionID := uuid.NewString()
			m.transition(s, domain.Connected, func(st *domain.ConnectionStatus) {
				st.SessionID = sessionID
				st.LastError = ""
			})
			m.logger.InfoContext(ctx, "stream connected", "symbol", s.symbol, "session_id", sessionID, "url", s.url)

			// 会话 id 作为 trace_id 随报价向下游传递
			readErr := m.readLoop(logger.ContextWithTraceID(ctx, sessionID), s, conn)
			if ctx.Err() != nil {
				m.transition(s, domain.Disconnected, nil)
				return
			}
			if m.cfg.StableAfter > 0 && m.now().Sub(connectedAt) >= m.cfg.StableAfter {
				failures = 0
				bo.Reset()
			}
			cause = fmt.Errorf("%w: %v", domain.ErrConnectionLost, readErr)
		}

		failures++
		if failures > m.cfg.MaxAttempts {
			m.fail(ctx, s, failures, cause)
			return
		}

		wait := bo.NextBackOff()
		if wait > bo.MaxInterval {
			wait = bo.MaxInterval
		}
		m.transition(s, domain.Disconnected, func(st *domain.ConnectionStatus) {
			st.Attempts = failures
			st.LastError = cause.Error()
		})
		m.metrics.RecordReconnect(s.symbol.String())
		m.logger.WarnContext(ctx, "stream disconnected, will reconnect",
			"symbol", s.symbol, "attempt", failures, "max_attempts", m.cfg.MaxAttempts, "backoff", wait, "error", cause)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.transition(s, domain.Disconnected, nil)
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) dial(ctx context.Context, s *session) (Conn, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return m.dialer.Dial(ctx, s.url)
}

// readLoop 同步读取并处理帧，直到连接出错或 ctx 取消
func (m *Manager) readLoop(ctx context.Context, s *session, conn Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	sym := s.symbol.String()
	for {
		if m.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout)); err != nil {
				return err
			}
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.metrics.RecordFrame(sym)

		quote, err := m.translator.Translate(payload)
		if err != nil {
			m.metrics.RecordMalformedFrame(sym)
			m.logger.WarnContext(ctx, "drop malformed frame", "symbol", s.symbol, "payload", string(payload), "error", err)
			continue
		}
		m.recorder.RecordQuote(ctx, quote)
	}
}

func (m *Manager) fail(ctx context.Context, s *session, attempts int, cause error) {
	m.metrics.RecordConnectionFailure(s.symbol.String())
	m.logger.ErrorContext(ctx, "stream reconnect budget exhausted, giving up",
		"symbol", s.symbol, "attempts", attempts, "url", s.url, "error", cause)
	m.transition(s, domain.Failed, func(st *domain.ConnectionStatus) {
		st.Attempts = attempts
		st.LastError = cause.Error()
	})
}

func (m *Manager) transition(s *session, to domain.ConnectionState, mutate func(*domain.ConnectionStatus)) {
	m.mu.Lock()
	from := s.status.State
	if from != to {
		s.status.Since = m.now()
	}
	s.status.State = to
	if mutate != nil {
		mutate(&s.status)
	}
	snapshot := s.status
	listeners := append([]StateListener(nil), m.listeners...)
	m.mu.Unlock()

	if from == to {
		return
	}
	m.metrics.SetConnectionState(s.symbol.String(), int(to))
	for _, l := range listeners {
		l(StateChange{Symbol: s.symbol, From: from, To: to, Status: snapshot})
	}
}
