package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradestream/internal/marketdata/application"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/cache"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/persistence/memory"
	httpserver "github.com/wyfcoding/tradestream/internal/marketdata/interfaces/http"
	"github.com/wyfcoding/tradestream/pkg/logger"
)

type staticStatus map[domain.Symbol]domain.ConnectionStatus

func (s staticStatus) Status() map[domain.Symbol]domain.ConnectionStatus { return s }

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

func setup(t *testing.T) (*gin.Engine, *application.MarketDataService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := cache.NewLatestPriceCache(cache.NewMemoryBackend(nil), cache.WithLogger(logger.NewNop()))
	svc := application.NewMarketDataService(c, memory.NewSnapshotRepository(), nil, application.ServiceConfig{
		Threshold:      decimal.RequireFromString("0.01"),
		PersistTimeout: time.Second,
	}, logger.NewNop(), nil)

	streams := staticStatus{
		"BTCUSDT": {Symbol: "BTCUSDT", State: domain.Connected, SessionID: "s-1"},
		"ETHUSDT": {Symbol: "ETHUSDT", State: domain.Failed, Attempts: 11, LastError: "connection failure: refused"},
	}

	r := gin.New()
	httpserver.NewMarketDataHandler(svc, streams).RegisterRoutes(r.Group("/api"))
	return r, svc
}

func do(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var body envelope
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, w.Body.String())
	}
	return w, body
}

func TestGetLatestPrice_OK(t *testing.T) {
	r, svc := setup(t)
	svc.RecordQuote(context.Background(), domain.NewQuote("BTCUSDT",
		decimal.RequireFromString("42000.1"), decimal.RequireFromString("42000.2"), time.Now()))

	w, body := do(t, r, "/api/v1/market/prices/btcusdt")
	if w.Code != http.StatusOK || !body.Success {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var price application.PriceDTO
	if err := json.Unmarshal(body.Data, &price); err != nil {
		t.Fatal(err)
	}
	if price.Symbol != "BTCUSDT" || price.BidPrice != "42000.1" || price.AskPrice != "42000.2" {
		t.Errorf("unexpected data: %+v", price)
	}
	if body.Timestamp.IsZero() {
		t.Error("envelope timestamp missing")
	}
}

func TestGetLatestPrice_NotFound(t *testing.T) {
	r, _ := setup(t)

	w, body := do(t, r, "/api/v1/market/prices/DOGEUSDT")
	if w.Code != http.StatusNotFound || body.Success {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if body.Message == "" {
		t.Error("message should explain the miss")
	}
}

func TestGetLatestPrice_BlankSymbol(t *testing.T) {
	r, _ := setup(t)

	w, _ := do(t, r, "/api/v1/market/prices/%20%20")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestGetSnapshot(t *testing.T) {
	r, svc := setup(t)

	w, _ := do(t, r, "/api/v1/market/snapshots/BTCUSDT")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}

	svc.RecordQuote(context.Background(), domain.NewQuote("BTCUSDT",
		decimal.RequireFromString("100"), decimal.RequireFromString("102"), time.Now()))

	w, body := do(t, r, "/api/v1/market/snapshots/BTCUSDT")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var snap application.SnapshotDTO
	if err := json.Unmarshal(body.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Price != "101" {
		t.Errorf("price = %s", snap.Price)
	}
}

func TestListStreams(t *testing.T) {
	r, _ := setup(t)

	w, body := do(t, r, "/api/v1/market/streams")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var streams []application.StreamStatusDTO
	if err := json.Unmarshal(body.Data, &streams); err != nil {
		t.Fatal(err)
	}
	if len(streams) != 2 || streams[0].State != "CONNECTED" || streams[1].State != "FAILED" {
		t.Errorf("unexpected streams: %+v", streams)
	}
}
