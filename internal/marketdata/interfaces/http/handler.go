// Package http 行情读接口（gin）
package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/tradestream/internal/marketdata/application"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/pkg/logger"
)

// StreamStatusProvider 连接状态来源
type StreamStatusProvider interface {
	Status() map[domain.Symbol]domain.ConnectionStatus
}

type MarketDataHandler struct {
	service *application.MarketDataService
	streams StreamStatusProvider
}

func NewMarketDataHandler(service *application.MarketDataService, streams StreamStatusProvider) *MarketDataHandler {
	return &MarketDataHandler{service: service, streams: streams}
}

func (h *MarketDataHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1/market")
	{
		v1.GET("/prices/:symbol", h.GetLatestPrice)
		v1.GET("/snapshots/:symbol", h.GetSnapshot)
		v1.GET("/streams", h.ListStreams)
	}
}

// GetLatestPrice 查询缓存中的最新买卖价
func (h *MarketDataHandler) GetLatestPrice(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, fail("symbol is required"))
		return
	}

	dto, err := h.service.GetLatestPrice(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrPriceNotFound) {
			c.JSON(http.StatusNotFound, fail(err.Error()))
			return
		}
		logger.Error(c.Request.Context(), "get latest price failed", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, fail("internal server error"))
		return
	}
	c.JSON(http.StatusOK, ok(dto))
}

// GetSnapshot 查询持久化快照
func (h *MarketDataHandler) GetSnapshot(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, fail("symbol is required"))
		return
	}

	dto, err := h.service.GetSnapshot(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, fail(err.Error()))
			return
		}
		logger.Error(c.Request.Context(), "get snapshot failed", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, fail("internal server error"))
		return
	}
	c.JSON(http.StatusOK, ok(dto))
}

// ListStreams 各 symbol 连接状态
func (h *MarketDataHandler) ListStreams(c *gin.Context) {
	c.JSON(http.StatusOK, ok(application.NewStreamStatusDTOs(h.streams.Status())))
}
