package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viktsys/tt2ingest/logger"
	"github.com/viktsys/tt2ingest/models"
	"github.com/viktsys/tt2ingest/normalize"
)

// Reader is the read side of the store served over HTTP.
type Reader interface {
	Ping(ctx context.Context) error
	ListAssets(ctx context.Context, sourceLabel string, activeOnly bool) ([]models.Asset, error)
	DailyMetrics(ctx context.Context, symbol string, from time.Time) ([]models.DailyMetric, error)
	MetricStats(ctx context.Context, symbol string, from time.Time) (*models.MetricStats, error)
	AnalystScore(ctx context.Context, symbol string) (*models.AnalystScore, error)
	InsiderTransactions(ctx context.Context, symbol string) ([]models.InsiderTransaction, error)
	EarningsBetween(ctx context.Context, from, to time.Time) ([]models.EarningsEvent, error)
}

type Handler struct {
	store  Reader
	logger *zap.Logger
	now    func() time.Time
}

type AssetQuery struct {
	Source string `form:"source"`
	Active string `form:"active"`
}

type RangeQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListAssets(c *gin.Context) {
	var params AssetQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	activeOnly := true
	if params.Active != "" {
		v, err := strconv.ParseBool(params.Active)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active flag. Use true or false"})
			return
		}
		activeOnly = v
	}

	assets, err := h.store.ListAssets(c.Request.Context(), params.Source, activeOnly)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(assets), "assets": assets})
}

// GetMetrics returns the stored series of a symbol with its summary.
func (h *Handler) GetMetrics(c *gin.Context) {
	symbol := normalize.Symbol(c.Param("symbol"))

	var params RangeQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Sem "from": últimos 30 dias
	from, ok := h.parseDay(c, params.From, h.now().AddDate(0, 0, -30))
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stats, err := h.store.MetricStats(ctx, symbol, from)
	if err != nil {
		h.fail(c, err)
		return
	}
	rows, err := h.store.DailyMetrics(ctx, symbol, from)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "metrics": rows})
}

func (h *Handler) GetAnalyst(c *gin.Context) {
	symbol := normalize.Symbol(c.Param("symbol"))
	score, err := h.store.AnalystScore(c.Request.Context(), symbol)
	if err != nil {
		h.fail(c, err)
		return
	}
	if score == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No analyst score for " + symbol})
		return
	}
	c.JSON(http.StatusOK, score)
}

func (h *Handler) GetInsiders(c *gin.Context) {
	symbol := normalize.Symbol(c.Param("symbol"))
	txs, err := h.store.InsiderTransactions(c.Request.Context(), symbol)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(txs), "transactions": txs})
}

// GetEarnings lists the calendar between from and to, by default the next
// two weeks.
func (h *Handler) GetEarnings(c *gin.Context) {
	var params RangeQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	today := h.now()
	from, ok := h.parseDay(c, params.From, today)
	if !ok {
		return
	}
	to, ok := h.parseDay(c, params.To, from.AddDate(0, 0, 14))
	if !ok {
		return
	}

	events, err := h.store.EarningsBetween(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

func (h *Handler) parseDay(c *gin.Context, value string, fallback time.Time) (time.Time, bool) {
	if strings.TrimSpace(value) == "" {
		return normalize.Day(fallback), true
	}
	d, err := time.Parse(normalize.DateLayout, value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format. Use YYYY-MM-DD"})
		return time.Time{}, false
	}
	return d, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	h.logger.Error("query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func SetupRoutes(store Reader, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	h := &Handler{store: store, logger: logger.OrNop(log), now: time.Now}

	// Health check endpoint
	r.GET("/health", h.Health)

	routes := r.Group("/api")
	routes.GET("/assets", h.ListAssets)
	routes.GET("/assets/:symbol/metrics", h.GetMetrics)
	routes.GET("/assets/:symbol/analyst", h.GetAnalyst)
	routes.GET("/assets/:symbol/insiders", h.GetInsiders)
	routes.GET("/earnings", h.GetEarnings)

	return r
}
