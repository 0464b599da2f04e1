package backtesthttp

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"spotguard/internal/backtest"

	"github.com/gin-gonic/gin"
)

// RunReader 回测历史的只读接口，由 backtest.RunStore 实现。
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]backtest.Run, error)
	GetRun(ctx context.Context, id string) (backtest.Run, error)
	ListTrades(ctx context.Context, runID, segment string) ([]backtest.Trade, error)
}

// Router 暴露 /api/backtests 下的回测历史查询。
type Router struct {
	results RunReader
}

func NewRouter(results RunReader) *Router {
	return &Router{results: results}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	api := group.Group("/backtests")
	api.GET("", r.handleRunList)
	api.GET("/:id", r.handleRunDetail)
	api.GET("/:id/trades", r.handleRunTrades)
}

func (r *Router) handleRunList(c *gin.Context) {
	if r.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest store disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := r.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (r *Router) handleRunDetail(c *gin.Context) {
	if r.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest store disabled"})
		return
	}
	run, err := r.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (r *Router) handleRunTrades(c *gin.Context) {
	if r.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest store disabled"})
		return
	}
	id := c.Param("id")
	if _, err := r.results.GetRun(c.Request.Context(), id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	trades, err := r.results.ListTrades(c.Request.Context(), id, c.Query("segment"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func statusFor(err error) int {
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
