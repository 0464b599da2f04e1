package livehttp

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"spotguard/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Router 暴露 /api 下的状态、持仓、交易与 kill switch 接口。
type Router struct {
	deps Deps
}

// NewRouter 构造路由。
func NewRouter(deps Deps) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Router{deps: deps}
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/position", r.handlePosition)
	group.GET("/trades", r.handleTrades)
	group.GET("/summary", r.handleSummary)
	group.GET("/ticks", r.handleTicks)
	group.GET("/kill-switch", r.handleKillSwitchState)
	group.POST("/kill-switch", r.handleKillSwitch)
}

func (r *Router) handleStatus(c *gin.Context) {
	d := r.deps
	resp := statusResponse{
		Mode:       d.Engine.Mode(),
		Symbol:     d.Symbol,
		Timeframe:  d.Timeframe,
		Phase:      d.Engine.State(),
		Risk:       d.Risk.Status(),
		ServerTime: d.Now().UTC(),
	}
	if last := d.Engine.LastReport(); !last.At.IsZero() {
		resp.LastTick = &last
	}
	if pending, ok := d.Engine.Pending(); ok {
		resp.Pending = &pending
	}
	_, resp.HasPos = d.Ledger.Position()
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handlePosition(c *gin.Context) {
	d := r.deps
	pos, ok := d.Ledger.Position()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"position": nil})
		return
	}
	resp := positionResponse{
		Position:    pos,
		StopLoss:    d.Risk.StopLossLevel(pos.EntryPrice),
		TakeProfit:  d.Risk.TakeProfitLevel(pos.EntryPrice),
		HeldMinutes: int(pos.HeldFor(d.Now()) / time.Minute),
	}
	if mark := d.Engine.LastReport().Price; mark > 0 {
		resp.MarkPrice = mark
		resp.UnrealizedPnL = pos.UnrealizedPnL(mark)
	}
	c.JSON(http.StatusOK, gin.H{"position": resp})
}

// handleTrades 默认读内存账本；source=journal 时读 sqlite 流水。
func (r *Router) handleTrades(c *gin.Context) {
	limit := parseLimit(c)
	if strings.EqualFold(c.Query("source"), "journal") {
		if r.deps.Journal == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
			return
		}
		trades, err := r.deps.Journal.RecentTrades(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
		return
	}
	history := r.deps.Ledger.History()
	// 最新的在前。
	out := make([]any, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	c.JSON(http.StatusOK, gin.H{"trades": out, "count": len(out), "total": len(history)})
}

func (r *Router) handleSummary(c *gin.Context) {
	st := r.deps.Risk.Status()
	c.JSON(http.StatusOK, summaryResponse{
		Trades: r.deps.Ledger.Summary(),
		Equity: st.Equity,
		Peak:   st.PeakEquity,
		Daily:  st.DailyPnL,
		MaxDD:  st.MaxDrawdownSeen,
	})
}

func (r *Router) handleTicks(c *gin.Context) {
	if r.deps.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	ticks, err := r.deps.Journal.RecentTicks(c.Request.Context(), parseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticks": ticks, "count": len(ticks)})
}

func (r *Router) handleKillSwitchState(c *gin.Context) {
	if r.deps.KillSwitch == nil {
		c.JSON(http.StatusOK, gin.H{"active": r.deps.Risk.Status().KillSwitch, "writable": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": r.deps.KillSwitch.Active(), "writable": true})
}

func (r *Router) handleKillSwitch(c *gin.Context) {
	if r.deps.KillSwitch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file kill switch not configured"})
		return
	}
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"active\": true|false}"})
		return
	}
	active := *req.Active
	if err := r.deps.KillSwitch.Set(active); err != nil {
		logger.Errorf("kill switch update failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Warnf("kill switch set to %v via http from %s (reason=%q)", active, c.ClientIP(), req.Reason)
	c.JSON(http.StatusOK, gin.H{"active": active})
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
