package apihttp

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kabuto/internal/logger"
	"kabuto/internal/market"
	"kabuto/internal/params"
	"kabuto/internal/store/paramstore"
	"kabuto/internal/store/runstore"

	"github.com/gin-gonic/gin"
)

// Router 暴露分析任务触发与结果查询接口。
// OnAnalyze / OnReevaluate 由装配层注入，handler 只负责丢进后台执行。
type Router struct {
	Runs    *runstore.Store
	Params  *paramstore.Store
	Catalog *params.Catalog
	Market  market.Source

	OnAnalyze    func()
	OnReevaluate func()
}

// Register 将接口挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/analyze/run", r.handleAnalyzeRun)
	group.POST("/tuning/reevaluate", r.handleReevaluate)
	group.GET("/stocks/search", r.handleStockSearch)
	group.GET("/stocks/summary", r.handleStockSummary)
	group.GET("/params", r.handleParams)
	group.GET("/params/:name/history", r.handleParamHistory)
	group.GET("/runs/:id", r.handleRunByID)
}

func (r *Router) handleAnalyzeRun(c *gin.Context) {
	if r.OnAnalyze == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "分析任务未接入"})
		return
	}
	logger.Infof("[api] 收到分析触发请求 ip=%s", c.ClientIP())
	go r.OnAnalyze()
	c.JSON(http.StatusAccepted, gin.H{"message": "Analysis task started in the background."})
}

func (r *Router) handleReevaluate(c *gin.Context) {
	if r.OnReevaluate == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "复盘任务未接入"})
		return
	}
	logger.Infof("[api] 收到复盘触发请求 ip=%s", c.ClientIP())
	go r.OnReevaluate()
	c.JSON(http.StatusAccepted, gin.H{"message": "Re-evaluation task started in the background."})
}

func (r *Router) handleStockSearch(c *gin.Context) {
	if r.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	minBuy, _ := strconv.Atoi(c.DefaultQuery("min_buy_score", "0"))
	minShort, _ := strconv.Atoi(c.DefaultQuery("min_short_score", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	query := runstore.SearchQuery{
		MinBuyScore:   minBuy,
		MinShortScore: minShort,
		SortBy:        c.DefaultQuery("sort_by", "buy_score"),
		SortOrder:     c.DefaultQuery("sort_order", "desc"),
		Limit:         limit,
	}
	withInfo := parseBoolDefaultTrue(c.DefaultQuery("include_info", "1"))

	reqCtx := c.Request.Context()
	run, ok, err := r.Runs.LatestRun(reqCtx)
	if err != nil {
		logger.Errorf("[api] 查询最近运行失败 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "Found 0 stocks.", "analysis_results": []resultPayload{}})
		return
	}
	records, err := r.Runs.SearchResults(reqCtx, run.ID, query)
	if err != nil {
		logger.Errorf("[api] 检索结果失败 run=%s err=%v", run.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	payloads := r.enrichResults(reqCtx, run, records, withInfo)
	c.JSON(http.StatusOK, gin.H{
		"message":          fmt.Sprintf("Found %d stocks.", len(payloads)),
		"analysis_results": payloads,
	})
}

func (r *Router) handleStockSummary(c *gin.Context) {
	if r.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	topN, _ := strconv.Atoi(c.DefaultQuery("top_n", "5"))
	if topN <= 0 {
		topN = 5
	}
	if topN > 50 {
		topN = 50
	}
	withInfo := parseBoolDefaultTrue(c.DefaultQuery("include_info", "1"))

	reqCtx := c.Request.Context()
	run, ok, err := r.Runs.LatestRun(reqCtx)
	if err != nil {
		logger.Errorf("[api] 查询最近运行失败 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"top_buys": []resultPayload{}, "top_shorts": []resultPayload{}})
		return
	}
	buys, err := r.Runs.SearchResults(reqCtx, run.ID, runstore.SearchQuery{SortBy: "buy_score", SortOrder: "desc", Limit: topN})
	if err != nil {
		logger.Errorf("[api] 查询买入榜失败 run=%s err=%v", run.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	shorts, err := r.Runs.SearchResults(reqCtx, run.ID, runstore.SearchQuery{SortBy: "short_score", SortOrder: "desc", Limit: topN})
	if err != nil {
		logger.Errorf("[api] 查询做空榜失败 run=%s err=%v", run.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"top_buys":   r.enrichResults(reqCtx, run, buys, withInfo),
		"top_shorts": r.enrichResults(reqCtx, run, shorts, withInfo),
	})
}

func (r *Router) handleParams(c *gin.Context) {
	if r.Params == nil || r.Catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "参数存储未启用"})
		return
	}
	asOf := time.Now()
	if raw := strings.TrimSpace(c.Query("as_of")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "as_of 需要 YYYY-MM-DD 格式"})
			return
		}
		asOf = parsed
	}
	snap, err := r.Params.Current(c.Request.Context(), asOf, r.Catalog.Snapshot().Names())
	if err != nil {
		var missing *params.MissingParameterError
		if errors.As(err, &missing) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] 解析参数快照失败 as_of=%s err=%v", asOf.Format("2006-01-02"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"as_of":  asOf.Format("2006-01-02"),
		"values": snap.Values,
	})
}

func (r *Router) handleParamHistory(c *gin.Context) {
	if r.Params == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "参数存储未启用"})
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	versions, err := r.Params.History(c.Request.Context(), name, limit)
	if err != nil {
		logger.Errorf("[api] 查询参数历史失败 name=%s err=%v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(versions))
	for _, v := range versions {
		out = append(out, gin.H{
			"date":        v.Date.Format("2006-01-02"),
			"value":       v.Value,
			"description": v.Description,
			"created_at":  v.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "versions": out})
}

func (r *Router) handleRunByID(c *gin.Context) {
	if r.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	reqCtx := c.Request.Context()
	run, ok, err := r.Runs.GetRun(reqCtx, id)
	if err != nil {
		logger.Errorf("[api] 查询运行失败 id=%s err=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	results, err := r.Runs.ResultsForRun(reqCtx, run.ID)
	if err != nil {
		logger.Errorf("[api] 查询运行结果失败 id=%s err=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":     newRunPayload(run),
		"results": resultPayloads(results),
	})
}

func parseBoolDefaultTrue(val string) bool {
	s := strings.TrimSpace(strings.ToLower(val))
	if s == "" {
		return true
	}
	if s == "0" || s == "false" {
		return false
	}
	return true
}
