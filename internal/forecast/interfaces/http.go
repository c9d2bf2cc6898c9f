// Package interfaces 预测服务接口层
package interfaces

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/cashflow/internal/forecast/application"
	"github.com/wyfcoding/cashflow/internal/forecast/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/middleware"
	"github.com/wyfcoding/cashflow/pkg/money"
)

const dateLayout = "2006-01-02"

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	orchestrator *application.Orchestrator
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(orchestrator *application.Orchestrator) *HTTPHandler {
	return &HTTPHandler{orchestrator: orchestrator}
}

// RegisterRoutes 注册公司范围内的路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	forecasts := r.Group("/forecasts")
	{
		forecasts.POST("/generate", h.Generate)
		forecasts.GET("", h.Latest)
		forecasts.GET("/compare", h.Compare)
	}
}

// RegisterInternalRoutes 注册 worker 回写路由（内部网络，不经公司范围中间件）
func (h *HTTPHandler) RegisterInternalRoutes(r *gin.RouterGroup) {
	r.POST("/forecast-runs/:id/complete", h.Complete)
}

// GenerateRequest 创建预测运行请求
type GenerateRequest struct {
	HorizonDays int `json:"horizonDays"`
}

// Generate 创建运行并交接。返回 202：生成被接受，而非已完成。
func (h *HTTPHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.HorizonDays == 0 {
		req.HorizonDays = 90
	}

	result, err := h.orchestrator.Generate(c.Request.Context(), middleware.CompanyID(c), req.HorizonDays, domain.TriggerManual)
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}

	c.JSON(http.StatusAccepted, result)
}

type forecastResponse struct {
	ForecastDate     string  `json:"forecastDate"`
	Scenario         string  `json:"scenario"`
	PredictedBalance int64   `json:"predictedBalance"`
	PredictedInflow  int64   `json:"predictedInflow"`
	PredictedOutflow int64   `json:"predictedOutflow"`
	ConfidenceLower  int64   `json:"confidenceLower"`
	ConfidenceUpper  int64   `json:"confidenceUpper"`
	ConfidenceLevel  float64 `json:"confidenceLevel"`
}

// Latest 最近一次 completed 运行中指定情景的预测
func (h *HTTPHandler) Latest(c *gin.Context) {
	scenario := domain.Scenario(c.DefaultQuery("scenario", string(domain.ScenarioBaseline)))

	var from, to *time.Time
	if s := c.Query("startDate"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate", "fields": gin.H{"startDate": "expected YYYY-MM-DD"}})
			return
		}
		from = &t
	}
	if s := c.Query("endDate"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate", "fields": gin.H{"endDate": "expected YYYY-MM-DD"}})
			return
		}
		to = &t
	}

	forecasts, err := h.orchestrator.Latest(c.Request.Context(), middleware.CompanyID(c), scenario, from, to)
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}

	out := make([]forecastResponse, 0, len(forecasts))
	for _, f := range forecasts {
		out = append(out, forecastResponse{
			ForecastDate:     f.ForecastDate.Format(dateLayout),
			Scenario:         string(f.Scenario),
			PredictedBalance: f.PredictedBalance.Int64(),
			PredictedInflow:  f.PredictedInflow.Int64(),
			PredictedOutflow: f.PredictedOutflow.Int64(),
			ConfidenceLower:  f.ConfidenceLower.Int64(),
			ConfidenceUpper:  f.ConfidenceUpper.Int64(),
			ConfidenceLevel:  f.ConfidenceLevel,
		})
	}

	c.JSON(http.StatusOK, gin.H{"forecasts": out, "scenario": scenario})
}

// Compare 聚合最近一次 completed 运行的全部情景
func (h *HTTPHandler) Compare(c *gin.Context) {
	comparison, err := h.orchestrator.Compare(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"comparison": comparison})
}

// CompletePointRequest worker 回写的单日预测
type CompletePointRequest struct {
	ForecastDate     string  `json:"forecastDate" binding:"required"`
	Scenario         string  `json:"scenario" binding:"required"`
	PredictedBalance int64   `json:"predictedBalance"`
	PredictedInflow  int64   `json:"predictedInflow"`
	PredictedOutflow int64   `json:"predictedOutflow"`
	ConfidenceLower  int64   `json:"confidenceLower"`
	ConfidenceUpper  int64   `json:"confidenceUpper"`
	ConfidenceLevel  float64 `json:"confidenceLevel"`
}

// CompleteRequest worker 的完成回写请求
type CompleteRequest struct {
	CompanyID        string                   `json:"companyId" binding:"required"`
	Status           string                   `json:"status" binding:"required"`
	ErrorMessage     string                   `json:"errorMessage"`
	ModelVersion     string                   `json:"modelVersion"`
	ProcessingTimeMs int64                    `json:"processingTimeMs"`
	AccuracyMetrics  *domain.AccuracyMetrics  `json:"accuracyMetrics"`
	Points           []CompletePointRequest   `json:"forecasts"`
}

// Complete worker 完成回写
func (h *HTTPHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != string(domain.RunCompleted) && req.Status != string(domain.RunFailed) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be completed or failed"})
		return
	}

	result := application.CompletionResult{
		Succeeded:        req.Status == string(domain.RunCompleted),
		ErrorMessage:     req.ErrorMessage,
		ModelVersion:     req.ModelVersion,
		ProcessingTimeMs: req.ProcessingTimeMs,
		AccuracyMetrics:  req.AccuracyMetrics,
	}
	for _, p := range req.Points {
		date, err := time.Parse(dateLayout, p.ForecastDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid forecastDate", "fields": gin.H{"forecastDate": p.ForecastDate}})
			return
		}
		result.Points = append(result.Points, application.ForecastPoint{
			Date:             date,
			Scenario:         domain.Scenario(p.Scenario),
			PredictedBalance: money.Amount(p.PredictedBalance),
			PredictedInflow:  money.Amount(p.PredictedInflow),
			PredictedOutflow: money.Amount(p.PredictedOutflow),
			ConfidenceLower:  money.Amount(p.ConfidenceLower),
			ConfidenceUpper:  money.Amount(p.ConfidenceUpper),
			ConfidenceLevel:  p.ConfidenceLevel,
		})
	}

	if err := h.orchestrator.Complete(c.Request.Context(), req.CompanyID, c.Param("id"), result); err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"forecastRunId": c.Param("id"), "status": req.Status})
}
