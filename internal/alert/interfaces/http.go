// Package interfaces 告警服务接口层
package interfaces

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/cashflow/internal/alert/application"
	"github.com/wyfcoding/cashflow/internal/alert/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/middleware"
)

const dateLayout = "2006-01-02"

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	evaluator *application.Evaluator
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(evaluator *application.Evaluator) *HTTPHandler {
	return &HTTPHandler{evaluator: evaluator}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	alerts := r.Group("/alerts")
	{
		alerts.GET("", h.List)
		alerts.POST("/evaluate", h.Evaluate)
		alerts.PUT("/:id/acknowledge", h.Acknowledge)
		alerts.PUT("/:id/resolve", h.Resolve)
		alerts.PUT("/:id/dismiss", h.Dismiss)
	}
	r.GET("/working-capital/recommendations", h.Recommendations)
}

type alertResponse struct {
	ID              string         `json:"id"`
	AlertType       string         `json:"alertType"`
	Severity        string         `json:"severity"`
	Status          string         `json:"status"`
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	PredictedDate   *string        `json:"predictedDate,omitempty"`
	PredictedAmount *int64         `json:"predictedAmount,omitempty"`
	ExpiresAt       *time.Time     `json:"expiresAt,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func toAlertResponse(a *domain.Alert) alertResponse {
	resp := alertResponse{
		ID:        a.ID,
		AlertType: string(a.AlertType),
		Severity:  string(a.Severity),
		Status:    string(a.Status),
		Title:     a.Title,
		Message:   a.Message,
		ExpiresAt: a.ExpiresAt,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.PredictedDate != nil {
		s := a.PredictedDate.Format(dateLayout)
		resp.PredictedDate = &s
	}
	if a.PredictedAmount != nil {
		v := a.PredictedAmount.Int64()
		resp.PredictedAmount = &v
	}
	return resp
}

// List 列出告警，支持 status 与 limit 查询参数
func (h *HTTPHandler) List(c *gin.Context) {
	var status *domain.Status
	if s := c.Query("status"); s != "" {
		st := domain.Status(s)
		switch st {
		case domain.StatusActive, domain.StatusAcknowledged, domain.StatusResolved, domain.StatusDismissed:
			status = &st
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status", "fields": gin.H{"status": s}})
			return
		}
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit", "fields": gin.H{"limit": s}})
			return
		}
		limit = v
	}

	alerts, err := h.evaluator.List(c.Request.Context(), middleware.CompanyID(c), status, limit)
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for i := range alerts {
		out = append(out, toAlertResponse(&alerts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

// Evaluate 执行规则评估并创建新告警
func (h *HTTPHandler) Evaluate(c *gin.Context) {
	created, err := h.evaluator.Evaluate(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}

	out := make([]alertResponse, 0, len(created))
	for i := range created {
		out = append(out, toAlertResponse(&created[i]))
	}
	c.JSON(http.StatusOK, gin.H{"created": out})
}

// Recommendations dry-run 评估，返回建议而不创建告警
func (h *HTTPHandler) Recommendations(c *gin.Context) {
	recs, err := h.evaluator.Recommendations(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// Acknowledge 确认告警
func (h *HTTPHandler) Acknowledge(c *gin.Context) {
	h.applyTransition(c, h.evaluator.Acknowledge)
}

// Resolve 解决告警
func (h *HTTPHandler) Resolve(c *gin.Context) {
	h.applyTransition(c, h.evaluator.Resolve)
}

// Dismiss 忽略告警
func (h *HTTPHandler) Dismiss(c *gin.Context) {
	h.applyTransition(c, h.evaluator.Dismiss)
}

func (h *HTTPHandler) applyTransition(c *gin.Context, apply func(context.Context, string, string) (*domain.Alert, error)) {
	alert, err := apply(c.Request.Context(), middleware.CompanyID(c), c.Param("id"))
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(alert))
}
