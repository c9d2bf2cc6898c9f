// Package interfaces 营运资金接口层
package interfaces

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/cashflow/internal/workingcapital/application"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/middleware"
)

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	calculator *application.CalculatorService
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(calculator *application.CalculatorService) *HTTPHandler {
	return &HTTPHandler{calculator: calculator}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	wc := r.Group("/working-capital")
	{
		wc.GET("/metrics", h.Metrics)
		wc.POST("/metrics/calculate", h.Calculate)
	}
}

// Metrics 最近一次指标；从未计算过时各指标为 null
func (h *HTTPHandler) Metrics(c *gin.Context) {
	result, err := h.calculator.Latest(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// Calculate 按需重算并持久化当日指标
func (h *HTTPHandler) Calculate(c *gin.Context) {
	result, err := h.calculator.Calculate(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, result)
}
