// Package interfaces 现金头寸接口层
package interfaces

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/cashflow/internal/cashposition/application"
	"github.com/wyfcoding/cashflow/internal/cashposition/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/middleware"
)

const dateLayout = "2006-01-02"

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	queryService *application.QueryService
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(queryService *application.QueryService) *HTTPHandler {
	return &HTTPHandler{queryService: queryService}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	cash := r.Group("/cash-position")
	{
		cash.GET("/history", h.History)
		cash.GET("/runway", h.Runway)
	}
}

type balancePointResponse struct {
	Date      string `json:"date"`
	Balance   int64  `json:"balance"`
	NetChange int64  `json:"netChange"`
}

// History 重建余额序列
func (h *HTTPHandler) History(c *gin.Context) {
	companyID := middleware.CompanyID(c)

	start, err := time.Parse(dateLayout, c.DefaultQuery("startDate", time.Now().UTC().AddDate(0, 0, -90).Format(dateLayout)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate", "fields": gin.H{"startDate": "expected YYYY-MM-DD"}})
		return
	}
	end, err := time.Parse(dateLayout, c.DefaultQuery("endDate", time.Now().UTC().Format(dateLayout)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate", "fields": gin.H{"endDate": "expected YYYY-MM-DD"}})
		return
	}
	granularity := domain.Granularity(c.DefaultQuery("granularity", string(domain.GranularityDaily)))

	series, err := h.queryService.History(c.Request.Context(), companyID, start, end.Add(24*time.Hour-time.Nanosecond), granularity)
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}

	out := make([]balancePointResponse, 0, len(series))
	for _, p := range series {
		out = append(out, balancePointResponse{
			Date:      p.Date.Format(dateLayout),
			Balance:   p.Balance.Int64(),
			NetChange: p.NetChange.Int64(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"history": out, "granularity": granularity})
}

// Runway 现金跑道测算
func (h *HTTPHandler) Runway(c *gin.Context) {
	companyID := middleware.CompanyID(c)

	projection, err := h.queryService.Runway(c.Request.Context(), companyID)
	if err != nil {
		c.JSON(apperr.Status(err), apperr.Body(err))
		return
	}

	// 报表边界：转换为主单位
	resp := gin.H{
		"currentBalance": projection.CurrentBalance.Major(),
		"avgMonthlyBurn": projection.AvgMonthlyBurn.Major(),
	}
	if projection.IsInfinite {
		resp["runwayMonths"] = nil
		resp["runwayDays"] = nil
		resp["projectedZeroDate"] = nil
		resp["isInfinite"] = true
	} else {
		resp["runwayMonths"] = projection.RunwayMonths
		resp["runwayDays"] = projection.RunwayDays
		resp["projectedZeroDate"] = projection.ProjectedZeroDate.Format(dateLayout)
		resp["isInfinite"] = false
	}

	c.JSON(http.StatusOK, resp)
}
