// Package middleware 提供 Gin 与 gRPC 的通用中间件（日志、trace、panic recover、租户范围、指标）
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/wyfcoding/cashflow/pkg/logger"
	"github.com/wyfcoding/cashflow/pkg/metrics"
)

// RequestIDKey gin context key for request ID
const RequestIDKey = "request_id"

// TraceIDKey gin context key for trace ID
const TraceIDKey = "trace_id"

// CompanyIDKey gin context key for the authenticated company scope
const CompanyIDKey = "company_id"

// GinLoggingMiddleware Gin 日志中间件
func GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Set(TraceIDKey, traceID)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		ctx := logger.WithTraceID(c.Request.Context(), traceID)
		ctx = logger.WithRequestID(ctx, requestID)
		c.Request = c.Request.WithContext(ctx)

		logger.Info(ctx, "HTTP request started",
			"method", method,
			"path", path,
			"client_ip", c.ClientIP(),
		)

		c.Next()

		logger.Info(ctx, "HTTP request completed",
			"method", method,
			"path", path,
			"status_code", c.Writer.Status(),
			"response_size", c.Writer.Size(),
			"duration", time.Since(start),
		)
	}
}

// GinRecoveryMiddleware Gin panic 恢复中间件
func GinRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get(RequestIDKey)

				logger.Error(c.Request.Context(), "HTTP request panicked",
					"request_id", requestID,
					"panic", err,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}

// GinMetricsMiddleware Gin 指标中间件
func GinMetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
	}
}

// GinCompanyScopeMiddleware 提取调用方的公司范围。鉴权由上游网关完成，
// 此处只负责把已验证的 X-Company-ID 透传给业务层；缺失即拒绝。
func GinCompanyScopeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.GetHeader("X-Company-ID")
		if companyID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing company scope"})
			return
		}
		if _, err := uuid.Parse(companyID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid company scope"})
			return
		}
		c.Set(CompanyIDKey, companyID)
		c.Next()
	}
}

// CompanyID 读取中间件注入的公司标识
func CompanyID(c *gin.Context) string {
	return c.GetString(CompanyIDKey)
}

// GRPCLoggingInterceptor gRPC 日志拦截器
func GRPCLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := uuid.New().String()
		ctx = logger.WithRequestID(ctx, requestID)

		start := time.Now()
		resp, err := handler(ctx, req)

		if err != nil {
			st, _ := status.FromError(err)
			logger.Error(ctx, "gRPC request failed",
				"method", info.FullMethod,
				"error_code", st.Code().String(),
				"error_message", st.Message(),
				"duration", time.Since(start),
			)
		} else {
			logger.Info(ctx, "gRPC request completed",
				"method", info.FullMethod,
				"duration", time.Since(start),
			)
		}

		return resp, err
	}
}

// GRPCRecoveryInterceptor gRPC panic 恢复拦截器
func GRPCRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(ctx, "gRPC request panicked",
					"method", info.FullMethod,
					"panic", err,
				)
			}
		}()
		return handler(ctx, req)
	}
}
