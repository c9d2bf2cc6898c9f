// Package metrics 提供 Prometheus helper，包含 HTTP 通用指标与分析引擎业务指标
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/cashflow/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 余额重建耗时
	ReconstructionDuration prometheus.Histogram
	// 预测运行计数（按终态）
	ForecastRunsTotal *prometheus.CounterVec
	// 预测交接失败计数
	HandoffFailuresTotal prometheus.Counter
	// 营运资金指标计算计数
	WorkingCapitalCalcsTotal prometheus.Counter
	// 告警发出计数（按类型）
	AlertsEmittedTotal *prometheus.CounterVec
	// 当前 active 告警数（按公司）
	AlertsActive *prometheus.GaugeVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashflow",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cashflow",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ReconstructionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cashflow",
			Subsystem: serviceName,
			Name:      "balance_reconstruction_duration_seconds",
			Help:      "Balance series reconstruction duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ForecastRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashflow",
			Subsystem: serviceName,
			Name:      "forecast_runs_total",
			Help:      "Forecast runs by terminal status",
		}, []string{"status"}),
		HandoffFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cashflow",
			Subsystem: serviceName,
			Name:      "forecast_handoff_failures_total",
			Help:      "Failed handoffs to the prediction worker",
		}),
		WorkingCapitalCalcsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cashflow",
			Subsystem: serviceName,
			Name:      "working_capital_calculations_total",
			Help:      "Working capital metric calculations",
		}),
		AlertsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashflow",
			Subsystem: serviceName,
			Name:      "alerts_emitted_total",
			Help:      "Alerts emitted by type",
		}, []string{"type"}),
		AlertsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cashflow",
			Subsystem: serviceName,
			Name:      "alerts_active",
			Help:      "Number of active alerts",
		}, []string{"company"}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReconstructionDuration,
		m.ForecastRunsTotal,
		m.HandoffFailuresTotal,
		m.WorkingCapitalCalcsTotal,
		m.AlertsEmittedTotal,
		m.AlertsActive,
	}

	for _, collector := range collectors {
		if err := prometheus.DefaultRegisterer.Register(collector); err != nil {
			logger.Error(context.Background(), "failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "metrics registered")
	return nil
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Prometheus HTTP server stopped", "error", err)
		}
	}()
}
