package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wyfcoding/cashflow/internal/forecast/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
)

// HTTPWorkerClient 外部预测 worker 的 HTTP 客户端。
// worker 暴露单一 JSON 接口 POST {base}/forecast，异步生成预测。
type HTTPWorkerClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWorkerClient 创建 worker 客户端
func NewHTTPWorkerClient(baseURL string, timeout time.Duration) *HTTPWorkerClient {
	return &HTTPWorkerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// RequestForecast 通知 worker 开始生成预测
func (c *HTTPWorkerClient) RequestForecast(ctx context.Context, req domain.HandoffRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal handoff request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forecast", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build handoff request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return apperr.Upstream("prediction worker unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.Upstream("prediction worker returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

var _ domain.WorkerClient = (*HTTPWorkerClient)(nil)
