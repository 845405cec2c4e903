package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// HealthStatus 执行端 /health 的响应
type HealthStatus struct {
	Status         string                `json:"status"`
	UptimeSeconds  int64                 `json:"uptime_seconds"`
	CachedContexts int                   `json:"cached_contexts"`
	Operations     []types.OperationKind `json:"operations"`
}

// CheckHealth 查询执行端状态
func CheckHealth(ctx context.Context, client *http.Client, baseURL string) (HealthStatus, error) {
	const op = "health"
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return HealthStatus{}, types.NewError(types.TransportError, op, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return HealthStatus{}, types.NewError(types.TransportError, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, types.NewError(types.RemoteExecutionError, op,
			fmt.Errorf("%w: status %d", types.ErrRemoteExecutionFailed, resp.StatusCode))
	}
	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, types.NewError(types.TransportError, op, fmt.Errorf("decode response: %w", err))
	}
	return hs, nil
}

// WaitReady 按 interval 轮询 /health，直到执行端可用或 ctx 结束
func WaitReady(ctx context.Context, client *http.Client, baseURL string, interval time.Duration) (HealthStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		hs, err := CheckHealth(ctx, client, baseURL)
		if err == nil && hs.Status == "ok" {
			return hs, nil
		}
		select {
		case <-ctx.Done():
			if err == nil {
				err = fmt.Errorf("worker reports status %q", hs.Status)
			}
			return hs, fmt.Errorf("worker not ready: %w", errors.Join(ctx.Err(), err))
		case <-ticker.C:
		}
	}
}
