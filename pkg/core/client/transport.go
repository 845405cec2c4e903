package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// Transport 把请求送到远端执行端点并取回结果。
// 远端报告的失败返回 RemoteExecutionError，其余失败返回 TransportError。
type Transport interface {
	Invoke(ctx context.Context, req types.OperationRequest) (types.OperationResult, error)
}

// maxErrorBody 读取错误响应体的上限
const maxErrorBody = 1 << 20

// HTTPTransport 通过 POST /compute 调用远端
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport 创建HTTP传输；client 为 nil 时使用不带超时的默认客户端
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Invoke 发送请求
func (ht *HTTPTransport) Invoke(ctx context.Context, req types.OperationRequest) (types.OperationResult, error) {
	const op = "invoke"
	jsonData, err := json.Marshal(req)
	if err != nil {
		return types.OperationResult{}, types.NewError(types.TransportError, op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ht.baseURL+"/compute", bytes.NewReader(jsonData))
	if err != nil {
		return types.OperationResult{}, types.NewError(types.TransportError, op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := ht.client.Do(httpReq)
	if err != nil {
		return types.OperationResult{}, types.NewError(types.TransportError, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var errResp types.ErrorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
			if errResp.Kind != "" {
				msg = fmt.Sprintf("%s (%s)", msg, errResp.Kind)
			}
		}
		return types.OperationResult{}, types.NewError(types.RemoteExecutionError, op,
			fmt.Errorf("%w: status %d: %s", types.ErrRemoteExecutionFailed, resp.StatusCode, msg))
	}

	var res types.OperationResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return types.OperationResult{}, types.NewError(types.TransportError, op, fmt.Errorf("decode response: %w", err))
	}
	return res, checkResult(res)
}

// checkResult 成功状态但结果中带错误时同样视为远端失败
func checkResult(res types.OperationResult) error {
	if res.Error == "" {
		return nil
	}
	msg := res.Error
	if res.Kind != "" {
		msg = fmt.Sprintf("%s (%s)", msg, res.Kind)
	}
	return types.NewError(types.RemoteExecutionError, "invoke", fmt.Errorf("%w: %s", types.ErrRemoteExecutionFailed, msg))
}

// WebSocketTransport 通过 /ws/compute 长连接调用远端，请求按顺序串行发送
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketTransport 由 http(s) 基础地址推导 ws(s) 地址
func NewWebSocketTransport(baseURL string) *WebSocketTransport {
	url := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return &WebSocketTransport{url: url + "/ws/compute", dialer: websocket.DefaultDialer}
}

// Invoke 发送请求并等待对应的结果帧
func (wt *WebSocketTransport) Invoke(ctx context.Context, req types.OperationRequest) (types.OperationResult, error) {
	const op = "invoke"
	wt.mu.Lock()
	defer wt.mu.Unlock()

	conn, err := wt.connect(ctx)
	if err != nil {
		return types.OperationResult{}, types.NewError(types.TransportError, op, err)
	}

	// ctx 取消时关闭连接以打断阻塞的读写
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
		_ = conn.SetReadDeadline(time.Time{})
	}

	var res types.OperationResult
	err = conn.WriteJSON(req)
	if err == nil {
		err = conn.ReadJSON(&res)
	}
	if !stop() {
		wt.reset()
	}
	if err != nil {
		wt.reset()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return types.OperationResult{}, types.NewError(types.TransportError, op, err)
	}
	if res.RequestID != "" && req.RequestID != "" && res.RequestID != req.RequestID {
		wt.reset()
		return types.OperationResult{}, types.NewError(types.TransportError, op,
			fmt.Errorf("response for %s while waiting for %s", res.RequestID, req.RequestID))
	}
	return res, checkResult(res)
}

func (wt *WebSocketTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	if wt.conn != nil {
		return wt.conn, nil
	}
	conn, resp, err := wt.dialer.DialContext(ctx, wt.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", wt.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wt.url, err)
	}
	wt.conn = conn
	return conn, nil
}

func (wt *WebSocketTransport) reset() {
	if wt.conn != nil {
		wt.conn.Close()
		wt.conn = nil
	}
}

// Close 关闭长连接
func (wt *WebSocketTransport) Close() error {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if wt.conn == nil {
		return nil
	}
	err := wt.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	closeErr := wt.conn.Close()
	wt.conn = nil
	return errors.Join(err, closeErr)
}

// NewTransport 按名称创建传输
func NewTransport(name, baseURL string, client *http.Client) (Transport, error) {
	switch strings.ToLower(name) {
	case "", "http":
		return NewHTTPTransport(baseURL, client), nil
	case "websocket", "ws":
		return NewWebSocketTransport(baseURL), nil
	}
	return nil, types.Config("new transport", "unknown transport %q", name)
}
