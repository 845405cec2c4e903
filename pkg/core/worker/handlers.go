package worker

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// compute 执行请求并记录指标；失败时结果中带 Error 和 Kind
func (hs *HTTPServer) compute(req types.OperationRequest) (types.OperationResult, int) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	hs.metrics.inFlight.Inc()
	defer hs.metrics.inFlight.Dec()

	start := time.Now()
	res, err := hs.exec.Apply(req)
	status := StatusFor(err)
	hs.metrics.observe(req.Operation, status, time.Since(start))

	if err != nil {
		hs.logger.Warn("operation failed",
			zap.String("request_id", req.RequestID),
			zap.String("operation", string(req.Operation)),
			zap.Int("status", status),
			zap.Error(err))
		return failure(req, err), status
	}
	hs.logger.Info("operation completed",
		zap.String("request_id", res.RequestID),
		zap.String("operation", string(res.Operation)),
		zap.Float64("computation_time_ms", res.ComputationTimeMs))
	return res, status
}

func failure(req types.OperationRequest, err error) types.OperationResult {
	return types.OperationResult{
		RequestID: req.RequestID,
		Operation: req.Operation,
		Timestamp: time.Now().UTC(),
		Error:     err.Error(),
		Kind:      types.KindOf(err),
	}
}

// computeHandler POST /compute
func (hs *HTTPServer) computeHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, hs.maxBody)

	var req types.OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			status = http.StatusRequestEntityTooLarge
		}
		hs.metrics.observe("", status, 0)
		c.JSON(status, types.ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Kind:  types.TransportError,
		})
		return
	}

	res, status := hs.compute(req)
	if status != http.StatusOK {
		c.JSON(status, types.ErrorResponse{Error: res.Error, Kind: res.Kind, RequestID: res.RequestID})
		return
	}
	c.JSON(http.StatusOK, res)
}

// healthHandler GET /health
func (hs *HTTPServer) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"uptime_seconds":  int64(time.Since(hs.started).Seconds()),
		"cached_contexts": hs.exec.Cached(),
		"operations":      types.AllOperations,
	})
}

// wsComputeHandler GET /ws/compute，每个文本帧一个请求，按顺序回写结果帧
func (hs *HTTPServer) wsComputeHandler(c *gin.Context) {
	conn, err := hs.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hs.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(hs.maxBody)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				hs.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var req types.OperationRequest
		var res types.OperationResult
		if err := json.Unmarshal(data, &req); err != nil {
			hs.metrics.observe("", http.StatusBadRequest, 0)
			res = failure(req, types.NewError(types.TransportError, "decode request", err))
		} else {
			res, _ = hs.compute(req)
		}

		if err := conn.WriteJSON(res); err != nil {
			hs.logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}
