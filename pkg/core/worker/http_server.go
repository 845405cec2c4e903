package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultMaxBodyBytes 请求体上限，足够容纳最大参数下的两个密文和一个重线性化密钥
	DefaultMaxBodyBytes = 64 << 20

	shutdownTimeout = 10 * time.Second
)

// HTTPServer 远端执行端点的HTTP服务器
type HTTPServer struct {
	// Router Gin路由引擎
	Router *gin.Engine
	// Server 底层HTTP服务器
	Server *http.Server

	exec      *Executor
	metrics   *Metrics
	logger    *zap.Logger
	maxBody   int64
	cacheSize int
	upgrader  websocket.Upgrader
	started   time.Time
}

// ServerOption 服务器选项
type ServerOption func(*HTTPServer)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) ServerOption {
	return func(hs *HTTPServer) {
		if logger != nil {
			hs.logger = logger
		}
	}
}

// WithMaxBodyBytes 设置请求体上限
func WithMaxBodyBytes(n int64) ServerOption {
	return func(hs *HTTPServer) {
		if n > 0 {
			hs.maxBody = n
		}
	}
}

// WithContextCacheSize 设置上下文缓存容量
func WithContextCacheSize(n int) ServerOption {
	return func(hs *HTTPServer) {
		if n > 0 {
			hs.cacheSize = n
		}
	}
}

// NewHTTPServer 创建新的HTTP服务器并注册路由
func NewHTTPServer(addr string, opts ...ServerOption) *HTTPServer {
	hs := &HTTPServer{
		metrics:   NewMetrics(),
		logger:    zap.NewNop(),
		maxBody:   DefaultMaxBodyBytes,
		cacheSize: DefaultContextCacheSize,
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(hs)
	}
	hs.exec = NewExecutor(hs.cacheSize)
	hs.exec.onRebuild = hs.metrics.contexts.Inc
	hs.upgrader = websocket.Upgrader{
		ReadBufferSize:  1 << 16,
		WriteBufferSize: 1 << 16,
	}

	router := gin.New()
	router.Use(gin.Recovery(), hs.accessLog())
	hs.Router = router
	hs.setupRoutes()

	hs.Server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return hs
}

// setupRoutes 设置HTTP路由
func (hs *HTTPServer) setupRoutes() {
	hs.Router.POST("/compute", hs.computeHandler)
	hs.Router.GET("/ws/compute", hs.wsComputeHandler)
	hs.Router.GET("/health", hs.healthHandler)
	hs.Router.GET("/metrics", gin.WrapH(hs.metrics.Handler()))
}

// Handler 返回路由，便于测试
func (hs *HTTPServer) Handler() http.Handler {
	return hs.Router
}

// Start 启动HTTP服务器，ctx 取消后优雅关闭
func (hs *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", hs.Server.Addr)
	if err != nil {
		return err
	}
	return hs.Serve(ctx, ln)
}

// Serve 在给定监听器上提供服务
func (hs *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	hs.logger.Info("worker listening",
		zap.String("address", ln.Addr().String()),
		zap.String("local_ip", localIP()),
		zap.Int64("max_body_bytes", hs.maxBody))

	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.Server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	hs.logger.Info("worker shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// accessLog 请求日志中间件
func (hs *HTTPServer) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		hs.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// localIP 获取本机首选的私有IPv4地址，仅用于启动日志
func localIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "unknown"
	}
	fallback := ""
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			if ipnet.IP.IsPrivate() {
				return ipnet.IP.String()
			}
			if fallback == "" {
				fallback = ipnet.IP.String()
			}
		}
	}
	if fallback == "" {
		return "unknown"
	}
	return fallback
}
