package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/config"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/worker"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fhe-worker",
	Short: "远端同态运算执行端",
	Long: `fhe-worker 只接收密文和方案参数，按请求中的参数记录重建上下文后执行同态运算，
结果仍为密文。它从不接触私钥或明文。`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 /compute、/ws/compute、/health 和 /metrics 端点",
	RunE:  serve,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := worker.NewHTTPServer(cfg.ListenAddress,
		worker.WithLogger(logger),
		worker.WithMaxBodyBytes(cfg.MaxBodyBytes),
		worker.WithContextCacheSize(cfg.ContextCacheSize))

	if err := runServer(ctx, server.Start, logger); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	logger.Info("worker stopped")
	return nil
}

// runServer 运行 start 直到它返回；ctx 结束时记录关闭原因
func runServer(ctx context.Context, start func(context.Context) error, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	stopped := make(chan struct{})
	g.Go(func() error {
		defer close(stopped)
		return start(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-stopped:
		}
		if gctx.Err() != nil {
			logger.Info("shutdown requested", zap.NamedError("cause", context.Cause(gctx)))
		}
		return nil
	})
	return g.Wait()
}
