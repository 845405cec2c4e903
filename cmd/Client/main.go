package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/benchmark"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/config"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/client"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/engine"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fhe-client",
	Short: "同态加密客户端：本地加解密，远端密文运算",
	Long: `fhe-client 持有全部密钥。local 在本地完成整个流程，
offload 只把密文和方案参数发给执行端，结果在本地解密。`,
	SilenceUsage: true,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "打印当前参数与密钥状态",
	RunE:  runInfo,
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "本地执行 加密 -> 运算 -> 解密",
	RunE:  runLocal,
}

var offloadCmd = &cobra.Command{
	Use:   "offload",
	Short: "本地加密，远端运算，本地解密",
	RunE:  runOffload,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "查询执行端状态",
	RunE:  runHealth,
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "测量加解密、同态运算与吞吐",
	RunE:  runBenchmark,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())

	for _, cmd := range []*cobra.Command{localCmd, offloadCmd} {
		cmd.Flags().Float64Slice("values", []float64{20, 117, 83, 80, 99}, "input values")
		cmd.Flags().String("operation", string(types.OpAddPlain), "operation: add_plain, multiply_plain, add_cipher, multiply_cipher, square")
		cmd.Flags().Float64Slice("operand", []float64{0, 5, 0, 0, 0}, "operand values; a single value is broadcast")
	}
	benchmarkCmd.Flags().IntSlice("sizes", benchmark.DefaultConfig().DataSizes, "data sizes for encryption/decryption")
	benchmarkCmd.Flags().Int("operation-size", benchmark.DefaultConfig().OperationSize, "data size for operations and throughput")
	benchmarkCmd.Flags().String("output", "", "write the JSON report to this file")

	healthCmd.Flags().Duration("wait", 0, "poll until the worker is ready or this long has passed")

	rootCmd.AddCommand(infoCmd, localCmd, offloadCmd, healthCmd, benchmarkCmd)
}

// setup 加载配置、日志并创建引擎
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, *engine.Engine, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return cfg, nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, nil, err
	}
	sp, err := cfg.SchemeParameters()
	if err != nil {
		return cfg, logger, nil, err
	}
	e, err := engine.New(sp, engine.WithLogger(logger), engine.WithRelinearization(cfg.Relinearization))
	if err != nil {
		return cfg, logger, nil, err
	}
	return cfg, logger, e, nil
}

// operationFlags 读取 values/operation/operand
func operationFlags(cmd *cobra.Command) ([]float64, types.OperationKind, any, error) {
	values, err := cmd.Flags().GetFloat64Slice("values")
	if err != nil {
		return nil, "", nil, err
	}
	name, err := cmd.Flags().GetString("operation")
	if err != nil {
		return nil, "", nil, err
	}
	kind, err := types.ParseOperation(name)
	if err != nil {
		return nil, "", nil, err
	}
	operand, err := cmd.Flags().GetFloat64Slice("operand")
	if err != nil {
		return nil, "", nil, err
	}
	if len(operand) == 1 {
		return values, kind, operand[0], nil
	}
	return values, kind, operand, nil
}

func runInfo(cmd *cobra.Command, _ []string) error {
	_, logger, e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	data, err := json.MarshalIndent(e.Info(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runLocal(cmd *cobra.Command, _ []string) error {
	_, logger, e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	values, kind, operand, err := operationFlags(cmd)
	if err != nil {
		return err
	}
	result, err := e.Evaluate(values, kind, operand)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s 本地执行完成\n", kind)
	fmt.Printf("  输入: %v\n", values)
	fmt.Printf("  结果: %s\n", formatValues(result))
	return nil
}

func runOffload(cmd *cobra.Command, _ []string) error {
	cfg, logger, e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	values, kind, operand, err := operationFlags(cmd)
	if err != nil {
		return err
	}
	tr, err := client.NewTransport(cfg.Transport, cfg.Endpoint, &http.Client{})
	if err != nil {
		return err
	}
	if ws, ok := tr.(*client.WebSocketTransport); ok {
		defer ws.Close()
	}
	o, err := client.New(e, tr,
		client.WithLogger(logger),
		client.WithRelinearizationKey(cfg.SendRelinKey))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	out, err := o.Offload(ctx, values, kind, operand)
	if err != nil {
		return err
	}
	t := out.Timings
	fmt.Printf("✓ %s 远端执行完成 (request %s)\n", out.Operation, out.RequestID)
	fmt.Printf("  输入: %v\n", values)
	fmt.Printf("  结果: %s\n", formatValues(out.Values))
	fmt.Printf("  加密: %v  远端计算: %v  网络: %v  解密: %v  总计: %v\n",
		t.Encryption, t.RemoteCompute, t.Network, t.Decryption, t.Total)
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	wait, err := cmd.Flags().GetDuration("wait")
	if err != nil {
		return err
	}

	var hs client.HealthStatus
	if wait > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), wait)
		defer cancel()
		hs, err = client.WaitReady(ctx, nil, cfg.Endpoint, time.Second)
	} else {
		hs, err = client.CheckHealth(cmd.Context(), nil, cfg.Endpoint)
	}
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s %s, 运行 %ds, 缓存上下文 %d\n", cfg.Endpoint, hs.Status, hs.UptimeSeconds, hs.CachedContexts)
	fmt.Printf("  支持的运算: %v\n", hs.Operations)
	return nil
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	cfg, logger, e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	bc := benchmark.Config{
		Runs:             cfg.BenchmarkRuns,
		Warmup:           cfg.BenchmarkWarmup,
		ThroughputWindow: cfg.ThroughputWindow,
		Parallel:         cfg.Parallel,
	}
	if bc.DataSizes, err = cmd.Flags().GetIntSlice("sizes"); err != nil {
		return err
	}
	if bc.OperationSize, err = cmd.Flags().GetInt("operation-size"); err != nil {
		return err
	}
	suite, err := benchmark.New(e, bc, benchmark.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	report, err := suite.Run(ctx)
	if err != nil {
		return err
	}
	printReport(report)

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := report.Save(path); err != nil {
			return err
		}
		fmt.Printf("✓ 报告已写入 %s\n", path)
	}
	return nil
}

func printReport(r *benchmark.Report) {
	fmt.Println("==================== 基准测试 ====================")
	fmt.Printf("方案: %s  N=%d  安全级别: %d  运行次数: %d\n",
		r.Info.Scheme, r.Info.PolyModulusDegree, r.Info.SecurityLevel, r.Runs)

	fmt.Println("\n加密/解密 (ms):")
	for _, s := range r.Encryption {
		fmt.Printf("  size=%-5d 加密 %8.3f ± %.3f  解密 %8.3f ± %.3f\n",
			s.Size, s.Encryption.Mean, s.Encryption.Std, s.Decryption.Mean, s.Decryption.Std)
	}

	fmt.Println("\n同态运算 (ms):")
	for _, op := range r.Operations {
		fmt.Printf("  %-16s mean %8.3f  median %8.3f  [%.3f, %.3f]  精度 %.1f bits\n",
			op.Operation, op.Times.Mean, op.Times.Median, op.Times.Min, op.Times.Max, op.Precision.Bits)
	}

	if tp := r.Throughput; tp != nil {
		fmt.Printf("\n吞吐 (ops/s, %d 并发, 窗口 %v):\n", tp.Parallel, tp.Window)
		fmt.Printf("  加密 %.1f  解密 %.1f  加法 %.1f\n", tp.Encryption, tp.Decryption, tp.Addition)
	}
	fmt.Println("==================================================")
}

func formatValues(values []float64) string {
	out := "["
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%.4g", v)
	}
	return out + "]"
}
