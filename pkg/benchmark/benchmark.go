package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"go.uber.org/zap"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/engine"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// Config 基准测试配置
type Config struct {
	Runs             int
	Warmup           int
	ThroughputWindow time.Duration
	// Parallel 吞吐测试的并发引擎数，每个引擎独立生成密钥
	Parallel int
	// DataSizes 加解密测试的数据规模，超出槽位数的规模会被跳过
	DataSizes []int
	// OperationSize 同态运算与吞吐测试使用的数据规模
	OperationSize int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Runs:             20,
		Warmup:           5,
		ThroughputWindow: 10 * time.Second,
		Parallel:         1,
		DataSizes:        []int{1, 10, 50, 100, 500, 1000},
		OperationSize:    100,
	}
}

// SizeResult 某个数据规模下的加解密耗时
type SizeResult struct {
	Size       int   `json:"size"`
	Encryption Stats `json:"encryption"`
	Decryption Stats `json:"decryption"`
	Total      Stats `json:"total"`
}

// OperationResult 单个同态运算的耗时与精度
type OperationResult struct {
	Operation types.OperationKind `json:"operation"`
	Times     Stats               `json:"times"`
	Precision Precision           `json:"precision"`
}

// Report 完整报告
type Report struct {
	Info       engine.Info       `json:"info"`
	Runs       int               `json:"runs"`
	Warmup     int               `json:"warmup"`
	Timestamp  time.Time         `json:"timestamp"`
	Encryption []SizeResult      `json:"encryption_decryption"`
	Operations []OperationResult `json:"operations"`
	Throughput *Throughput       `json:"throughput,omitempty"`
}

// Suite 在单个引擎上运行基准测试
type Suite struct {
	engine *engine.Engine
	cfg    Config
	logger *zap.Logger
}

// Option 选项
type Option func(*Suite)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Suite) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New 创建基准测试
func New(e *engine.Engine, cfg Config, opts ...Option) (*Suite, error) {
	if e == nil {
		return nil, types.Uninitialized("new benchmark")
	}
	if cfg.Runs < 1 {
		return nil, types.Config("new benchmark", "runs must be at least 1, got %d", cfg.Runs)
	}
	if cfg.Warmup < 0 || cfg.Parallel < 0 || cfg.ThroughputWindow < 0 || cfg.OperationSize < 0 {
		return nil, types.Config("new benchmark", "negative benchmark setting in %+v", cfg)
	}
	if cfg.Parallel == 0 {
		cfg.Parallel = 1
	}
	if cfg.OperationSize == 0 {
		cfg.OperationSize = DefaultConfig().OperationSize
	}
	s := &Suite{engine: e, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run 依次执行预热、加解密、同态运算和吞吐测试；ThroughputWindow 为0时跳过吞吐测试
func (s *Suite) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		Info:      s.engine.Info(),
		Runs:      s.cfg.Runs,
		Warmup:    s.cfg.Warmup,
		Timestamp: time.Now().UTC(),
	}
	if err := s.warmup(); err != nil {
		return nil, err
	}

	var err error
	if report.Encryption, err = s.EncryptDecrypt(ctx); err != nil {
		return nil, err
	}
	if report.Operations, err = s.Operations(ctx); err != nil {
		return nil, err
	}
	if s.cfg.ThroughputWindow > 0 {
		tp, err := s.Throughput(ctx)
		if err != nil {
			return nil, err
		}
		report.Throughput = &tp
	}
	return report, nil
}

func (s *Suite) warmup() error {
	data := []float64{1, 2, 3, 4, 5}
	for i := 0; i < s.cfg.Warmup; i++ {
		ct, err := s.engine.Encrypt(data)
		if err != nil {
			return err
		}
		if _, err := s.engine.Decrypt(ct); err != nil {
			return err
		}
		if _, err := s.engine.Add(ct, ct); err != nil {
			return err
		}
	}
	s.logger.Debug("warmup complete", zap.Int("runs", s.cfg.Warmup))
	return nil
}

// testData 整数方案为 1..n，近似实数方案为 i+0.1
func (s *Suite) testData(n int, offset float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
		if s.engine.Context().Scheme() == types.ApproximateReal {
			out[i] += offset
		}
	}
	return out
}

// EncryptDecrypt 测量各数据规模下的加密与解密耗时
func (s *Suite) EncryptDecrypt(ctx context.Context) ([]SizeResult, error) {
	slots := s.engine.Context().SlotCount()
	var results []SizeResult
	for _, size := range s.cfg.DataSizes {
		if size < 1 || size > slots {
			s.logger.Warn("skipping data size", zap.Int("size", size), zap.Int("slots", slots))
			continue
		}
		data := s.testData(size, 0.1)
		enc := make([]float64, 0, s.cfg.Runs)
		dec := make([]float64, 0, s.cfg.Runs)
		total := make([]float64, 0, s.cfg.Runs)
		for i := 0; i < s.cfg.Runs; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			start := time.Now()
			ct, err := s.engine.Encrypt(data)
			if err != nil {
				return nil, err
			}
			e := millis(time.Since(start))

			start = time.Now()
			if _, err := s.engine.Decrypt(ct); err != nil {
				return nil, err
			}
			d := millis(time.Since(start))

			enc = append(enc, e)
			dec = append(dec, d)
			total = append(total, e+d)
		}
		results = append(results, SizeResult{
			Size:       size,
			Encryption: Summarize(enc),
			Decryption: Summarize(dec),
			Total:      Summarize(total),
		})
		s.logger.Debug("measured encryption", zap.Int("size", size))
	}
	return results, nil
}

// operationCase 一个运算的输入与明文期望值
type operationCase struct {
	kind    types.OperationKind
	operand any
	want    func(a, b float64) float64
}

var operationCases = []operationCase{
	{types.OpAddCipher, nil, func(a, b float64) float64 { return a + b }},
	{types.OpMultiplyCipher, nil, func(a, b float64) float64 { return a * b }},
	{types.OpSquare, nil, func(a, _ float64) float64 { return a * a }},
	{types.OpAddPlain, 10, func(a, _ float64) float64 { return a + 10 }},
	{types.OpMultiplyPlain, 2, func(a, _ float64) float64 { return a * 2 }},
}

// Operations 测量每种同态运算的耗时，并用最后一次结果评估精度
func (s *Suite) Operations(ctx context.Context) ([]OperationResult, error) {
	n := min(s.cfg.OperationSize, s.engine.Context().SlotCount())
	a := s.testData(n, 0.1)
	b := make([]float64, n)
	for i := range b {
		b[i] = float64(n - i)
		if s.engine.Context().Scheme() == types.ApproximateReal {
			b[i] += 0.2
		}
	}
	ctA, err := s.engine.Encrypt(a)
	if err != nil {
		return nil, err
	}
	ctB, err := s.engine.Encrypt(b)
	if err != nil {
		return nil, err
	}

	results := make([]OperationResult, 0, len(operationCases))
	for _, oc := range operationCases {
		times := make([]float64, 0, s.cfg.Runs)
		var last *rlwe.Ciphertext
		for i := 0; i < s.cfg.Runs; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			start := time.Now()
			last, err = s.engine.Apply(oc.kind, ctA, ctB, oc.operand)
			if err != nil {
				return nil, fmt.Errorf("benchmark %s: %w", oc.kind, err)
			}
			times = append(times, millis(time.Since(start)))
		}

		got, err := s.engine.Decrypt(last)
		if err != nil {
			return nil, err
		}
		want := make([]float64, n)
		for i := range want {
			want[i] = oc.want(a[i], b[i])
		}
		res := OperationResult{Operation: oc.kind, Times: Summarize(times), Precision: MeasurePrecision(want, got)}
		results = append(results, res)
		s.logger.Debug("measured operation",
			zap.String("operation", string(oc.kind)),
			zap.Float64("mean_ms", res.Times.Mean),
			zap.Float64("precision_bits", res.Precision.Bits))
	}
	return results, nil
}

// Save 以缩进JSON写入文件
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Operation 按运算名查找结果
func (r *Report) Operation(kind types.OperationKind) (OperationResult, bool) {
	for _, res := range r.Operations {
		if res.Operation == kind {
			return res, true
		}
	}
	return OperationResult{}, false
}
