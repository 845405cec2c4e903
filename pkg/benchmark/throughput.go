package benchmark

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/engine"
)

// Throughput 固定时间窗口内的每秒操作数，多个并发引擎的计数相加
type Throughput struct {
	Window     time.Duration `json:"window"`
	Parallel   int           `json:"parallel"`
	Encryption float64       `json:"encryption_ops_per_second"`
	Decryption float64       `json:"decryption_ops_per_second"`
	Addition   float64       `json:"addition_ops_per_second"`
}

type counts struct {
	encrypt, decrypt, add int
}

// Throughput 测量加密、解密与密文加法的吞吐。
// 引擎不支持并发调用，Parallel > 1 时其余工作协程在同一上下文上各自生成密钥。
func (s *Suite) Throughput(ctx context.Context) (Throughput, error) {
	engines := make([]*engine.Engine, s.cfg.Parallel)
	engines[0] = s.engine
	for i := 1; i < len(engines); i++ {
		e, err := engine.NewFromContext(s.engine.Context(), engine.WithLogger(s.logger))
		if err != nil {
			return Throughput{}, err
		}
		engines[i] = e
	}

	n := min(s.cfg.OperationSize, s.engine.Context().SlotCount())
	data := s.testData(n, 0.1)
	results := make([]counts, len(engines))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range engines {
		g.Go(func() error {
			c, err := s.measure(gctx, e, data)
			results[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Throughput{}, err
	}

	var total counts
	for _, c := range results {
		total.encrypt += c.encrypt
		total.decrypt += c.decrypt
		total.add += c.add
	}
	secs := s.cfg.ThroughputWindow.Seconds()
	tp := Throughput{
		Window:     s.cfg.ThroughputWindow,
		Parallel:   len(engines),
		Encryption: float64(total.encrypt) / secs,
		Decryption: float64(total.decrypt) / secs,
		Addition:   float64(total.add) / secs,
	}
	s.logger.Debug("measured throughput",
		zap.Float64("encryption", tp.Encryption),
		zap.Float64("decryption", tp.Decryption),
		zap.Float64("addition", tp.Addition))
	return tp, nil
}

// measure 每个阶段至少执行一次，直到窗口结束
func (s *Suite) measure(ctx context.Context, e *engine.Engine, data []float64) (counts, error) {
	var c counts
	window := s.cfg.ThroughputWindow

	for start := time.Now(); c.encrypt == 0 || time.Since(start) < window; c.encrypt++ {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		if _, err := e.Encrypt(data); err != nil {
			return c, err
		}
	}

	ct, err := e.Encrypt(data)
	if err != nil {
		return c, err
	}
	for start := time.Now(); c.decrypt == 0 || time.Since(start) < window; c.decrypt++ {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		if _, err := e.Decrypt(ct); err != nil {
			return c, err
		}
	}

	for start := time.Now(); c.add == 0 || time.Since(start) < window; c.add++ {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		if _, err := e.Add(ct, ct); err != nil {
			return c, err
		}
	}
	return c, nil
}
