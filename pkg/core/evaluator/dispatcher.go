package evaluator

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
	"go.uber.org/zap"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/encoding"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// Dispatcher 同态运算分派器。每个运算都返回新密文，不修改输入。
// 底层求值器带内部缓冲，同一 Dispatcher 不能被多个 goroutine 同时使用。
type Dispatcher struct {
	ctx     *parameters.Context
	encoder *encoding.Encoder

	ckksEval *ckks.Evaluator
	bgvEval  *bgv.Evaluator

	rlk       *rlwe.RelinearizationKey
	decryptor *rlwe.Decryptor
	logger    *zap.Logger

	degraded atomic.Int64
}

// Option Dispatcher 选项
type Option func(*Dispatcher)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDecryptor 提供解密器，启用噪声预算诊断（仅本地持有私钥的一方）
func WithDecryptor(dec *rlwe.Decryptor) Option {
	return func(d *Dispatcher) { d.decryptor = dec }
}

// New 创建分派器，rlk 为 nil 时乘法结果不做重线性化
func New(ctx *parameters.Context, encoder *encoding.Encoder, rlk *rlwe.RelinearizationKey, opts ...Option) (*Dispatcher, error) {
	if ctx == nil || encoder == nil {
		return nil, types.Uninitialized("new dispatcher")
	}

	d := &Dispatcher{ctx: ctx, encoder: encoder, rlk: rlk, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}

	evk := rlwe.NewMemEvaluationKeySet(rlk)
	switch ctx.Scheme() {
	case types.IntegerBatched:
		d.bgvEval = bgv.NewEvaluator(ctx.BGV(), evk, true)
	case types.ApproximateReal:
		d.ckksEval = ckks.NewEvaluator(ctx.CKKS(), evk)
	default:
		return nil, types.Config("new dispatcher", "unknown scheme %v", ctx.Scheme())
	}
	return d, nil
}

// IsRelinearizationAvailable 乘法后是否会重线性化
func (d *Dispatcher) IsRelinearizationAvailable() bool {
	return d != nil && d.rlk != nil
}

// DegradedOperations 未重线性化的乘法次数
func (d *Dispatcher) DegradedOperations() int64 {
	if d == nil {
		return 0
	}
	return d.degraded.Load()
}

func (d *Dispatcher) ready(op string, cts ...*rlwe.Ciphertext) error {
	if d == nil || (d.ckksEval == nil && d.bgvEval == nil) {
		return types.Uninitialized(op)
	}
	for i, ct := range cts {
		if ct == nil {
			return types.NewError(types.UninitializedComponent, op, fmt.Errorf("%w: ciphertext #%d", types.ErrMissingOperand, i))
		}
	}
	return nil
}

// Add 密文加密文
func (d *Dispatcher) Add(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	const op = "add"
	if err := d.ready(op, a, b); err != nil {
		return nil, err
	}
	var out *rlwe.Ciphertext
	var err error
	switch d.ctx.Scheme() {
	case types.IntegerBatched:
		out, err = d.bgvEval.AddNew(a, b)
	case types.ApproximateReal:
		out, err = d.ckksEval.AddNew(a, b)
	}
	return out, wrap(op, err)
}

// AddPlain 密文加明文
func (d *Dispatcher) AddPlain(a *rlwe.Ciphertext, p *encoding.Plaintext) (*rlwe.Ciphertext, error) {
	const op = "add_plain"
	if err := d.ready(op, a); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, types.NewError(types.UninitializedComponent, op, types.ErrMissingOperand)
	}
	var out *rlwe.Ciphertext
	var err error
	switch d.ctx.Scheme() {
	case types.IntegerBatched:
		out, err = d.bgvEval.AddNew(a, p.Integers())
	case types.ApproximateReal:
		out, err = d.ckksEval.AddNew(a, p.Floats())
	}
	return out, wrap(op, err)
}

// MultiplyPlain 密文乘明文。近似实数方案在有剩余层级时按被消去素数的缩放编码明文再重缩放。
func (d *Dispatcher) MultiplyPlain(a *rlwe.Ciphertext, p *encoding.Plaintext) (*rlwe.Ciphertext, error) {
	const op = "multiply_plain"
	if err := d.ready(op, a); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, types.NewError(types.UninitializedComponent, op, types.ErrMissingOperand)
	}

	switch d.ctx.Scheme() {
	case types.IntegerBatched:
		out, err := d.bgvEval.MulNew(a, p.Integers())
		return out, wrap(op, err)
	case types.ApproximateReal:
		if a.Level() == 0 {
			// 无法重缩放，按默认缩放编码，结果缩放为两者之积
			pt, err := d.encoder.EncodeAt(p, 0, d.ctx.RLWE().DefaultScale())
			if err != nil {
				return nil, err
			}
			out, err := d.ckksEval.MulNew(a, pt)
			return out, wrap(op, err)
		}
		out, err := d.ckksEval.MulNew(a, p.Floats())
		if err != nil {
			return nil, wrap(op, err)
		}
		return out, wrap(op, d.rescale(out))
	}
	return nil, types.Config(op, "unknown scheme %v", d.ctx.Scheme())
}

// Multiply 密文乘密文，有重线性化密钥时立即重线性化
func (d *Dispatcher) Multiply(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return d.multiply(types.OpMultiplyCipher, a, b)
}

// Square 密文平方
func (d *Dispatcher) Square(a *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return d.multiply(types.OpSquare, a, a)
}

func (d *Dispatcher) multiply(kind types.OperationKind, a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	op := string(kind)
	if err := d.ready(op, a, b); err != nil {
		return nil, err
	}
	// 底层库不支持对二次以上密文做张量积
	if a.Degree() > 1 || b.Degree() > 1 {
		return nil, types.NewError(types.DegradedCapability, op,
			fmt.Errorf("%w: operand degrees %d and %d", types.ErrDegreeExceeded, a.Degree(), b.Degree()))
	}

	var out *rlwe.Ciphertext
	var err error
	relin := d.rlk != nil

	switch d.ctx.Scheme() {
	case types.IntegerBatched:
		if relin {
			out, err = d.bgvEval.MulRelinNew(a, b)
		} else {
			out, err = d.bgvEval.MulNew(a, b)
		}
	case types.ApproximateReal:
		if relin {
			out, err = d.ckksEval.MulRelinNew(a, b)
		} else {
			out, err = d.ckksEval.MulNew(a, b)
		}
		if err == nil {
			err = d.rescale(out)
		}
	}
	if err != nil {
		return nil, wrap(op, err)
	}

	if !relin {
		n := d.degraded.Add(1)
		d.logger.Warn("product left un-relinearized",
			zap.String("operation", op),
			zap.Int("degree", out.Degree()),
			zap.Int64("degraded_total", n))
	}
	return out, nil
}

// rescale 近似实数方案：在还有层级时把缩放降回默认值附近
func (d *Dispatcher) rescale(ct *rlwe.Ciphertext) error {
	if ct.Level() == 0 {
		return nil
	}
	return d.ckksEval.RescaleTo(ct, d.ctx.RLWE().DefaultScale(), ct)
}

// Apply 按运算类型分派；b 仅用于双密文运算，p 仅用于明文运算
func (d *Dispatcher) Apply(kind types.OperationKind, a, b *rlwe.Ciphertext, p *encoding.Plaintext) (*rlwe.Ciphertext, error) {
	switch kind {
	case types.OpAddPlain:
		return d.AddPlain(a, p)
	case types.OpMultiplyPlain:
		return d.MultiplyPlain(a, p)
	case types.OpAddCipher:
		return d.Add(a, b)
	case types.OpMultiplyCipher:
		return d.Multiply(a, b)
	case types.OpSquare:
		return d.Square(a)
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedOperation, kind)
}

// NoiseBudget 剩余噪声预算（比特），即当前层级模数与解密后噪声之间的余量。
// 整数方案先减去按密文层级与缩放重新编码的明文，只度量残余噪声，预算为 log2(Q/t)-1-log2|e|；
// 近似实数方案度量解密系数本身。
// 仅为诊断用途，运算本身不会因预算不足而拒绝执行。
func (d *Dispatcher) NoiseBudget(ct *rlwe.Ciphertext) (int, error) {
	const op = "noise budget"
	if err := d.ready(op, ct); err != nil {
		return 0, err
	}
	if d.decryptor == nil {
		return 0, types.NewError(types.UninitializedComponent, op, fmt.Errorf("%w: no decryptor", types.ErrUninitialized))
	}

	measured := ct
	total := d.ctx.ModulusBitsAt(ct.Level()) - 1
	if d.ctx.Scheme() == types.IntegerBatched {
		residual, err := d.residual(ct)
		if err != nil {
			return 0, wrap(op, err)
		}
		// 明文按 t^-1 缩放编码，解密正确要求 t*|e| < Q/2
		measured = residual
		total -= math.Log2(float64(d.ctx.PlainModulus()))
	}
	_, _, maxNorm := rlwe.Norm(measured, d.decryptor)
	if math.IsInf(maxNorm, -1) {
		return int(total), nil
	}
	budget := total - maxNorm
	if budget < 0 || math.IsNaN(budget) {
		return 0, nil
	}
	return int(math.Floor(budget)), nil
}

// residual 整数方案：ct 减去其解密值的重新编码，结果只含噪声项
func (d *Dispatcher) residual(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	values, err := d.encoder.DecodeIntegers(d.decryptor.DecryptNew(ct))
	if err != nil {
		return nil, err
	}
	p, err := d.encoder.Encode(values)
	if err != nil {
		return nil, err
	}
	pt, err := d.encoder.EncodeAt(p, ct.Level(), ct.Scale)
	if err != nil {
		return nil, err
	}
	return d.bgvEval.SubNew(ct, pt)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if types.KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
