package engine

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"go.uber.org/zap"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/codec"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/encoding"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/evaluator"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/keys"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// Engine 本地同态计算引擎：持有上下文和完整密钥，负责加密、解密与本地运算。
// 不是并发安全的；需要并发时每个 goroutine 使用各自的 Engine。
type Engine struct {
	ctx        *parameters.Context
	keys       *keys.KeyMaterial
	encoder    *encoding.Encoder
	encryptor  *rlwe.Encryptor
	decryptor  *rlwe.Decryptor
	dispatcher *evaluator.Dispatcher
	codec      *codec.Codec
	logger     *zap.Logger
}

type options struct {
	logger *zap.Logger
	relin  bool
}

// Option 引擎选项
type Option func(*options)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithoutRelinearization 不生成重线性化密钥
func WithoutRelinearization() Option {
	return func(o *options) { o.relin = false }
}

// WithRelinearization 按布尔值决定是否生成重线性化密钥
func WithRelinearization(enabled bool) Option {
	return func(o *options) { o.relin = enabled }
}

// New 校验参数并创建引擎
func New(sp parameters.SchemeParameters, opts ...Option) (*Engine, error) {
	ctx, err := parameters.Configure(sp)
	if err != nil {
		return nil, err
	}
	return NewFromContext(ctx, opts...)
}

// NewFromContext 在已有上下文上生成新密钥并创建引擎
func NewFromContext(ctx *parameters.Context, opts ...Option) (*Engine, error) {
	if ctx == nil {
		return nil, types.Uninitialized("new engine")
	}
	o := options{logger: zap.NewNop(), relin: true}
	for _, opt := range opts {
		opt(&o)
	}

	km, err := keys.GenerateKeys(ctx, keys.WithRelinearization(o.relin))
	if err != nil {
		return nil, err
	}
	if relinErr := km.RelinearizationError(); relinErr != nil {
		o.logger.Warn("relinearization keys unavailable, products will not be relinearized",
			zap.Stringer("scheme", ctx.Scheme()),
			zap.Int("poly_modulus_degree", ctx.Degree()),
			zap.Error(relinErr))
	}

	encoder, err := encoding.NewEncoder(ctx)
	if err != nil {
		return nil, err
	}
	decryptor := km.NewDecryptor()
	dispatcher, err := evaluator.New(ctx, encoder, km.RelinearizationKey(),
		evaluator.WithLogger(o.logger), evaluator.WithDecryptor(decryptor))
	if err != nil {
		return nil, err
	}
	cd, err := codec.New(ctx)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		ctx:        ctx,
		keys:       km,
		encoder:    encoder,
		encryptor:  km.NewEncryptor(),
		decryptor:  decryptor,
		dispatcher: dispatcher,
		codec:      cd,
		logger:     o.logger,
	}
	e.logger.Debug("engine ready", zap.String("context", ctx.String()),
		zap.Bool("relinearization", km.IsRelinearizationAvailable()))
	return e, nil
}

func (e *Engine) ready(op string) error {
	if e == nil || e.ctx == nil || e.encryptor == nil {
		return types.Uninitialized(op)
	}
	return nil
}

// Context 返回引擎上下文
func (e *Engine) Context() *parameters.Context { return e.ctx }

// Codec 返回绑定到本地上下文的传输编解码器
func (e *Engine) Codec() *codec.Codec { return e.codec }

// RelinearizationKey 返回重线性化密钥，降级模式下为 nil
func (e *Engine) RelinearizationKey() *rlwe.RelinearizationKey { return e.keys.RelinearizationKey() }

// IsRelinearizationAvailable 是否持有重线性化密钥
func (e *Engine) IsRelinearizationAvailable() bool {
	return e != nil && e.keys.IsRelinearizationAvailable()
}

// DegradedOperations 未重线性化的乘法次数
func (e *Engine) DegradedOperations() int64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.DegradedOperations()
}

// Encode 编码（不加密）
func (e *Engine) Encode(values any) (*encoding.Plaintext, error) {
	if err := e.ready("encode"); err != nil {
		return nil, err
	}
	return e.encoder.Encode(values)
}

// Encrypt 编码并用公钥加密
func (e *Engine) Encrypt(values any) (*rlwe.Ciphertext, error) {
	const op = "encrypt"
	if err := e.ready(op); err != nil {
		return nil, err
	}
	p, err := e.encoder.Encode(values)
	if err != nil {
		return nil, err
	}
	ct, err := e.encryptor.EncryptNew(p.Encoded())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ct, nil
}

// Decrypt 解密并解码，返回长度等于槽位数的序列
func (e *Engine) Decrypt(ct *rlwe.Ciphertext) ([]float64, error) {
	if err := e.ready("decrypt"); err != nil {
		return nil, err
	}
	if ct == nil {
		return nil, types.NewError(types.UninitializedComponent, "decrypt", types.ErrMissingOperand)
	}
	return e.encoder.Decode(e.decryptor.DecryptNew(ct))
}

// DecryptIntegers 解密并解码为整数
func (e *Engine) DecryptIntegers(ct *rlwe.Ciphertext) ([]int64, error) {
	if err := e.ready("decrypt"); err != nil {
		return nil, err
	}
	if ct == nil {
		return nil, types.NewError(types.UninitializedComponent, "decrypt", types.ErrMissingOperand)
	}
	return e.encoder.DecodeIntegers(e.decryptor.DecryptNew(ct))
}

// Add 密文加密文
func (e *Engine) Add(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return e.Apply(types.OpAddCipher, a, b, nil)
}

// AddPlain 密文加明文，标量会广播到全部槽位
func (e *Engine) AddPlain(a *rlwe.Ciphertext, values any) (*rlwe.Ciphertext, error) {
	return e.Apply(types.OpAddPlain, a, nil, values)
}

// MultiplyPlain 密文乘明文
func (e *Engine) MultiplyPlain(a *rlwe.Ciphertext, values any) (*rlwe.Ciphertext, error) {
	return e.Apply(types.OpMultiplyPlain, a, nil, values)
}

// Multiply 密文乘密文
func (e *Engine) Multiply(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return e.Apply(types.OpMultiplyCipher, a, b, nil)
}

// Square 密文平方
func (e *Engine) Square(a *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return e.Apply(types.OpSquare, a, nil, nil)
}

// Apply 按运算类型执行；operand 为明文运算的数值，b 为双密文运算的第二个密文
func (e *Engine) Apply(kind types.OperationKind, a, b *rlwe.Ciphertext, operand any) (*rlwe.Ciphertext, error) {
	if err := e.ready(string(kind)); err != nil {
		return nil, err
	}
	var p *encoding.Plaintext
	if kind.NeedsPlaintext() {
		if operand == nil {
			return nil, types.NewError(types.EncodingError, string(kind), types.ErrMissingOperand)
		}
		var err error
		if p, err = e.encoder.Encode(operand); err != nil {
			return nil, err
		}
	}
	return e.dispatcher.Apply(kind, a, b, p)
}

// Evaluate 本地完成 加密 -> 运算 -> 解密。
// 双密文运算会把 operand 加密为第二个密文；square 忽略 operand。
// 返回值截断到 values 的语义长度。
func (e *Engine) Evaluate(values any, kind types.OperationKind, operand any) ([]float64, error) {
	if err := e.ready("evaluate"); err != nil {
		return nil, err
	}
	a, err := e.Encrypt(values)
	if err != nil {
		return nil, err
	}

	var b *rlwe.Ciphertext
	if kind.NeedsSecondCiphertext() {
		if operand == nil {
			return nil, types.NewError(types.EncodingError, string(kind), types.ErrMissingOperand)
		}
		if b, err = e.Encrypt(operand); err != nil {
			return nil, err
		}
	}

	out, err := e.Apply(kind, a, b, operand)
	if err != nil {
		return nil, err
	}
	decoded, err := e.Decrypt(out)
	if err != nil {
		return nil, err
	}
	return Truncate(decoded, encoding.Length(values)), nil
}

// NoiseBudget 剩余噪声预算（比特）
func (e *Engine) NoiseBudget(ct *rlwe.Ciphertext) (int, error) {
	if err := e.ready("noise budget"); err != nil {
		return 0, err
	}
	return e.dispatcher.NoiseBudget(ct)
}

// Truncate 截断到前 n 个元素
func Truncate[T any](values []T, n int) []T {
	if n <= 0 || n > len(values) {
		return values
	}
	return values[:n]
}
