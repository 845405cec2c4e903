package worker

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/codec"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/encoding"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/evaluator"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// DefaultContextCacheSize 执行器最多缓存的上下文个数
const DefaultContextCacheSize = 16

// Executor 远端执行器：只凭请求中的参数记录重建上下文，从不持有任何私钥或公钥。
// 重建的上下文和编解码器按参数记录做LRU缓存，编码器与求值器每个请求单独创建。
type Executor struct {
	contexts *lru.Cache[types.ContextKey, *cachedContext]

	// onRebuild 每次真正重建上下文时调用
	onRebuild func()
}

type cachedContext struct {
	ctx   *parameters.Context
	codec *codec.Codec
}

// NewExecutor 创建执行器，size<=0 时使用 DefaultContextCacheSize
func NewExecutor(size int) *Executor {
	if size <= 0 {
		size = DefaultContextCacheSize
	}
	cache, err := lru.New[types.ContextKey, *cachedContext](size)
	if err != nil {
		panic(err)
	}
	return &Executor{contexts: cache}
}

// Apply 无缓存地执行单个请求
func Apply(req types.OperationRequest) (types.OperationResult, error) {
	return (&Executor{}).Apply(req)
}

// Apply 执行单个同态运算请求
func (x *Executor) Apply(req types.OperationRequest) (types.OperationResult, error) {
	kind, err := types.ParseOperation(string(req.Operation))
	if err != nil {
		return types.OperationResult{}, types.NewError(types.EncodingError, "parse operation", err)
	}
	op := string(kind)

	cc, err := x.context(req.ContextParams)
	if err != nil {
		return types.OperationResult{}, err
	}
	ctx, cd := cc.ctx, cc.codec

	a, err := cd.DecodeCiphertext(req.EncryptedData)
	if err != nil {
		return types.OperationResult{}, err
	}

	var b *rlwe.Ciphertext
	if kind.NeedsSecondCiphertext() {
		if req.EncryptedOperand == "" {
			return types.OperationResult{}, types.NewError(types.EncodingError, op,
				fmt.Errorf("%w: encrypted_operand", types.ErrMissingOperand))
		}
		if b, err = cd.DecodeCiphertext(req.EncryptedOperand); err != nil {
			return types.OperationResult{}, err
		}
	}

	var rlk *rlwe.RelinearizationKey
	if kind.NeedsRelinearization() {
		if req.RelinearizationKey == "" {
			return types.OperationResult{}, types.NewError(types.DegradedCapability, op,
				fmt.Errorf("%w: request carries no relinearization key", types.ErrRelinUnavailable))
		}
		raw, err := codec.DecodeFromBase64(req.RelinearizationKey)
		if err != nil {
			return types.OperationResult{}, err
		}
		if rlk, err = cd.DeserializeRelinearizationKey(raw); err != nil {
			return types.OperationResult{}, err
		}
	}

	encoder, err := encoding.NewEncoder(ctx)
	if err != nil {
		return types.OperationResult{}, err
	}
	var p *encoding.Plaintext
	if kind.NeedsPlaintext() {
		if len(req.PlaintextData) == 0 {
			return types.OperationResult{}, types.NewError(types.EncodingError, op,
				fmt.Errorf("%w: plaintext_data", types.ErrMissingOperand))
		}
		if p, err = encoder.Encode(req.PlaintextData); err != nil {
			return types.OperationResult{}, err
		}
	}

	disp, err := evaluator.New(ctx, encoder, rlk)
	if err != nil {
		return types.OperationResult{}, err
	}

	start := time.Now()
	out, err := disp.Apply(kind, a, b, p)
	elapsed := time.Since(start)
	if err != nil {
		if types.KindOf(err) == "" {
			err = types.NewError(types.RemoteExecutionError, op, err)
		}
		return types.OperationResult{}, err
	}

	result, err := cd.EncodeCiphertext(out)
	if err != nil {
		return types.OperationResult{}, err
	}
	return types.OperationResult{
		RequestID:         req.RequestID,
		Result:            result,
		ComputationTimeMs: float64(elapsed.Microseconds()) / 1000,
		Operation:         kind,
		Timestamp:         time.Now().UTC(),
	}, nil
}

// context 按参数记录重建或取回缓存的上下文与编解码器
func (x *Executor) context(p types.ContextParams) (*cachedContext, error) {
	key := p.Key()
	if x.contexts != nil {
		if cc, ok := x.contexts.Get(key); ok {
			return cc, nil
		}
	}

	ctx, err := codec.DeserializeContextParameters(p)
	if err != nil {
		return nil, err
	}
	cd, err := codec.New(ctx)
	if err != nil {
		return nil, err
	}
	if x.onRebuild != nil {
		x.onRebuild()
	}
	cc := &cachedContext{ctx: ctx, codec: cd}
	if x.contexts != nil {
		x.contexts.Add(key, cc)
	}
	return cc, nil
}

// Cached 已缓存的上下文数量
func (x *Executor) Cached() int {
	if x.contexts == nil {
		return 0
	}
	return x.contexts.Len()
}

// StatusFor 错误分类到 HTTP 状态码
func StatusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case types.IsKind(err, types.DegradedCapability):
		return http.StatusUnprocessableEntity
	case types.IsKind(err, types.ConfigurationError),
		types.IsKind(err, types.EncodingError),
		types.IsKind(err, types.TransportError):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
