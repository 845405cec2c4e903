package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"go.uber.org/zap"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/codec"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/encoding"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/engine"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// Orchestrator 拆分执行编排器：本地加密，远端运算，本地解密。
// 每次卸载都是无状态的完整尝试，不做重试，也不自带超时，由调用方的 ctx 决定截止时间。
type Orchestrator struct {
	engine       *engine.Engine
	transport    Transport
	sendRelinKey bool
	logger       *zap.Logger
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRelinearizationKey 为 multiply_cipher / square 请求附带重线性化密钥
func WithRelinearizationKey(enabled bool) Option {
	return func(o *Orchestrator) { o.sendRelinKey = enabled }
}

// Outcome 一次卸载的结果
type Outcome struct {
	// Values 已截断到输入语义长度的解密结果
	Values    []float64
	Operation types.OperationKind
	RequestID string
	Timings   Timings
}

// CipherOutcome 密文级卸载的结果，不做解密
type CipherOutcome struct {
	Ciphertext *rlwe.Ciphertext
	Operation  types.OperationKind
	RequestID  string
	Timings    Timings
}

// New 创建编排器
func New(e *engine.Engine, t Transport, opts ...Option) (*Orchestrator, error) {
	if e == nil || t == nil {
		return nil, types.Uninitialized("new orchestrator")
	}
	o := &Orchestrator{engine: e, transport: t, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Offload 加密 values，请求远端执行 kind，解密返回结果。
// 明文运算的 operand 以明文发送，标量会广播到 values 的长度；
// 双密文运算的 operand 在本地加密后作为第二个密文发送；square 忽略 operand。
func (o *Orchestrator) Offload(ctx context.Context, values any, kind types.OperationKind, operand any) (*Outcome, error) {
	total := time.Now()
	requestID := uuid.NewString()
	fail := func(stage Stage, err error) (*Outcome, error) {
		o.logger.Warn("offload failed",
			zap.String("request_id", requestID),
			zap.String("operation", string(kind)),
			zap.String("stage", string(stage)),
			zap.Error(err))
		return nil, &StageError{Stage: stage, RequestID: requestID, Err: err}
	}

	kind, err := types.ParseOperation(string(kind))
	if err != nil {
		return fail(StageEncode, types.NewError(types.EncodingError, "offload", err))
	}
	n := encoding.Length(values)

	start := time.Now()
	req := types.OperationRequest{RequestID: requestID, Operation: kind}
	if kind.NeedsPlaintext() {
		if operand == nil {
			return fail(StageEncode, types.NewError(types.EncodingError, string(kind), types.ErrMissingOperand))
		}
		if req.PlaintextData, err = encoding.Floats(operand, n); err != nil {
			return fail(StageEncode, err)
		}
	}

	a, err := o.engine.Encrypt(values)
	if err != nil {
		return fail(encryptStage(err), err)
	}
	var b *rlwe.Ciphertext
	if kind.NeedsSecondCiphertext() {
		if operand == nil {
			return fail(StageEncode, types.NewError(types.EncodingError, string(kind), types.ErrMissingOperand))
		}
		if b, err = o.engine.Encrypt(operand); err != nil {
			return fail(encryptStage(err), err)
		}
	}
	if err := o.fillRequest(&req, a, b); err != nil {
		return fail(StageSerialize, err)
	}
	encryption := time.Since(start)

	res, remote, network, err := o.invoke(ctx, req)
	if err != nil {
		return fail(invokeStage(err), err)
	}

	start = time.Now()
	ct, err := o.engine.Codec().DecodeCiphertext(res.Result)
	if err != nil {
		return fail(StageDeserialize, err)
	}
	decoded, err := o.engine.Decrypt(ct)
	if err != nil {
		return fail(StageDecrypt, err)
	}
	decryption := time.Since(start)

	out := &Outcome{
		Values:    engine.Truncate(decoded, n),
		Operation: kind,
		RequestID: requestID,
		Timings: Timings{
			Encryption:    encryption,
			RemoteCompute: remote,
			Network:       network,
			Decryption:    decryption,
			Total:         time.Since(total),
		},
	}
	o.logOutcome(out.RequestID, out.Operation, out.Timings)
	return out, nil
}

// OffloadCipher 对已有密文做远端运算，结果按本地上下文反序列化后原样返回
func (o *Orchestrator) OffloadCipher(ctx context.Context, a, b *rlwe.Ciphertext, kind types.OperationKind) (*CipherOutcome, error) {
	total := time.Now()
	requestID := uuid.NewString()
	fail := func(stage Stage, err error) (*CipherOutcome, error) {
		o.logger.Warn("offload failed",
			zap.String("request_id", requestID),
			zap.String("operation", string(kind)),
			zap.String("stage", string(stage)),
			zap.Error(err))
		return nil, &StageError{Stage: stage, RequestID: requestID, Err: err}
	}

	kind, err := types.ParseOperation(string(kind))
	if err != nil {
		return fail(StageEncode, types.NewError(types.EncodingError, "offload", err))
	}
	if kind.NeedsPlaintext() {
		return fail(StageEncode, types.NewError(types.EncodingError, string(kind),
			fmt.Errorf("%w: plaintext operations need Offload", types.ErrMissingOperand)))
	}
	if a == nil || (kind.NeedsSecondCiphertext() && b == nil) {
		return fail(StageEncode, types.NewError(types.UninitializedComponent, string(kind), types.ErrMissingOperand))
	}
	if !kind.NeedsSecondCiphertext() {
		b = nil
	}

	start := time.Now()
	req := types.OperationRequest{RequestID: requestID, Operation: kind}
	if err := o.fillRequest(&req, a, b); err != nil {
		return fail(StageSerialize, err)
	}
	encryption := time.Since(start)

	res, remote, network, err := o.invoke(ctx, req)
	if err != nil {
		return fail(invokeStage(err), err)
	}

	start = time.Now()
	ct, err := o.engine.Codec().DecodeCiphertext(res.Result)
	if err != nil {
		return fail(StageDeserialize, err)
	}

	out := &CipherOutcome{
		Ciphertext: ct,
		Operation:  kind,
		RequestID:  requestID,
		Timings: Timings{
			Encryption:    encryption,
			RemoteCompute: remote,
			Network:       network,
			Decryption:    time.Since(start),
			Total:         time.Since(total),
		},
	}
	o.logOutcome(out.RequestID, out.Operation, out.Timings)
	return out, nil
}

// fillRequest 序列化密文、参数记录以及可选的重线性化密钥
func (o *Orchestrator) fillRequest(req *types.OperationRequest, a, b *rlwe.Ciphertext) error {
	cd := o.engine.Codec()
	var err error
	if req.EncryptedData, err = cd.EncodeCiphertext(a); err != nil {
		return err
	}
	if b != nil {
		if req.EncryptedOperand, err = cd.EncodeCiphertext(b); err != nil {
			return err
		}
	}
	req.ContextParams = codec.SerializeContextParameters(o.engine.Context())

	if o.sendRelinKey && req.Operation.NeedsRelinearization() && o.engine.IsRelinearizationAvailable() {
		raw, err := cd.SerializeRelinearizationKey(o.engine.RelinearizationKey())
		if err != nil {
			return err
		}
		req.RelinearizationKey = codec.EncodeToBase64(raw)
	}
	return nil
}

// invoke 调用远端并拆分远端计算与网络耗时
func (o *Orchestrator) invoke(ctx context.Context, req types.OperationRequest) (types.OperationResult, time.Duration, time.Duration, error) {
	start := time.Now()
	res, err := o.transport.Invoke(ctx, req)
	roundTrip := time.Since(start)
	if err != nil {
		return res, 0, 0, err
	}
	if res.RequestID != "" && res.RequestID != req.RequestID {
		return res, 0, 0, types.NewError(types.RemoteExecutionError, "invoke",
			fmt.Errorf("%w: response echoes request id %s", types.ErrRemoteExecutionFailed, res.RequestID))
	}
	if res.Result == "" {
		return res, 0, 0, types.NewError(types.RemoteExecutionError, "invoke",
			fmt.Errorf("%w: empty result", types.ErrRemoteExecutionFailed))
	}

	remote := time.Duration(res.ComputationTimeMs * float64(time.Millisecond))
	network := roundTrip - remote
	if network < 0 {
		network = 0
	}
	return res, remote, network, nil
}

func (o *Orchestrator) logOutcome(requestID string, kind types.OperationKind, t Timings) {
	o.logger.Info("offload completed",
		zap.String("request_id", requestID),
		zap.String("operation", string(kind)),
		zap.Duration("encryption", t.Encryption),
		zap.Duration("remote_compute", t.RemoteCompute),
		zap.Duration("network", t.Network),
		zap.Duration("decryption", t.Decryption),
		zap.Duration("total", t.Total))
}

func encryptStage(err error) Stage {
	if types.IsKind(err, types.EncodingError) {
		return StageEncode
	}
	return StageEncrypt
}

func invokeStage(err error) Stage {
	if types.IsKind(err, types.RemoteExecutionError) {
		return StageRemote
	}
	return StageTransport
}
