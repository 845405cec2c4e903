package encoding

import (
	"fmt"
	"math"
	"slices"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// Plaintext 一次编码的结果：保留语义值，便于按密文的层级和缩放重新编码
type Plaintext struct {
	scheme    types.SchemeKind
	floats    []float64
	ints      []int64
	broadcast bool
	encoded   *rlwe.Plaintext
}

// Encoded 返回底层库的明文
func (p *Plaintext) Encoded() *rlwe.Plaintext { return p.encoded }

// Broadcast 输入是否为广播后的标量
func (p *Plaintext) Broadcast() bool { return p.broadcast }

// Len 语义值个数（广播后等于槽位数）
func (p *Plaintext) Len() int {
	if p.scheme == types.IntegerBatched {
		return len(p.ints)
	}
	return len(p.floats)
}

// Floats 语义值的浮点副本
func (p *Plaintext) Floats() []float64 {
	if p.scheme == types.IntegerBatched {
		return convert[int64, float64](p.ints)
	}
	return slices.Clone(p.floats)
}

// Integers 语义值的整数副本
func (p *Plaintext) Integers() []int64 {
	if p.scheme == types.IntegerBatched {
		return slices.Clone(p.ints)
	}
	return convert[float64, int64](p.floats)
}

// Encoder 按方案分派的编码/解码适配器，非并发安全
type Encoder struct {
	ctx     *parameters.Context
	ckksEnc *ckks.Encoder
	bgvEnc  *bgv.Encoder
}

// NewEncoder 创建编码器
func NewEncoder(ctx *parameters.Context) (*Encoder, error) {
	if ctx == nil {
		return nil, types.Uninitialized("new encoder")
	}
	e := &Encoder{ctx: ctx}
	switch ctx.Scheme() {
	case types.IntegerBatched:
		e.bgvEnc = bgv.NewEncoder(ctx.BGV())
	case types.ApproximateReal:
		e.ckksEnc = ckks.NewEncoder(ctx.CKKS())
	default:
		return nil, types.Config("new encoder", "unknown scheme %v", ctx.Scheme())
	}
	return e, nil
}

// Context 返回编码器绑定的上下文
func (e *Encoder) Context() *parameters.Context { return e.ctx }

// Encode 编码数值标量或数值序列。
// 整数方案转为 int64，近似实数方案转为 float64 并使用默认缩放；标量广播到全部槽位。
func (e *Encoder) Encode(values any) (*Plaintext, error) {
	if e == nil || e.ctx == nil {
		return nil, types.Uninitialized("encode")
	}
	slots := e.ctx.SlotCount()
	p := &Plaintext{scheme: e.ctx.Scheme()}

	switch e.ctx.Scheme() {
	case types.IntegerBatched:
		ints, scalar, err := coerce[int64](values)
		if err != nil {
			return nil, err
		}
		if scalar {
			ints = broadcast(ints[0], slots)
		}
		p.ints, p.broadcast = ints, scalar
	case types.ApproximateReal:
		floats, scalar, err := coerce[float64](values)
		if err != nil {
			return nil, err
		}
		if scalar {
			floats = broadcast(floats[0], slots)
		}
		p.floats, p.broadcast = floats, scalar
	}

	if p.Len() > slots {
		return nil, types.NewError(types.EncodingError, "encode",
			fmt.Errorf("%w: %d values for %d slots", types.ErrTooManyValues, p.Len(), slots))
	}

	rp := e.ctx.RLWE()
	pt, err := e.EncodeAt(p, rp.MaxLevel(), rp.DefaultScale())
	if err != nil {
		return nil, err
	}
	p.encoded = pt
	return p, nil
}

// EncodeAt 按指定层级和缩放重新编码语义值
func (e *Encoder) EncodeAt(p *Plaintext, level int, scale rlwe.Scale) (*rlwe.Plaintext, error) {
	if e == nil || p == nil {
		return nil, types.Uninitialized("encode")
	}
	switch e.ctx.Scheme() {
	case types.IntegerBatched:
		pt := bgv.NewPlaintext(e.ctx.BGV(), level)
		pt.Scale = scale
		if err := e.bgvEnc.Encode(p.Integers(), pt); err != nil {
			return nil, types.NewError(types.EncodingError, "encode", err)
		}
		return pt, nil
	case types.ApproximateReal:
		pt := ckks.NewPlaintext(e.ctx.CKKS(), level)
		pt.Scale = scale
		if err := e.ckksEnc.Encode(p.Floats(), pt); err != nil {
			return nil, types.NewError(types.EncodingError, "encode", err)
		}
		return pt, nil
	}
	return nil, types.Config("encode", "unknown scheme %v", e.ctx.Scheme())
}

// Decode 解码为长度等于槽位数的浮点序列，调用方自行截断到语义长度
func (e *Encoder) Decode(pt *rlwe.Plaintext) ([]float64, error) {
	if e == nil || pt == nil {
		return nil, types.Uninitialized("decode")
	}
	switch e.ctx.Scheme() {
	case types.IntegerBatched:
		ints, err := e.DecodeIntegers(pt)
		if err != nil {
			return nil, err
		}
		return convert[int64, float64](ints), nil
	case types.ApproximateReal:
		values := make([]float64, e.ctx.SlotCount())
		if err := e.ckksEnc.Decode(pt, values); err != nil {
			return nil, types.NewError(types.EncodingError, "decode", err)
		}
		return values, nil
	}
	return nil, types.Config("decode", "unknown scheme %v", e.ctx.Scheme())
}

// DecodeIntegers 整数方案解码，返回模 t 的中心化代表元
func (e *Encoder) DecodeIntegers(pt *rlwe.Plaintext) ([]int64, error) {
	if e == nil || pt == nil {
		return nil, types.Uninitialized("decode")
	}
	if e.ctx.Scheme() != types.IntegerBatched {
		values, err := e.Decode(pt)
		if err != nil {
			return nil, err
		}
		ints := make([]int64, len(values))
		for i, v := range values {
			ints[i] = int64(math.Round(v))
		}
		return ints, nil
	}
	values := make([]int64, e.ctx.SlotCount())
	if err := e.bgvEnc.Decode(pt, values); err != nil {
		return nil, types.NewError(types.EncodingError, "decode", err)
	}
	return values, nil
}
