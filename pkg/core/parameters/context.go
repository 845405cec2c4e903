package parameters

import (
	"encoding/hex"
	"fmt"
	"math"
	"slices"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// Context 校验后的不可变方案上下文，可在并发调用方间只读共享
type Context struct {
	spec SchemeParameters

	ckksParams ckks.Parameters
	bgvParams  bgv.Parameters

	plainModulus uint64
	fingerprint  Fingerprint
}

// Configure 校验参数并构造上下文，非法组合返回 ConfigurationError
func Configure(sp SchemeParameters) (*Context, error) {
	spec, err := sp.normalize()
	if err != nil {
		return nil, err
	}

	ctx := &Context{spec: spec}
	logN := log2(spec.PolyModulusDegree)

	switch spec.Scheme {
	case types.IntegerBatched:
		t, err := BatchingPlainModulus(spec.PolyModulusDegree, spec.PlainModulusBits)
		if err != nil {
			return nil, err
		}
		params, err := bgv.NewParametersFromLiteral(bgv.ParametersLiteral{
			LogN:             logN,
			LogQ:             chainBits(spec.CoeffModulusBits),
			LogP:             specialBits(spec.CoeffModulusBits),
			PlaintextModulus: t,
		})
		if err != nil {
			return nil, types.Config("configure", "integer-batched parameters rejected: %v", err)
		}
		ctx.bgvParams = params
		ctx.plainModulus = t
	case types.ApproximateReal:
		params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
			LogN:            logN,
			LogQ:            chainBits(spec.CoeffModulusBits),
			LogP:            specialBits(spec.CoeffModulusBits),
			LogDefaultScale: spec.ScaleBits,
			RingType:        ring.Standard,
		})
		if err != nil {
			return nil, types.Config("configure", "approximate-real parameters rejected: %v", err)
		}
		ctx.ckksParams = params
	}

	ctx.fingerprint = computeFingerprint(ctx)
	return ctx, nil
}

// Params 返回填充默认值后的参数副本
func (c *Context) Params() SchemeParameters {
	out := c.spec
	out.CoeffModulusBits = slices.Clone(c.spec.CoeffModulusBits)
	return out
}

func (c *Context) Scheme() types.SchemeKind { return c.spec.Scheme }

func (c *Context) Degree() int { return c.spec.PolyModulusDegree }

// SlotCount 每个密文可承载的槽位数：整数方案为 N，近似实数方案为 N/2
func (c *Context) SlotCount() int {
	switch c.spec.Scheme {
	case types.IntegerBatched:
		return c.bgvParams.MaxSlots()
	case types.ApproximateReal:
		return c.ckksParams.MaxSlots()
	}
	return 0
}

// Scale 近似实数方案的默认缩放因子，整数方案为 1
func (c *Context) Scale() float64 {
	if c.spec.Scheme == types.ApproximateReal {
		return math.Exp2(float64(c.spec.ScaleBits))
	}
	return 1
}

func (c *Context) ScaleBits() int { return c.spec.ScaleBits }

// PlainModulus 整数方案的明文模数 t
func (c *Context) PlainModulus() uint64 { return c.plainModulus }

func (c *Context) MaxLevel() int { return c.RLWE().MaxLevel() }

// HasSpecialModulus 是否存在密钥切换所需的特殊模数
func (c *Context) HasSpecialModulus() bool { return c.RLWE().PCount() > 0 }

// ModulusBitsAt 返回指定层级下密文模数 Q 的位数
func (c *Context) ModulusBitsAt(level int) float64 {
	q := c.RLWE().Q()
	bits := 0.0
	for i := 0; i <= level && i < len(q); i++ {
		bits += math.Log2(float64(q[i]))
	}
	return bits
}

// RLWE 返回底层 rlwe 参数
func (c *Context) RLWE() *rlwe.Parameters {
	if c.spec.Scheme == types.IntegerBatched {
		return c.bgvParams.GetRLWEParameters()
	}
	return c.ckksParams.GetRLWEParameters()
}

// Provider 返回方案参数本身，供 rlwe 构造函数使用
func (c *Context) Provider() rlwe.ParameterProvider {
	if c.spec.Scheme == types.IntegerBatched {
		return c.bgvParams
	}
	return c.ckksParams
}

func (c *Context) CKKS() ckks.Parameters { return c.ckksParams }

func (c *Context) BGV() bgv.Parameters { return c.bgvParams }

func (c *Context) Fingerprint() Fingerprint { return c.fingerprint }

// Equivalent 两个上下文是否描述同一参数集
func (c *Context) Equivalent(other *Context) bool {
	return other != nil && c.fingerprint == other.fingerprint
}

func (c *Context) String() string {
	return fmt.Sprintf("%s fp=%s", c.spec, hex.EncodeToString(c.fingerprint[:8]))
}
