package parameters

import (
	"fmt"
	"slices"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

const (
	MinDegree = 1024
	MaxDegree = 32768

	// MaxModulusBits 单个模数的最大位宽
	MaxModulusBits = 60

	DefaultDegree           = 8192
	DefaultPlainModulusBits = 20
	DefaultScaleBits        = 20

	SecurityNone = -1
)

// SchemeParameters 本地配置面：方案、多项式模次数、系数模数位宽、明文模数位宽、缩放位宽
type SchemeParameters struct {
	Scheme            types.SchemeKind
	PolyModulusDegree int
	// CoeffModulusBits 长度>=2时最后一个为特殊（密钥切换）模数
	CoeffModulusBits []int
	// PlainModulusBits 仅整数方案
	PlainModulusBits int
	// ScaleBits 仅近似实数方案，缩放因子为 2^ScaleBits
	ScaleBits int
	// SecurityLevel 0 表示128位，SecurityNone 关闭检查
	SecurityLevel int
}

// Default 返回指定方案的默认参数
func Default(scheme types.SchemeKind) SchemeParameters {
	return SchemeParameters{Scheme: scheme, PolyModulusDegree: DefaultDegree}
}

// 整数方案默认系数模数（与 SEAL BFVDefault tc128 一致）
var integerPresets = map[int][]int{
	1024:  {27},
	2048:  {54},
	4096:  {36, 36, 37},
	8192:  {43, 43, 44, 44, 44},
	16384: {48, 48, 48, 49, 49, 49, 49, 49, 49},
	32768: {55, 55, 55, 55, 55, 55, 55, 55, 55, 55, 55, 55, 55, 55, 55, 55},
}

type realPreset struct {
	bits  []int
	scale int
}

// 近似实数方案默认系数模数及配套缩放位宽
var realPresets = map[int]realPreset{
	2048:  {bits: []int{54}, scale: 20},
	4096:  {bits: []int{40, 20, 40}, scale: 20},
	8192:  {bits: []int{60, 40, 40, 60}, scale: 40},
	16384: {bits: []int{60, 40, 40, 40, 40, 40, 40, 60}, scale: 40},
	32768: {bits: []int{60, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 60}, scale: 40},
}

// normalize 填充默认值并校验，返回新副本
func (sp SchemeParameters) normalize() (SchemeParameters, error) {
	const op = "configure"
	out := sp
	out.CoeffModulusBits = slices.Clone(sp.CoeffModulusBits)

	if !out.Scheme.Valid() {
		return out, types.Config(op, "scheme must be integer-batched or approximate-real")
	}

	if out.PolyModulusDegree == 0 {
		out.PolyModulusDegree = DefaultDegree
	}
	n := out.PolyModulusDegree
	if n < MinDegree || n > MaxDegree || n&(n-1) != 0 {
		return out, types.Config(op, "poly modulus degree %d must be a power of two in [%d, %d]", n, MinDegree, MaxDegree)
	}
	if out.Scheme == types.ApproximateReal && n <= 1024 {
		return out, types.Config(op, "approximate-real scheme does not support poly modulus degree <= 1024, use 2048 or higher")
	}

	defaulted := len(out.CoeffModulusBits) == 0
	if defaulted {
		switch out.Scheme {
		case types.IntegerBatched:
			out.CoeffModulusBits = slices.Clone(integerPresets[n])
		case types.ApproximateReal:
			out.CoeffModulusBits = slices.Clone(realPresets[n].bits)
		}
	}

	logN := log2(n)
	for i, b := range out.CoeffModulusBits {
		if b < logN+2 || b > MaxModulusBits {
			return out, types.Config(op, "coeff modulus bit-width #%d = %d out of range [%d, %d]", i, b, logN+2, MaxModulusBits)
		}
	}

	if out.SecurityLevel == 0 {
		out.SecurityLevel = 128
	}
	if err := checkSecurity(n, out.CoeffModulusBits, out.SecurityLevel); err != nil {
		return out, err
	}

	switch out.Scheme {
	case types.IntegerBatched:
		out.ScaleBits = 0
		if out.PlainModulusBits == 0 {
			out.PlainModulusBits = DefaultPlainModulusBits
		}
		if out.PlainModulusBits < logN+2 || out.PlainModulusBits > MaxModulusBits {
			return out, types.Config(op, "plain modulus bit-width %d out of range [%d, %d]", out.PlainModulusBits, logN+2, MaxModulusBits)
		}
		if out.PlainModulusBits >= out.CoeffModulusBits[0] {
			return out, types.Config(op, "plain modulus bit-width %d must be below the first coeff modulus (%d bits)", out.PlainModulusBits, out.CoeffModulusBits[0])
		}
	case types.ApproximateReal:
		out.PlainModulusBits = 0
		if out.ScaleBits == 0 {
			out.ScaleBits = DefaultScaleBits
			if defaulted {
				out.ScaleBits = realPresets[n].scale
			}
		}
		q := chainBits(out.CoeffModulusBits)
		total := 0
		for _, b := range q {
			total += b
		}
		if out.ScaleBits < 1 || out.ScaleBits >= MaxModulusBits || out.ScaleBits >= total {
			return out, types.Config(op, "scale bit-width %d must be in [1, %d) and below the ciphertext modulus (%d bits)",
				out.ScaleBits, MaxModulusBits, total)
		}
	}

	return out, nil
}

// Validate 只做校验
func (sp SchemeParameters) Validate() error {
	_, err := sp.normalize()
	return err
}

// chainBits 返回密文模数链部分
func chainBits(bits []int) []int {
	if len(bits) < 2 {
		return bits
	}
	return bits[:len(bits)-1]
}

// specialBits 返回特殊模数部分，单模数时为空
func specialBits(bits []int) []int {
	if len(bits) < 2 {
		return nil
	}
	return bits[len(bits)-1:]
}

func log2(n int) int {
	k := 0
	for n > 1 {
		n >>= 1
		k++
	}
	return k
}

func (sp SchemeParameters) String() string {
	return fmt.Sprintf("%s(N=%d, coeff=%v, t=%d bits, scale=2^%d)",
		sp.Scheme, sp.PolyModulusDegree, sp.CoeffModulusBits, sp.PlainModulusBits, sp.ScaleBits)
}
