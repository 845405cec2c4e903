package codec

import (
	"fmt"
	"slices"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// SerializeContextParameters 导出远端重建上下文所需的参数记录，不含任何密钥
func SerializeContextParameters(ctx *parameters.Context) types.ContextParams {
	sp := ctx.Params()
	return types.ContextParams{
		Scheme:            sp.Scheme.String(),
		PolyModulusDegree: sp.PolyModulusDegree,
		CoeffModulusBits:  slices.Clone(sp.CoeffModulusBits),
		PlainModulusBits:  sp.PlainModulusBits,
		ScaleBits:         sp.ScaleBits,
		SecurityLevel:     sp.SecurityLevel,
		Fingerprint:       ctx.Fingerprint().String(),
	}
}

// SchemeParametersFromRecord 把参数记录转回本地配置
func SchemeParametersFromRecord(p types.ContextParams) (parameters.SchemeParameters, error) {
	scheme, err := types.ParseScheme(p.Scheme)
	if err != nil {
		return parameters.SchemeParameters{}, err
	}
	return parameters.SchemeParameters{
		Scheme:            scheme,
		PolyModulusDegree: p.PolyModulusDegree,
		CoeffModulusBits:  slices.Clone(p.CoeffModulusBits),
		PlainModulusBits:  p.PlainModulusBits,
		ScaleBits:         p.ScaleBits,
		SecurityLevel:     p.SecurityLevel,
	}, nil
}

// DeserializeContextParameters 由参数记录重建等价上下文。
// 记录中带指纹时，重建结果的指纹必须一致。
func DeserializeContextParameters(p types.ContextParams) (*parameters.Context, error) {
	sp, err := SchemeParametersFromRecord(p)
	if err != nil {
		return nil, err
	}
	ctx, err := parameters.Configure(sp)
	if err != nil {
		return nil, err
	}
	if p.Fingerprint != "" && p.Fingerprint != ctx.Fingerprint().String() {
		return nil, types.NewError(types.TransportError, "rebuild context",
			fmt.Errorf("%w: rebuilt fingerprint differs from the advertised one", types.ErrIncompatibleContext))
	}
	return ctx, nil
}
