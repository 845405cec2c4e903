package parameters

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/ring"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

func TestConfigureApproximateRealDefaults(t *testing.T) {
	ctx, err := Configure(Default(types.ApproximateReal))
	require.NoError(t, err)

	require.Equal(t, types.ApproximateReal, ctx.Scheme())
	require.Equal(t, 8192, ctx.Degree())
	require.Equal(t, 4096, ctx.SlotCount())
	require.Equal(t, math.Exp2(40), ctx.Scale())
	require.Equal(t, 2, ctx.MaxLevel())
	require.True(t, ctx.HasSpecialModulus())
	require.Equal(t, []int{60, 40, 40, 60}, ctx.Params().CoeffModulusBits)
	require.Equal(t, 128, ctx.Params().SecurityLevel)
}

func TestConfigureIntegerBatchedDefaults(t *testing.T) {
	ctx, err := Configure(Default(types.IntegerBatched))
	require.NoError(t, err)

	require.Equal(t, 8192, ctx.SlotCount())
	require.Equal(t, float64(1), ctx.Scale())
	require.Equal(t, uint64(1), ctx.PlainModulus()%uint64(2*ctx.Degree()))
	require.Equal(t, DefaultPlainModulusBits, bits.Len64(ctx.PlainModulus()))
	require.Equal(t, []int{43, 43, 44, 44, 44}, ctx.Params().CoeffModulusBits)
	require.Equal(t, 0, ctx.Params().ScaleBits)
}

func TestConfigureRejectsInvalidCombinations(t *testing.T) {
	cases := map[string]SchemeParameters{
		"unknown scheme":      {PolyModulusDegree: 4096},
		"real degree 1024":    {Scheme: types.ApproximateReal, PolyModulusDegree: 1024},
		"not power of two":    {Scheme: types.IntegerBatched, PolyModulusDegree: 3000},
		"degree too large":    {Scheme: types.IntegerBatched, PolyModulusDegree: 65536},
		"degree too small":    {Scheme: types.IntegerBatched, PolyModulusDegree: 512},
		"bit-width too large": {Scheme: types.ApproximateReal, PolyModulusDegree: 8192, CoeffModulusBits: []int{61, 40, 60}},
		"above security":      {Scheme: types.ApproximateReal, PolyModulusDegree: 4096, CoeffModulusBits: []int{60, 60, 60}},
		"scale too large":     {Scheme: types.ApproximateReal, PolyModulusDegree: 2048, CoeffModulusBits: []int{30}, ScaleBits: 30},
		"plain modulus wide":  {Scheme: types.IntegerBatched, PolyModulusDegree: 4096, PlainModulusBits: 40},
		"bad security level":  {Scheme: types.IntegerBatched, PolyModulusDegree: 4096, SecurityLevel: 100},
	}

	for name, sp := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, err := Configure(sp)
			require.Nil(t, ctx)
			require.Error(t, err)
			require.True(t, types.IsKind(err, types.ConfigurationError))
			require.ErrorIs(t, err, types.ErrInvalidParameters)
		})
	}
}

func TestSecurityLevels(t *testing.T) {
	sp := SchemeParameters{Scheme: types.ApproximateReal, PolyModulusDegree: 8192, CoeffModulusBits: []int{60, 40, 40, 60}}

	sp.SecurityLevel = 192
	require.Error(t, sp.Validate())

	sp.SecurityLevel = SecurityNone
	require.NoError(t, sp.Validate())

	bound, ok := MaxCoeffModulusBits(4096, 128)
	require.True(t, ok)
	require.Equal(t, 109, bound)
}

func TestSingleModulusHasNoSpecialPrime(t *testing.T) {
	ctx, err := Configure(SchemeParameters{Scheme: types.ApproximateReal, PolyModulusDegree: 2048, CoeffModulusBits: []int{54}, ScaleBits: 20})
	require.NoError(t, err)
	require.False(t, ctx.HasSpecialModulus())
	require.Equal(t, 0, ctx.MaxLevel())
	require.Equal(t, 1024, ctx.SlotCount())
}

func TestFingerprint(t *testing.T) {
	sp := SchemeParameters{Scheme: types.ApproximateReal, PolyModulusDegree: 8192, CoeffModulusBits: []int{60, 40, 40, 60}, ScaleBits: 40}

	a, err := Configure(sp)
	require.NoError(t, err)
	b, err := Configure(sp)
	require.NoError(t, err)
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.True(t, a.Equivalent(b))

	sp.ScaleBits = 30
	c, err := Configure(sp)
	require.NoError(t, err)
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	d, err := Configure(Default(types.IntegerBatched))
	require.NoError(t, err)
	require.False(t, a.Equivalent(d))

	parsed, err := ParseFingerprint(a.Fingerprint().String())
	require.NoError(t, err)
	require.Equal(t, a.Fingerprint(), parsed)

	_, err = ParseFingerprint("abcd")
	require.Error(t, err)
}

func TestBatchingPlainModulus(t *testing.T) {
	for _, tc := range []struct{ degree, bits int }{{1024, 17}, {4096, 20}, {8192, 20}, {32768, 20}, {8192, 40}} {
		p, err := BatchingPlainModulus(tc.degree, tc.bits)
		require.NoError(t, err)
		require.Equal(t, tc.bits, bits.Len64(p))
		require.Equal(t, uint64(1), p%uint64(2*tc.degree))
		require.True(t, ring.IsPrime(p))

		again, err := BatchingPlainModulus(tc.degree, tc.bits)
		require.NoError(t, err)
		require.Equal(t, p, again)
	}

	_, err := BatchingPlainModulus(8192, 61)
	require.Error(t, err)
}
