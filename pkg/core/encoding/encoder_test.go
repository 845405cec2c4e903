package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

func newEncoder(t *testing.T, scheme types.SchemeKind) *Encoder {
	t.Helper()
	ctx, err := parameters.Configure(parameters.Default(scheme))
	require.NoError(t, err)
	enc, err := NewEncoder(ctx)
	require.NoError(t, err)
	return enc
}

func TestEncodeDecodeApproximateReal(t *testing.T) {
	enc := newEncoder(t, types.ApproximateReal)
	values := []float64{45, 120, 80, 72, 98.6}

	pt, err := enc.Encode(values)
	require.NoError(t, err)
	require.False(t, pt.Broadcast())
	require.Equal(t, len(values), pt.Len())

	decoded, err := enc.Decode(pt.Encoded())
	require.NoError(t, err)
	require.Len(t, decoded, enc.Context().SlotCount())
	require.InDeltaSlice(t, values, decoded[:len(values)], 1e-4)
	require.InDelta(t, 0, decoded[len(values)], 1e-4)
}

func TestEncodeDecodeIntegerBatched(t *testing.T) {
	enc := newEncoder(t, types.IntegerBatched)

	pt, err := enc.Encode([]int{20, -117, 83})
	require.NoError(t, err)

	ints, err := enc.DecodeIntegers(pt.Encoded())
	require.NoError(t, err)
	require.Len(t, ints, enc.Context().SlotCount())
	require.Equal(t, []int64{20, -117, 83, 0}, ints[:4])

	floats, err := enc.Decode(pt.Encoded())
	require.NoError(t, err)
	require.Equal(t, []float64{20, -117, 83}, floats[:3])
}

func TestIntegerCoercionTruncates(t *testing.T) {
	enc := newEncoder(t, types.IntegerBatched)

	pt, err := enc.Encode([]float64{98.6, -2.9})
	require.NoError(t, err)
	require.Equal(t, []int64{98, -2}, pt.Integers())
}

func TestScalarBroadcastsToEverySlot(t *testing.T) {
	for _, scheme := range []types.SchemeKind{types.ApproximateReal, types.IntegerBatched} {
		enc := newEncoder(t, scheme)

		pt, err := enc.Encode(5)
		require.NoError(t, err)
		require.True(t, pt.Broadcast())
		require.Equal(t, enc.Context().SlotCount(), pt.Len())

		decoded, err := enc.Decode(pt.Encoded())
		require.NoError(t, err)
		for i, v := range decoded {
			require.InDelta(t, 5, v, 1e-4, "slot %d", i)
		}
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	enc := newEncoder(t, types.ApproximateReal)

	_, err := enc.Encode([]float64{})
	require.ErrorIs(t, err, types.ErrEmptyInput)
	require.True(t, types.IsKind(err, types.EncodingError))

	_, err = enc.Encode("120")
	require.ErrorIs(t, err, types.ErrUnsupportedType)
	require.True(t, types.IsKind(err, types.EncodingError))

	_, err = enc.Encode([]string{"a"})
	require.ErrorIs(t, err, types.ErrUnsupportedType)

	_, err = enc.Encode(make([]float64, enc.Context().SlotCount()+1))
	require.ErrorIs(t, err, types.ErrTooManyValues)
}

func TestUninitializedEncoder(t *testing.T) {
	var enc *Encoder
	_, err := enc.Encode([]float64{1})
	require.True(t, types.IsKind(err, types.UninitializedComponent))

	_, err = NewEncoder(nil)
	require.True(t, types.IsKind(err, types.UninitializedComponent))
}

func TestFloatsAndLength(t *testing.T) {
	out, err := Floats(5, 3)
	require.NoError(t, err)
	require.Equal(t, []float64{5, 5, 5}, out)

	out, err = Floats([]int32{1, 2}, 10)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, out)

	_, err = Floats([]string{"a"}, 1)
	require.ErrorIs(t, err, types.ErrUnsupportedType)

	require.Equal(t, 1, Length(2.5))
	require.Equal(t, 4, Length([]uint64{1, 2, 3, 4}))
	require.Zero(t, Length(nil))
	require.Zero(t, Length([]float64{}))
}
