package encoding

import (
	"fmt"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

type number interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64 | ~float32 | ~float64
}

type target interface {
	int64 | float64
}

func convert[T number, U target](in []T) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = U(v)
	}
	return out
}

// coerce 把标量或数值序列转成目标元素类型，浮点转整数时向零截断。
// scalar 为 true 表示输入是单个标量，调用方负责广播。
func coerce[U target](values any) (out []U, scalar bool, err error) {
	switch v := values.(type) {
	case int:
		return []U{U(v)}, true, nil
	case int32:
		return []U{U(v)}, true, nil
	case int64:
		return []U{U(v)}, true, nil
	case uint:
		return []U{U(v)}, true, nil
	case uint32:
		return []U{U(v)}, true, nil
	case uint64:
		return []U{U(v)}, true, nil
	case float32:
		return []U{U(v)}, true, nil
	case float64:
		return []U{U(v)}, true, nil
	case []int:
		out = convert[int, U](v)
	case []int32:
		out = convert[int32, U](v)
	case []int64:
		out = convert[int64, U](v)
	case []uint:
		out = convert[uint, U](v)
	case []uint32:
		out = convert[uint32, U](v)
	case []uint64:
		out = convert[uint64, U](v)
	case []float32:
		out = convert[float32, U](v)
	case []float64:
		out = convert[float64, U](v)
	default:
		return nil, false, types.NewError(types.EncodingError, "encode",
			fmt.Errorf("%w: %T", types.ErrUnsupportedType, values))
	}

	if len(out) == 0 {
		return nil, false, types.NewError(types.EncodingError, "encode", types.ErrEmptyInput)
	}
	return out, false, nil
}

func broadcast[U target](v U, n int) []U {
	out := make([]U, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Floats 转为 float64 序列，标量广播为 n 个元素
func Floats(values any, n int) ([]float64, error) {
	out, scalar, err := coerce[float64](values)
	if err != nil {
		return nil, err
	}
	if scalar {
		out = broadcast(out[0], max(n, 1))
	}
	return out, nil
}

// Length 语义长度：序列为其长度，标量为 1，非法输入为 0
func Length(values any) int {
	out, scalar, err := coerce[float64](values)
	switch {
	case err != nil:
		return 0
	case scalar:
		return 1
	}
	return len(out)
}
