package types

import (
	"fmt"
	"strings"
)

// SchemeKind 同态加密方案类型
type SchemeKind int

const (
	// IntegerBatched 整数批处理方案（BFV风格，精确模运算）
	IntegerBatched SchemeKind = iota + 1
	// ApproximateReal 近似实数方案（CKKS，定点近似运算）
	ApproximateReal
)

// String 返回方案在线路上的名称
func (s SchemeKind) String() string {
	switch s {
	case IntegerBatched:
		return "bfv"
	case ApproximateReal:
		return "ckks"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// Valid 判断是否为已知方案
func (s SchemeKind) Valid() bool {
	return s == IntegerBatched || s == ApproximateReal
}

// ParseScheme 从字符串解析方案类型
func ParseScheme(name string) (SchemeKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bfv", "integer-batched", "integer_batched":
		return IntegerBatched, nil
	case "ckks", "approximate-real", "approximate_real":
		return ApproximateReal, nil
	default:
		return 0, NewError(ConfigurationError, "parse scheme",
			fmt.Errorf("%w: unknown scheme %q", ErrInvalidParameters, name))
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (s SchemeKind) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scheme %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *SchemeKind) UnmarshalText(text []byte) error {
	kind, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = kind
	return nil
}

// OperationKind 远端可执行的同态运算类型
type OperationKind string

const (
	OpAddPlain       OperationKind = "add_plain"
	OpMultiplyPlain  OperationKind = "multiply_plain"
	OpAddCipher      OperationKind = "add_cipher"
	OpMultiplyCipher OperationKind = "multiply_cipher"
	OpSquare         OperationKind = "square"
)

// AllOperations 按固定顺序列出所有运算
var AllOperations = []OperationKind{OpAddPlain, OpMultiplyPlain, OpAddCipher, OpMultiplyCipher, OpSquare}

// ParseOperation 解析运算名称，兼容连字符写法（add-plain）
func ParseOperation(name string) (OperationKind, error) {
	op := OperationKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	switch op {
	case OpAddPlain, OpMultiplyPlain, OpAddCipher, OpMultiplyCipher, OpSquare:
		return op, nil
	// 旧客户端的别名
	case "add":
		return OpAddPlain, nil
	case "multiply":
		return OpMultiplyPlain, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedOperation, name)
}

// NeedsPlaintext 是否需要明文操作数
func (op OperationKind) NeedsPlaintext() bool {
	return op == OpAddPlain || op == OpMultiplyPlain
}

// NeedsSecondCiphertext 是否需要第二个密文操作数
func (op OperationKind) NeedsSecondCiphertext() bool {
	return op == OpAddCipher || op == OpMultiplyCipher
}

// NeedsRelinearization 结果是否为二次密文（需要重线性化密钥）
func (op OperationKind) NeedsRelinearization() bool {
	return op == OpMultiplyCipher || op == OpSquare
}
