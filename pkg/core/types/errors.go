package types

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind string

const (
	// ConfigurationError 参数组合非法，构造期致命错误
	ConfigurationError Kind = "configuration_error"
	// UninitializedComponent 组件尚未初始化就被调用
	UninitializedComponent Kind = "uninitialized_component"
	// EncodingError 编码输入为空或类型不支持
	EncodingError Kind = "encoding_error"
	// DegradedCapability 重线性化不可用
	DegradedCapability Kind = "degraded_capability"
	// TransportError 序列化/反序列化失败或参数指纹不匹配
	TransportError Kind = "transport_error"
	// RemoteExecutionError 远端返回非成功状态或报告错误
	RemoteExecutionError Kind = "remote_execution_error"
)

var (
	ErrInvalidParameters     = errors.New("invalid parameters")
	ErrUninitialized         = errors.New("component not initialized")
	ErrEmptyInput            = errors.New("empty input")
	ErrUnsupportedType       = errors.New("unsupported input type")
	ErrTooManyValues         = errors.New("more values than slots")
	ErrRelinUnavailable      = errors.New("relinearization keys unavailable")
	ErrDegreeExceeded        = errors.New("ciphertext degree too high for multiplication")
	ErrIncompatibleContext   = errors.New("incompatible context")
	ErrMalformedCiphertext   = errors.New("malformed ciphertext")
	ErrUnsupportedOperation  = errors.New("unsupported operation")
	ErrMissingOperand        = errors.New("missing operand")
	ErrRemoteExecutionFailed = errors.New("remote execution failed")
)

// Error 带分类的错误
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError 创建分类错误
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 允许 errors.Is(err, &Error{Kind: k}) 按分类匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf 提取错误分类，未分类时返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind 判断错误链中是否含有指定分类
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// Config 构造配置错误
func Config(op string, format string, args ...any) *Error {
	return NewError(ConfigurationError, op, fmt.Errorf("%w: %s", ErrInvalidParameters, fmt.Sprintf(format, args...)))
}

// Uninitialized 构造未初始化错误
func Uninitialized(op string) *Error {
	return NewError(UninitializedComponent, op, ErrUninitialized)
}
