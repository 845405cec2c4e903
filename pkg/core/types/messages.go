package types

import (
	"fmt"
	"strings"
	"time"
)

// ContextParams 远端重建上下文所需的方案形状（不含任何密钥）
type ContextParams struct {
	Scheme            string `json:"scheme"`
	PolyModulusDegree int    `json:"poly_modulus_degree"`
	CoeffModulusBits  []int  `json:"coeff_modulus_degree"`
	PlainModulusBits  int    `json:"plain_modulus_bits,omitempty"`
	ScaleBits         int    `json:"scale_factor,omitempty"`
	SecurityLevel     int    `json:"security_level,omitempty"`

	// Fingerprint 十六进制参数指纹，远端据此自检重建结果
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ContextKey 参数记录的可比较形式
type ContextKey string

// Key 用于缓存重建的上下文
func (p ContextParams) Key() ContextKey {
	return ContextKey(fmt.Sprintf("%s|%d|%v|%d|%d|%d|%s", strings.ToLower(p.Scheme), p.PolyModulusDegree,
		p.CoeffModulusBits, p.PlainModulusBits, p.ScaleBits, p.SecurityLevel, p.Fingerprint))
}

// OperationRequest 发往远端执行端点的请求
type OperationRequest struct {
	RequestID        string        `json:"request_id,omitempty"`
	Operation        OperationKind `json:"operation"`
	EncryptedData    string        `json:"encrypted_data"`
	EncryptedOperand string        `json:"encrypted_operand,omitempty"`
	PlaintextData    []float64     `json:"plaintext_data,omitempty"`
	ContextParams    ContextParams `json:"context_params"`

	// RelinearizationKey 可选的重线性化密钥（评估密钥，非私钥），供远端密文乘法使用
	RelinearizationKey string `json:"relinearization_key,omitempty"`
}

// OperationResult 远端执行结果
type OperationResult struct {
	RequestID         string        `json:"request_id,omitempty"`
	Result            string        `json:"result,omitempty"`
	ComputationTimeMs float64       `json:"computation_time_ms"`
	Operation         OperationKind `json:"operation"`
	Timestamp         time.Time     `json:"timestamp"`
	Error             string        `json:"error,omitempty"`
	Kind              Kind          `json:"kind,omitempty"`
}

// ErrorResponse 非200响应体
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      Kind   `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
