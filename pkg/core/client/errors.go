package client

import (
	"fmt"
	"time"
)

// Stage 一次卸载往返中的阶段
type Stage string

const (
	StageEncode      Stage = "encode"
	StageEncrypt     Stage = "encrypt"
	StageSerialize   Stage = "serialize"
	StageTransport   Stage = "transport"
	StageRemote      Stage = "remote"
	StageDeserialize Stage = "deserialize"
	StageDecrypt     Stage = "decrypt"
)

// StageError 标明失败阶段；底层分类错误可通过 errors.Is/As 取得
type StageError struct {
	Stage     Stage
	RequestID string
	Err       error
}

func (e *StageError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("offload failed at %s stage: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("offload %s failed at %s stage: %v", e.RequestID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Timings 各阶段耗时
type Timings struct {
	// Encryption 编码、加密与序列化
	Encryption time.Duration `json:"encryption"`
	// RemoteCompute 远端报告的计算时间
	RemoteCompute time.Duration `json:"remote_compute"`
	// Network 往返时间减去远端计算时间
	Network time.Duration `json:"network"`
	// Decryption 反序列化、解密与解码
	Decryption time.Duration `json:"decryption"`
	Total      time.Duration `json:"total"`
}
