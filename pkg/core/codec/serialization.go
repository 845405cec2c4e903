// 传输编码工具函数
// 提供字节流与Base64字符串之间的转换，便于在JSON等纯文本信道中携带密文
package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// EncodeToBase64 将字节流编码为Base64字符串，便于网络传输
// 参数：data 字节流
// 返回：Base64字符串
func EncodeToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeFromBase64 将Base64字符串解码为字节流
// 参数：s Base64字符串
// 返回：字节流和传输错误
func DecodeFromBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, types.NewError(types.TransportError, "base64 decode",
			fmt.Errorf("%w: %v", types.ErrMalformedCiphertext, err))
	}
	return data, nil
}
