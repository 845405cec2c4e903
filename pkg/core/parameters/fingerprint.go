package parameters

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// FingerprintSize 参数指纹字节数
const FingerprintSize = 32

// Fingerprint 参数集的 blake3 摘要
type Fingerprint [FingerprintSize]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint 解析十六进制指纹
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, err
	}
	if len(raw) != FingerprintSize {
		return f, fmt.Errorf("fingerprint must be %d bytes, got %d", FingerprintSize, len(raw))
	}
	copy(f[:], raw)
	return f, nil
}

// computeFingerprint 对方案、环次数、模数链、明文模数和缩放位宽做规范化编码后求摘要
func computeFingerprint(c *Context) Fingerprint {
	h := blake3.New()
	var buf [8]byte

	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}

	_, _ = h.Write([]byte(c.spec.Scheme.String()))
	p := c.RLWE()
	put(uint64(p.LogN()))
	put(uint64(len(p.Q())))
	for _, q := range p.Q() {
		put(q)
	}
	put(uint64(len(p.P())))
	for _, pi := range p.P() {
		put(pi)
	}
	put(c.plainModulus)
	put(uint64(c.spec.ScaleBits))

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}
