package codec

import (
	"bytes"
	"encoding"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// 信封格式：magic(4) | version(1) | kind(1) | fingerprint(32) | payload
const (
	magic      = "HEWF"
	version    = byte(1)
	headerSize = len(magic) + 2 + parameters.FingerprintSize
)

type payloadKind byte

const (
	kindCiphertext payloadKind = iota + 1
	kindRelinearizationKey
)

func (k payloadKind) String() string {
	switch k {
	case kindCiphertext:
		return "ciphertext"
	case kindRelinearizationKey:
		return "relinearization key"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// Codec 绑定到一个上下文的密文传输编解码器，只读，可并发使用
type Codec struct {
	ctx *parameters.Context

	// 该上下文下合法的载荷长度，解析前先按长度和布局拦截
	ciphertextSizes map[int]bool
	rlkSize         int
	metaSize        int
}

// New 创建编解码器
func New(ctx *parameters.Context) (*Codec, error) {
	if ctx == nil {
		return nil, types.Uninitialized("new codec")
	}
	c := &Codec{
		ctx:             ctx,
		ciphertextSizes: make(map[int]bool),
		rlkSize:         -1,
		metaSize:        rlwe.MetaData{}.BinarySize(),
	}
	for degree := 1; degree <= 2; degree++ {
		for level := 0; level <= ctx.MaxLevel(); level++ {
			c.ciphertextSizes[rlwe.NewCiphertext(ctx.Provider(), degree, level).BinarySize()] = true
		}
	}
	if ctx.HasSpecialModulus() {
		c.rlkSize = rlwe.NewRelinearizationKey(ctx.Provider()).BinarySize()
	}
	return c, nil
}

// Context 返回绑定的上下文
func (c *Codec) Context() *parameters.Context { return c.ctx }

// Serialize 把密文编码为带参数指纹的字节串
func (c *Codec) Serialize(ct *rlwe.Ciphertext) ([]byte, error) {
	if ct == nil {
		return nil, types.NewError(types.TransportError, "serialize", types.ErrMissingOperand)
	}
	return c.seal(kindCiphertext, ct)
}

// Deserialize 按本地上下文解析密文，参数不一致时返回 IncompatibleContext
func (c *Codec) Deserialize(data []byte) (*rlwe.Ciphertext, error) {
	const op = "deserialize"
	payload, err := c.open(kindCiphertext, data)
	if err != nil {
		return nil, err
	}

	if !c.ciphertextSizes[len(payload)] {
		return nil, types.NewError(types.TransportError, op,
			fmt.Errorf("%w: payload of %d bytes matches no ciphertext shape", types.ErrMalformedCiphertext, len(payload)))
	}
	if !ciphertextLayout(payload, c.metaSize, c.ctx.Degree(), c.ctx.MaxLevel()) {
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: inconsistent ciphertext layout", types.ErrMalformedCiphertext))
	}
	ct := new(rlwe.Ciphertext)
	if err := unmarshal(ct, payload); err != nil {
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: %v", types.ErrMalformedCiphertext, err))
	}

	switch {
	case ct.Degree() < 1 || ct.Degree() > 2:
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: degree %d", types.ErrMalformedCiphertext, ct.Degree()))
	case ct.Value[0].N() != c.ctx.Degree():
		return nil, types.NewError(types.TransportError, op,
			fmt.Errorf("%w: ring degree %d, expected %d", types.ErrIncompatibleContext, ct.Value[0].N(), c.ctx.Degree()))
	case ct.Level() > c.ctx.MaxLevel():
		return nil, types.NewError(types.TransportError, op,
			fmt.Errorf("%w: level %d above max level %d", types.ErrIncompatibleContext, ct.Level(), c.ctx.MaxLevel()))
	case ct.MetaData == nil:
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: missing metadata", types.ErrMalformedCiphertext))
	}
	return ct, nil
}

// SerializeRelinearizationKey 编码重线性化密钥（求值密钥，不含私钥信息）
func (c *Codec) SerializeRelinearizationKey(rlk *rlwe.RelinearizationKey) ([]byte, error) {
	if rlk == nil {
		return nil, types.NewError(types.TransportError, "serialize relinearization key", types.ErrMissingOperand)
	}
	return c.seal(kindRelinearizationKey, rlk)
}

// DeserializeRelinearizationKey 解析重线性化密钥
func (c *Codec) DeserializeRelinearizationKey(data []byte) (*rlwe.RelinearizationKey, error) {
	const op = "deserialize relinearization key"
	payload, err := c.open(kindRelinearizationKey, data)
	if err != nil {
		return nil, err
	}
	if len(payload) != c.rlkSize {
		return nil, types.NewError(types.TransportError, op,
			fmt.Errorf("%w: key payload of %d bytes, expected %d", types.ErrMalformedCiphertext, len(payload), c.rlkSize))
	}
	if !gadgetLayout(payload, c.ctx.Degree(), c.ctx.MaxLevel()+1, c.ctx.RLWE().PCount()) {
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: inconsistent key layout", types.ErrMalformedCiphertext))
	}
	rlk := new(rlwe.RelinearizationKey)
	if err := unmarshal(rlk, payload); err != nil {
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: %v", types.ErrMalformedCiphertext, err))
	}
	return rlk, nil
}

// EncodeCiphertext 序列化并转为Base64
func (c *Codec) EncodeCiphertext(ct *rlwe.Ciphertext) (string, error) {
	data, err := c.Serialize(ct)
	if err != nil {
		return "", err
	}
	return EncodeToBase64(data), nil
}

// DecodeCiphertext Base64解码并反序列化
func (c *Codec) DecodeCiphertext(s string) (*rlwe.Ciphertext, error) {
	data, err := DecodeFromBase64(s)
	if err != nil {
		return nil, err
	}
	return c.Deserialize(data)
}

func (c *Codec) seal(kind payloadKind, obj encoding.BinaryMarshaler) ([]byte, error) {
	payload, err := obj.MarshalBinary()
	if err != nil {
		return nil, types.NewError(types.TransportError, "serialize "+kind.String(), err)
	}
	fp := c.ctx.Fingerprint()

	var buf bytes.Buffer
	buf.Grow(headerSize + len(payload))
	buf.WriteString(magic)
	buf.WriteByte(version)
	buf.WriteByte(byte(kind))
	buf.Write(fp[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

func (c *Codec) open(kind payloadKind, data []byte) ([]byte, error) {
	op := "deserialize " + kind.String()
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: bad header", types.ErrMalformedCiphertext))
	}
	if v := data[len(magic)]; v != version {
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: unsupported version %d", types.ErrMalformedCiphertext, v))
	}
	if got := payloadKind(data[len(magic)+1]); got != kind {
		return nil, types.NewError(types.TransportError, op, fmt.Errorf("%w: payload is a %s", types.ErrMalformedCiphertext, got))
	}

	var fp parameters.Fingerprint
	copy(fp[:], data[len(magic)+2:headerSize])
	if fp != c.ctx.Fingerprint() {
		return nil, types.NewError(types.TransportError, op,
			fmt.Errorf("%w: fingerprint %s does not match local %s", types.ErrIncompatibleContext, fp.String()[:16], c.ctx.Fingerprint().String()[:16]))
	}
	return data[headerSize:], nil
}

// unmarshal 输入来自不可信信道，底层解析的 panic 转为错误
func unmarshal(obj encoding.BinaryUnmarshaler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unmarshal panicked: %v", r)
		}
	}()
	return obj.UnmarshalBinary(payload)
}
