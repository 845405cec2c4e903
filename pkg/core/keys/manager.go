package keys

import (
	"errors"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// errNoSpecialModulus 单模数参数集不支持密钥切换
var errNoSpecialModulus = errors.New("coefficient modulus has no special prime, key switching is not supported")

// KeyMaterial 本地密钥三元组。私钥只用于构造解密器，不提供序列化出口。
type KeyMaterial struct {
	ctx *parameters.Context

	sk  *rlwe.SecretKey
	pk  *rlwe.PublicKey
	rlk *rlwe.RelinearizationKey

	// relinErr 非空表示处于降级乘法模式
	relinErr error
}

type options struct {
	skipRelin bool
}

// Option 密钥生成选项
type Option func(*options)

// WithoutRelinearization 不生成重线性化密钥，直接进入降级模式
func WithoutRelinearization() Option {
	return func(o *options) { o.skipRelin = true }
}

// WithRelinearization 按布尔值决定是否生成重线性化密钥
func WithRelinearization(enabled bool) Option {
	return func(o *options) { o.skipRelin = !enabled }
}

// GenerateKeys 生成私钥与公钥，并尽力生成重线性化密钥。
// 重线性化密钥缺失不算错误，通过 IsRelinearizationAvailable 查询。
func GenerateKeys(ctx *parameters.Context, opts ...Option) (*KeyMaterial, error) {
	if ctx == nil {
		return nil, types.Uninitialized("generate keys")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	kgen := rlwe.NewKeyGenerator(ctx.Provider())
	sk, pk := kgen.GenKeyPairNew()

	km := &KeyMaterial{ctx: ctx, sk: sk, pk: pk}

	switch {
	case o.skipRelin:
		km.relinErr = errors.New("relinearization disabled by configuration")
	case !ctx.HasSpecialModulus():
		km.relinErr = errNoSpecialModulus
	default:
		km.rlk, km.relinErr = genRelinearizationKey(kgen, sk)
	}

	if km.relinErr != nil {
		km.relinErr = types.NewError(types.DegradedCapability, "generate relinearization key",
			fmt.Errorf("%w: %v", types.ErrRelinUnavailable, km.relinErr))
	}
	return km, nil
}

// genRelinearizationKey 底层库在参数不满足时可能 panic，这里转为错误
func genRelinearizationKey(kgen *rlwe.KeyGenerator, sk *rlwe.SecretKey) (rlk *rlwe.RelinearizationKey, err error) {
	defer func() {
		if r := recover(); r != nil {
			rlk = nil
			err = fmt.Errorf("key generator panicked: %v", r)
		}
	}()
	rlk = kgen.GenRelinearizationKeyNew(sk)
	if rlk == nil {
		return nil, errors.New("key generator returned no key")
	}
	return rlk, nil
}

// Context 返回密钥所属上下文
func (km *KeyMaterial) Context() *parameters.Context {
	return km.ctx
}

// IsRelinearizationAvailable 是否持有重线性化密钥
func (km *KeyMaterial) IsRelinearizationAvailable() bool {
	return km != nil && km.rlk != nil
}

// RelinearizationError 说明降级原因，可用时返回 nil
func (km *KeyMaterial) RelinearizationError() error {
	if km == nil {
		return types.Uninitialized("relinearization")
	}
	return km.relinErr
}

// PublicKey 获取公钥
func (km *KeyMaterial) PublicKey() *rlwe.PublicKey {
	return km.pk
}

// RelinearizationKey 获取重线性化密钥，降级模式下为 nil
func (km *KeyMaterial) RelinearizationKey() *rlwe.RelinearizationKey {
	return km.rlk
}

// EvaluationKeys 构造求值密钥集，降级模式下不含重线性化密钥
func (km *KeyMaterial) EvaluationKeys() rlwe.EvaluationKeySet {
	return rlwe.NewMemEvaluationKeySet(km.rlk)
}

// NewEncryptor 使用公钥构造加密器
func (km *KeyMaterial) NewEncryptor() *rlwe.Encryptor {
	return rlwe.NewEncryptor(km.ctx.Provider(), km.pk)
}

// NewDecryptor 使用私钥构造解密器
func (km *KeyMaterial) NewDecryptor() *rlwe.Decryptor {
	return rlwe.NewDecryptor(km.ctx.Provider(), km.sk)
}
