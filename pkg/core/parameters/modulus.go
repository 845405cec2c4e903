package parameters

import (
	"github.com/tuneinsight/lattigo/v6/ring"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// BatchingPlainModulus 返回 bits 位内最大的满足 t = 1 mod 2N 的素数。
// 结果是确定的，远端由相同位宽可推出相同的 t。
func BatchingPlainModulus(degree, bits int) (uint64, error) {
	if bits < 2 || bits > MaxModulusBits {
		return 0, types.Config("plain modulus", "bit-width %d out of range", bits)
	}
	m := uint64(2 * degree)
	upper := uint64(1)<<bits - 1
	lower := uint64(1) << (bits - 1)

	for k := (upper - 1) / m; k > 0; k-- {
		t := k*m + 1
		if t < lower {
			break
		}
		if ring.IsPrime(t) {
			return t, nil
		}
	}
	return 0, types.Config("plain modulus", "no %d-bit prime congruent to 1 mod %d", bits, m)
}
