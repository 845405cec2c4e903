package parameters

import "github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"

// 同态加密标准中三元秘密分布下的系数模数总位宽上限
var securityBounds = map[int]map[int]int{
	128: {1024: 27, 2048: 54, 4096: 109, 8192: 218, 16384: 438, 32768: 881},
	192: {1024: 19, 2048: 37, 4096: 75, 8192: 152, 16384: 305, 32768: 611},
	256: {1024: 14, 2048: 29, 4096: 58, 8192: 118, 16384: 237, 32768: 476},
}

// MaxCoeffModulusBits 返回给定安全级别下的位宽上限
func MaxCoeffModulusBits(degree, level int) (int, bool) {
	table, ok := securityBounds[level]
	if !ok {
		return 0, false
	}
	bound, ok := table[degree]
	return bound, ok
}

func checkSecurity(degree int, bits []int, level int) error {
	if level == SecurityNone {
		return nil
	}
	bound, ok := MaxCoeffModulusBits(degree, level)
	if !ok {
		return types.Config("configure", "unsupported security level %d", level)
	}
	total := 0
	for _, b := range bits {
		total += b
	}
	if total > bound {
		return types.Config("configure", "coeff modulus totals %d bits, above the %d-bit security bound of %d for N=%d",
			total, level, bound, degree)
	}
	return nil
}
