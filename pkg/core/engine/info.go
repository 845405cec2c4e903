package engine

import "slices"

// Info 引擎诊断信息
type Info struct {
	Scheme              string  `json:"scheme"`
	PolyModulusDegree   int     `json:"poly_modulus_degree"`
	SlotCount           int     `json:"slot_count"`
	Scale               float64 `json:"scale"`
	ScaleBits           int     `json:"scale_bits,omitempty"`
	CoeffModulusBits    []int   `json:"coeff_modulus_bits"`
	PlainModulusBits    int     `json:"plain_modulus_bits,omitempty"`
	PlainModulus        uint64  `json:"plain_modulus,omitempty"`
	SecurityLevel       int     `json:"security_level"`
	MaxLevel            int     `json:"max_level"`
	RelinearizationKeys bool    `json:"relinearization_keys"`
	DegradedOperations  int64   `json:"degraded_operations"`
	Fingerprint         string  `json:"fingerprint"`
}

// Info 返回当前上下文与密钥状态
func (e *Engine) Info() Info {
	if e == nil || e.ctx == nil {
		return Info{}
	}
	sp := e.ctx.Params()
	return Info{
		Scheme:              e.ctx.Scheme().String(),
		PolyModulusDegree:   e.ctx.Degree(),
		SlotCount:           e.ctx.SlotCount(),
		Scale:               e.ctx.Scale(),
		ScaleBits:           sp.ScaleBits,
		CoeffModulusBits:    slices.Clone(sp.CoeffModulusBits),
		PlainModulusBits:    sp.PlainModulusBits,
		PlainModulus:        e.ctx.PlainModulus(),
		SecurityLevel:       sp.SecurityLevel,
		MaxLevel:            e.ctx.MaxLevel(),
		RelinearizationKeys: e.IsRelinearizationAvailable(),
		DegradedOperations:  e.DegradedOperations(),
		Fingerprint:         e.ctx.Fingerprint().String(),
	}
}
