package benchmark

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats 一组耗时样本的统计，单位毫秒
type Stats struct {
	Mean    float64   `json:"mean"`
	Median  float64   `json:"median"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Std     float64   `json:"std"`
	Samples []float64 `json:"all_times"`
}

// Summarize 计算样本统计；Std 为样本标准差，少于两个样本时为0
func Summarize(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	s := Stats{
		Mean:    stat.Mean(samples, nil),
		Min:     floats.Min(samples),
		Max:     floats.Max(samples),
		Samples: slices.Clone(samples),
	}
	if len(samples) > 1 {
		s.Std = stat.StdDev(samples, nil)
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		s.Median = sorted[mid]
	} else {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return s
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Precision 解密结果相对明文期望值的误差
type Precision struct {
	MaxAbsError  float64 `json:"max_abs_error"`
	MeanAbsError float64 `json:"mean_abs_error"`
	// Bits 为 -log2(MaxAbsError)，精确结果记为 float64 尾数位宽
	Bits float64 `json:"bits"`
}

const exactBits = 53

// MeasurePrecision 比较 want 与 got 的前 len(want) 个元素
func MeasurePrecision(want, got []float64) Precision {
	n := min(len(want), len(got))
	if n == 0 {
		return Precision{}
	}
	want, got = want[:n], got[:n]

	diff := make([]float64, n)
	floats.SubTo(diff, want, got)
	for i := range diff {
		diff[i] = math.Abs(diff[i])
	}
	p := Precision{
		MaxAbsError:  floats.Max(diff),
		MeanAbsError: stat.Mean(diff, nil),
		Bits:         exactBits,
	}
	if p.MaxAbsError > 0 {
		p.Bits = math.Min(exactBits, -math.Log2(p.MaxAbsError))
	}
	return p
}
