package benchmark

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/engine"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

func quickConfig() Config {
	return Config{
		Runs:             3,
		Warmup:           1,
		ThroughputWindow: 20 * time.Millisecond,
		Parallel:         2,
		DataSizes:        []int{1, 10, 1 << 20},
		OperationSize:    10,
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	require.InDelta(t, 2.5, s.Mean, 1e-12)
	require.InDelta(t, 2.5, s.Median, 1e-12)
	require.Equal(t, 1.0, s.Min)
	require.Equal(t, 4.0, s.Max)
	require.InDelta(t, 1.2909944, s.Std, 1e-6)
	require.Equal(t, []float64{4, 1, 3, 2}, s.Samples)

	s = Summarize([]float64{7, 1, 3})
	require.Equal(t, 3.0, s.Median)

	s = Summarize([]float64{5})
	require.Equal(t, 5.0, s.Median)
	require.Zero(t, s.Std)

	require.Equal(t, Stats{}, Summarize(nil))
}

func TestMeasurePrecision(t *testing.T) {
	p := MeasurePrecision([]float64{1, 2, 3}, []float64{1, 2, 3, 99})
	require.Zero(t, p.MaxAbsError)
	require.Equal(t, float64(exactBits), p.Bits)

	p = MeasurePrecision([]float64{1, 2}, []float64{1.25, 2})
	require.InDelta(t, 0.25, p.MaxAbsError, 1e-12)
	require.InDelta(t, 0.125, p.MeanAbsError, 1e-12)
	require.InDelta(t, 2, p.Bits, 1e-12)

	require.Equal(t, Precision{}, MeasurePrecision(nil, []float64{1}))
}

func TestRun(t *testing.T) {
	for _, scheme := range []types.SchemeKind{types.ApproximateReal, types.IntegerBatched} {
		t.Run(scheme.String(), func(t *testing.T) {
			e, err := engine.New(parameters.Default(scheme))
			require.NoError(t, err)
			s, err := New(e, quickConfig())
			require.NoError(t, err)

			report, err := s.Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, scheme.String(), report.Info.Scheme)

			// 超出槽位数的规模被跳过
			require.Len(t, report.Encryption, 2)
			for _, r := range report.Encryption {
				require.Len(t, r.Encryption.Samples, 3)
				require.LessOrEqual(t, r.Encryption.Min, r.Encryption.Median)
				require.LessOrEqual(t, r.Encryption.Median, r.Encryption.Max)
			}

			require.Len(t, report.Operations, len(operationCases))
			for _, r := range report.Operations {
				require.Len(t, r.Times.Samples, 3)
				require.Less(t, r.Precision.MaxAbsError, 0.01, "operation %s", r.Operation)
			}
			if scheme == types.IntegerBatched {
				sq, ok := report.Operation(types.OpSquare)
				require.True(t, ok)
				require.Zero(t, sq.Precision.MaxAbsError)
			}

			require.NotNil(t, report.Throughput)
			require.Equal(t, 2, report.Throughput.Parallel)
			require.Positive(t, report.Throughput.Encryption)
			require.Positive(t, report.Throughput.Decryption)
			require.Positive(t, report.Throughput.Addition)
		})
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	e, err := engine.New(parameters.Default(types.ApproximateReal))
	require.NoError(t, err)
	s, err := New(e, quickConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReportSave(t *testing.T) {
	e, err := engine.New(parameters.Default(types.IntegerBatched))
	require.NoError(t, err)
	cfg := quickConfig()
	cfg.ThroughputWindow = 0
	s, err := New(e, cfg)
	require.NoError(t, err)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, report.Throughput)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "encryption_decryption")
	require.Contains(t, decoded, "operations")
	require.NotContains(t, decoded, "throughput")
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	require.ErrorIs(t, err, types.ErrUninitialized)

	e, err := engine.New(parameters.Default(types.IntegerBatched))
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Runs = 0
	_, err = New(e, cfg)
	require.True(t, types.IsKind(err, types.ConfigurationError))
}
