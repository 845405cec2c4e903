package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlagSet(t))
	require.NoError(t, err)

	require.Equal(t, "ckks", cfg.Scheme)
	require.Equal(t, 8192, cfg.PolyModulusDegree)
	require.Empty(t, cfg.CoeffModulusBits)
	require.True(t, cfg.Relinearization)
	require.False(t, cfg.SendRelinKey)
	require.Equal(t, "http", cfg.Transport)
	require.Equal(t, defaultEndpoint, cfg.Endpoint)
	require.Equal(t, time.Duration(0), cfg.RequestTimeout)
	require.Equal(t, int64(64<<20), cfg.MaxBodyBytes)
	require.Equal(t, 16, cfg.ContextCacheSize)
	require.Equal(t, 10, cfg.BenchmarkRuns)
	require.Equal(t, 2*time.Second, cfg.ThroughputWindow)

	sp, err := cfg.SchemeParameters()
	require.NoError(t, err)
	require.Equal(t, types.ApproximateReal, sp.Scheme)
	require.Zero(t, sp.PlainModulusBits)
}

func TestLoadFlags(t *testing.T) {
	fs := newFlagSet(t,
		"--scheme=bfv",
		"--poly-modulus-degree=4096",
		"--coeff-modulus-bits=36,36,37",
		"--plain-modulus-bits=18",
		"--transport=websocket",
		"--relinearization=false",
	)
	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, []int{36, 36, 37}, cfg.CoeffModulusBits)
	require.False(t, cfg.Relinearization)

	sp, err := cfg.SchemeParameters()
	require.NoError(t, err)
	require.Equal(t, types.IntegerBatched, sp.Scheme)
	require.Equal(t, 4096, sp.PolyModulusDegree)
	require.Equal(t, 18, sp.PlainModulusBits)
	require.Zero(t, sp.ScaleBits)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("FHE_SCHEME", "bfv")
	t.Setenv("FHE_LISTEN_ADDRESS", ":9999")

	cfg, err := Load(newFlagSet(t))
	require.NoError(t, err)
	require.Equal(t, "bfv", cfg.Scheme)
	require.Equal(t, ":9999", cfg.ListenAddress)

	// 命令行参数优先于环境变量
	cfg, err = Load(newFlagSet(t, "--scheme=ckks"))
	require.NoError(t, err)
	require.Equal(t, "ckks", cfg.Scheme)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"endpoint":"http://worker:8060","runs":3}`), 0o600))

	cfg, err := Load(newFlagSet(t, "--config-file="+path))
	require.NoError(t, err)
	require.Equal(t, "http://worker:8060", cfg.Endpoint)
	require.Equal(t, 3, cfg.BenchmarkRuns)

	_, err = Load(newFlagSet(t, "--config-file="+filepath.Join(t.TempDir(), "missing.json")))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"unknown scheme", []string{"--scheme=paillier"}},
		{"degree not power of two", []string{"--poly-modulus-degree=3000"}},
		{"unknown transport", []string{"--transport=grpc"}},
		{"no runs", []string{"--runs=0"}},
		{"negative warmup", []string{"--warmup=-1"}},
		{"no parallelism", []string{"--parallel=0"}},
		{"empty context cache", []string{"--context-cache-size=0"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(newFlagSet(t, c.args...))
			require.Error(t, err)
		})
	}
}
