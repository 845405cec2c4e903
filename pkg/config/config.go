package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
)

// Config 客户端与执行端共用的配置
type Config struct {
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	Scheme            string `mapstructure:"scheme"`
	PolyModulusDegree int    `mapstructure:"poly-modulus-degree"`
	CoeffModulusBits  []int  `mapstructure:"coeff-modulus-bits"`
	PlainModulusBits  int    `mapstructure:"plain-modulus-bits"`
	ScaleBits         int    `mapstructure:"scale-bits"`
	SecurityLevel     int    `mapstructure:"security-level"`
	Relinearization   bool   `mapstructure:"relinearization"`

	Endpoint         string        `mapstructure:"endpoint"`
	Transport        string        `mapstructure:"transport"`
	SendRelinKey     bool          `mapstructure:"send-relin-key"`
	RequestTimeout   time.Duration `mapstructure:"request-timeout"`
	ListenAddress    string        `mapstructure:"listen-address"`
	MaxBodyBytes     int64         `mapstructure:"max-body-bytes"`
	ContextCacheSize int           `mapstructure:"context-cache-size"`

	BenchmarkRuns    int           `mapstructure:"runs"`
	BenchmarkWarmup  int           `mapstructure:"warmup"`
	ThroughputWindow time.Duration `mapstructure:"throughput-window"`
	Parallel         int           `mapstructure:"parallel"`
}

// SchemeParameters 转换为参数管理器的输入
func (c Config) SchemeParameters() (parameters.SchemeParameters, error) {
	scheme, err := types.ParseScheme(c.Scheme)
	if err != nil {
		return parameters.SchemeParameters{}, err
	}
	sp := parameters.SchemeParameters{
		Scheme:            scheme,
		PolyModulusDegree: c.PolyModulusDegree,
		CoeffModulusBits:  append([]int(nil), c.CoeffModulusBits...),
		SecurityLevel:     c.SecurityLevel,
	}
	switch scheme {
	case types.IntegerBatched:
		sp.PlainModulusBits = c.PlainModulusBits
	case types.ApproximateReal:
		sp.ScaleBits = c.ScaleBits
	}
	return sp, nil
}

// Validate 校验配置
func (c Config) Validate() error {
	sp, err := c.SchemeParameters()
	if err != nil {
		return err
	}
	if err := sp.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Transport) {
	case "http", "websocket", "ws":
	default:
		return fmt.Errorf("invalid transport %q, expected http or websocket", c.Transport)
	}
	if c.BenchmarkRuns < 1 {
		return fmt.Errorf("runs must be at least 1, got %d", c.BenchmarkRuns)
	}
	if c.BenchmarkWarmup < 0 {
		return fmt.Errorf("warmup must not be negative, got %d", c.BenchmarkWarmup)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	if c.ContextCacheSize < 1 {
		return fmt.Errorf("context cache size must be at least 1, got %d", c.ContextCacheSize)
	}
	return nil
}
