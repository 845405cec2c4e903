package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AddFlags 注册全部配置项的命令行参数
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "optional JSON config file")
	fs.String(LogLevelKey, defaultLogLevel, "log level (debug, info, warn, error)")
	fs.String(LogFormatKey, defaultLogFormat, "log format (console, json)")

	fs.String(SchemeKey, defaultScheme, "scheme: bfv (integer-batched) or ckks (approximate-real)")
	fs.Int(PolyModulusDegreeKey, defaultPolyModulusDegree, "polynomial modulus degree (power of two)")
	fs.IntSlice(CoeffModulusBitsKey, nil, "coefficient modulus bit-widths, last one is the special prime (default: per degree)")
	fs.Int(PlainModulusBitsKey, defaultPlainModulusBits, "plaintext modulus bit-width (bfv only)")
	fs.Int(ScaleBitsKey, defaultScaleBits, "scale bit-width (ckks only, 0 = default)")
	fs.Int(SecurityLevelKey, 0, "security level 128/192/256 (0 = 128, -1 = unchecked)")
	fs.Bool(RelinearizationKey, true, "generate relinearization keys")

	fs.String(EndpointKey, defaultEndpoint, "remote execution endpoint base URL")
	fs.String(TransportKey, defaultTransport, "transport: http or websocket")
	fs.Bool(SendRelinKeyKey, false, "attach the relinearization key (evaluation key) to multiply/square requests")
	fs.Duration(RequestTimeoutKey, defaultRequestTimeout, "deadline for one offload attempt (0 = none)")
	fs.String(ListenAddressKey, defaultListenAddress, "worker listen address")
	fs.Int64(MaxBodyBytesKey, defaultMaxBodyBytes, "worker request body limit")
	fs.Int(ContextCacheSizeKey, defaultContextCacheSize, "worker cache size for rebuilt parameter contexts (LRU)")

	fs.Int(BenchmarkRunsKey, defaultBenchmarkRuns, "timed runs per benchmark")
	fs.Int(BenchmarkWarmupKey, defaultBenchmarkWarmup, "warmup runs per benchmark")
	fs.Duration(ThroughputWindowKey, defaultThroughputWindow, "duration of each throughput measurement")
	fs.Int(BenchmarkParallelKey, 1, "concurrent engines for throughput measurement")
}

// BuildViper 构建 viper 实例：命令行参数 > 环境变量 > 配置文件 > 默认值
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}
	return v, nil
}

// SetDefaultConfigValues 设置默认值（未绑定命令行参数时生效）
func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(LogFormatKey, defaultLogFormat)
	v.SetDefault(SchemeKey, defaultScheme)
	v.SetDefault(PolyModulusDegreeKey, defaultPolyModulusDegree)
	v.SetDefault(PlainModulusBitsKey, defaultPlainModulusBits)
	v.SetDefault(ScaleBitsKey, defaultScaleBits)
	v.SetDefault(RelinearizationKey, true)
	v.SetDefault(EndpointKey, defaultEndpoint)
	v.SetDefault(TransportKey, defaultTransport)
	v.SetDefault(SendRelinKeyKey, false)
	v.SetDefault(RequestTimeoutKey, defaultRequestTimeout)
	v.SetDefault(ListenAddressKey, defaultListenAddress)
	v.SetDefault(MaxBodyBytesKey, defaultMaxBodyBytes)
	v.SetDefault(ContextCacheSizeKey, defaultContextCacheSize)
	v.SetDefault(BenchmarkRunsKey, defaultBenchmarkRuns)
	v.SetDefault(BenchmarkWarmupKey, defaultBenchmarkWarmup)
	v.SetDefault(ThroughputWindowKey, defaultThroughputWindow)
	v.SetDefault(BenchmarkParallelKey, 1)
}

// BuildConfig 从 viper 构建配置
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}

// NewConfig 构建并校验配置
func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// Load 由命令行参数集一步得到配置
func Load(fs *pflag.FlagSet) (Config, error) {
	v, err := BuildViper(fs)
	if err != nil {
		return Config{}, err
	}
	return NewConfig(v)
}
