package config

import "time"

// 配置项键名，同时作为命令行参数名；环境变量为 FHE_ 前缀的大写形式
const (
	ConfigFileKey = "config-file"
	LogLevelKey   = "log-level"
	LogFormatKey  = "log-format"

	SchemeKey            = "scheme"
	PolyModulusDegreeKey = "poly-modulus-degree"
	CoeffModulusBitsKey  = "coeff-modulus-bits"
	PlainModulusBitsKey  = "plain-modulus-bits"
	ScaleBitsKey         = "scale-bits"
	SecurityLevelKey     = "security-level"
	RelinearizationKey   = "relinearization"

	EndpointKey         = "endpoint"
	TransportKey        = "transport"
	SendRelinKeyKey     = "send-relin-key"
	RequestTimeoutKey   = "request-timeout"
	ListenAddressKey    = "listen-address"
	MaxBodyBytesKey     = "max-body-bytes"
	ContextCacheSizeKey = "context-cache-size"

	BenchmarkRunsKey     = "runs"
	BenchmarkWarmupKey   = "warmup"
	ThroughputWindowKey  = "throughput-window"
	BenchmarkParallelKey = "parallel"
)

const (
	envPrefix = "FHE"

	defaultLogLevel          = "info"
	defaultLogFormat         = "console"
	defaultScheme            = "ckks"
	defaultPolyModulusDegree = 8192
	defaultPlainModulusBits  = 20
	defaultScaleBits         = 0
	defaultEndpoint          = "http://127.0.0.1:8060"
	defaultRequestTimeout    = time.Duration(0)
	defaultTransport         = "http"
	defaultListenAddress     = ":8060"
	defaultMaxBodyBytes      = 64 << 20
	defaultContextCacheSize  = 16
	defaultBenchmarkRuns     = 10
	defaultBenchmarkWarmup   = 2
	defaultThroughputWindow  = 2 * time.Second
)
