package solana

import (
	"time"

	"github.com/spf13/viper"

	"github.com/code-payments/code-solana-client/pkg/config"
	"github.com/code-payments/code-solana-client/pkg/config/env"
	"github.com/code-payments/code-solana-client/pkg/config/memory"
	viperconfig "github.com/code-payments/code-solana-client/pkg/config/viper"
	"github.com/code-payments/code-solana-client/pkg/config/wrapper"
)

type Environment string

const (
	EnvironmentDev  Environment = "https://api.devnet.solana.com"
	EnvironmentTest Environment = "https://api.testnet.solana.com"
	EnvironmentProd Environment = "https://api.mainnet-beta.solana.com"
)

const (
	envConfigPrefix   = "SOLANA_CLIENT_"
	viperConfigPrefix = "client."

	BlockhashCacheWindowConfigEnvName = envConfigPrefix + "BLOCKHASH_CACHE_WINDOW"
	blockhashCacheWindowConfigKey     = viperConfigPrefix + "blockhash_cache_window"
	defaultBlockhashCacheWindow       = 2 * time.Second

	HTTPTimeoutConfigEnvName = envConfigPrefix + "HTTP_TIMEOUT"
	httpTimeoutConfigKey     = viperConfigPrefix + "http_timeout"
	defaultHTTPTimeout       = 30 * time.Second

	RequestsPerSecondConfigEnvName = envConfigPrefix + "REQUESTS_PER_SECOND"
	requestsPerSecondConfigKey     = viperConfigPrefix + "requests_per_second"
	defaultRequestsPerSecond       = 0
)

type conf struct {
	blockhashCacheWindow config.Duration
	httpTimeout          config.Duration
	requestsPerSecond    config.Float64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			blockhashCacheWindow: env.NewDurationConfig(BlockhashCacheWindowConfigEnvName, defaultBlockhashCacheWindow),
			httpTimeout:          env.NewDurationConfig(HTTPTimeoutConfigEnvName, defaultHTTPTimeout),
			requestsPerSecond:    env.NewFloat64Config(RequestsPerSecondConfigEnvName, defaultRequestsPerSecond),
		}
	}
}

// WithViperConfigs returns configuration pulled from the "client" section of v
func WithViperConfigs(v *viper.Viper) ConfigProvider {
	return func() *conf {
		return &conf{
			blockhashCacheWindow: viperconfig.NewDurationConfig(v, blockhashCacheWindowConfigKey, defaultBlockhashCacheWindow),
			httpTimeout:          viperconfig.NewDurationConfig(v, httpTimeoutConfigKey, defaultHTTPTimeout),
			requestsPerSecond:    viperconfig.NewFloat64Config(v, requestsPerSecondConfigKey, defaultRequestsPerSecond),
		}
	}
}

type testOverrides struct {
	blockhashCacheWindow time.Duration
	requestsPerSecond    float64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			blockhashCacheWindow: wrapper.NewDurationConfig(memory.NewConfig(overrides.blockhashCacheWindow), defaultBlockhashCacheWindow),
			httpTimeout:          wrapper.NewDurationConfig(memory.NewConfig(5*time.Second), defaultHTTPTimeout),
			requestsPerSecond:    wrapper.NewFloat64Config(memory.NewConfig(overrides.requestsPerSecond), defaultRequestsPerSecond),
		}
	}
}
