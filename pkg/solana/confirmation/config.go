package confirmation

import (
	"time"

	"github.com/spf13/viper"

	"github.com/code-payments/code-solana-client/pkg/config"
	"github.com/code-payments/code-solana-client/pkg/config/env"
	"github.com/code-payments/code-solana-client/pkg/config/memory"
	viperconfig "github.com/code-payments/code-solana-client/pkg/config/viper"
	"github.com/code-payments/code-solana-client/pkg/config/wrapper"
)

const (
	envConfigPrefix   = "SOLANA_CONFIRMATION_"
	viperConfigPrefix = "confirmation."

	PollIntervalConfigEnvName = envConfigPrefix + "POLL_INTERVAL"
	pollIntervalConfigKey     = viperConfigPrefix + "poll_interval"
	defaultPollInterval       = 500 * time.Millisecond

	PollBackoffCapConfigEnvName = envConfigPrefix + "POLL_BACKOFF_CAP"
	pollBackoffCapConfigKey     = viperConfigPrefix + "poll_backoff_cap"
	defaultPollBackoffCap       = 5 * time.Second

	PollBackoffCurveConfigEnvName = envConfigPrefix + "POLL_BACKOFF_CURVE"
	pollBackoffCurveConfigKey     = viperConfigPrefix + "poll_backoff_curve"
	defaultPollBackoffCurve       = CurveExponential

	PollTimeoutConfigEnvName = envConfigPrefix + "POLL_TIMEOUT"
	pollTimeoutConfigKey     = viperConfigPrefix + "poll_timeout"
	defaultPollTimeout       = 5 * time.Second

	PollLimitConfigEnvName = envConfigPrefix + "POLL_LIMIT"
	pollLimitConfigKey     = viperConfigPrefix + "poll_limit"
	defaultPollLimit       = 0

	BlockHeightIntervalConfigEnvName = envConfigPrefix + "BLOCK_HEIGHT_INTERVAL"
	blockHeightIntervalConfigKey     = viperConfigPrefix + "block_height_interval"
	defaultBlockHeightInterval       = 2 * time.Second

	DefaultTimeoutConfigEnvName = envConfigPrefix + "DEFAULT_TIMEOUT"
	defaultTimeoutConfigKey     = viperConfigPrefix + "default_timeout"
	defaultDefaultTimeout       = 2 * time.Minute

	MaxConcurrencyConfigEnvName = envConfigPrefix + "MAX_CONCURRENCY"
	maxConcurrencyConfigKey     = viperConfigPrefix + "max_concurrency"
	defaultMaxConcurrency       = 16
)

// Backoff curves between status polls.
const (
	CurveConstant    = "constant"
	CurveLinear      = "linear"
	CurveExponential = "exponential"
)

type conf struct {
	// Base delay between polls, and the delay of the first backoff.
	pollInterval     config.Duration
	pollBackoffCap   config.Duration
	pollBackoffCurve config.String

	// Per-poll timeout.
	pollTimeout config.Duration

	// Maximum number of polls per tracking operation, zero for no limit.
	pollLimit config.Uint64

	// How often the subscriber checks block height for expiry.
	blockHeightInterval config.Duration

	// Applied when the caller's context has no deadline, zero for none.
	defaultTimeout config.Duration

	maxConcurrency config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			pollInterval:        env.NewDurationConfig(PollIntervalConfigEnvName, defaultPollInterval),
			pollBackoffCap:      env.NewDurationConfig(PollBackoffCapConfigEnvName, defaultPollBackoffCap),
			pollBackoffCurve:    env.NewStringConfig(PollBackoffCurveConfigEnvName, defaultPollBackoffCurve),
			pollTimeout:         env.NewDurationConfig(PollTimeoutConfigEnvName, defaultPollTimeout),
			pollLimit:           env.NewUint64Config(PollLimitConfigEnvName, defaultPollLimit),
			blockHeightInterval: env.NewDurationConfig(BlockHeightIntervalConfigEnvName, defaultBlockHeightInterval),
			defaultTimeout:      env.NewDurationConfig(DefaultTimeoutConfigEnvName, defaultDefaultTimeout),
			maxConcurrency:      env.NewUint64Config(MaxConcurrencyConfigEnvName, defaultMaxConcurrency),
		}
	}
}

// WithViperConfigs returns configuration pulled from the "confirmation"
// section of v
func WithViperConfigs(v *viper.Viper) ConfigProvider {
	return func() *conf {
		return &conf{
			pollInterval:        viperconfig.NewDurationConfig(v, pollIntervalConfigKey, defaultPollInterval),
			pollBackoffCap:      viperconfig.NewDurationConfig(v, pollBackoffCapConfigKey, defaultPollBackoffCap),
			pollBackoffCurve:    viperconfig.NewStringConfig(v, pollBackoffCurveConfigKey, defaultPollBackoffCurve),
			pollTimeout:         viperconfig.NewDurationConfig(v, pollTimeoutConfigKey, defaultPollTimeout),
			pollLimit:           viperconfig.NewUint64Config(v, pollLimitConfigKey, defaultPollLimit),
			blockHeightInterval: viperconfig.NewDurationConfig(v, blockHeightIntervalConfigKey, defaultBlockHeightInterval),
			defaultTimeout:      viperconfig.NewDurationConfig(v, defaultTimeoutConfigKey, defaultDefaultTimeout),
			maxConcurrency:      viperconfig.NewUint64Config(v, maxConcurrencyConfigKey, defaultMaxConcurrency),
		}
	}
}

type testOverrides struct {
	pollInterval        time.Duration
	pollBackoffCap      time.Duration
	pollBackoffCurve    string
	pollTimeout         time.Duration
	pollLimit           uint64
	blockHeightInterval time.Duration
	defaultTimeout      time.Duration
	maxConcurrency      uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			pollInterval:        wrapper.NewDurationConfig(memory.NewConfig(overrides.pollInterval), defaultPollInterval),
			pollBackoffCap:      wrapper.NewDurationConfig(memory.NewConfig(overrides.pollBackoffCap), defaultPollBackoffCap),
			pollBackoffCurve:    wrapper.NewStringConfig(memory.NewConfig(overrides.pollBackoffCurve), defaultPollBackoffCurve),
			pollTimeout:         wrapper.NewDurationConfig(memory.NewConfig(overrides.pollTimeout), defaultPollTimeout),
			pollLimit:           wrapper.NewUint64Config(memory.NewConfig(overrides.pollLimit), defaultPollLimit),
			blockHeightInterval: wrapper.NewDurationConfig(memory.NewConfig(overrides.blockHeightInterval), defaultBlockHeightInterval),
			defaultTimeout:      wrapper.NewDurationConfig(memory.NewConfig(overrides.defaultTimeout), defaultDefaultTimeout),
			maxConcurrency:      wrapper.NewUint64Config(memory.NewConfig(overrides.maxConcurrency), defaultMaxConcurrency),
		}
	}
}
