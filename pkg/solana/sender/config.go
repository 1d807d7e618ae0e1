package sender

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
	envConfigPrefix   = "SOLANA_SENDER_"
	viperConfigPrefix = "sender."

	BlockhashCommitmentConfigEnvName = envConfigPrefix + "BLOCKHASH_COMMITMENT"
	blockhashCommitmentConfigKey     = viperConfigPrefix + "blockhash_commitment"
	defaultBlockhashCommitment       = "confirmed"

	DefaultCommitmentConfigEnvName = envConfigPrefix + "DEFAULT_COMMITMENT"
	defaultCommitmentConfigKey     = viperConfigPrefix + "default_commitment"
	defaultDefaultCommitment       = "confirmed"

	DefaultTimeoutConfigEnvName = envConfigPrefix + "DEFAULT_TIMEOUT"
	defaultTimeoutConfigKey     = viperConfigPrefix + "default_timeout"
	defaultDefaultTimeout       = time.Minute

	MaxResubmissionsConfigEnvName = envConfigPrefix + "MAX_RESUBMISSIONS"
	maxResubmissionsConfigKey     = viperConfigPrefix + "max_resubmissions"
	defaultMaxResubmissions       = 0
)

type conf struct {
	// Commitment of the blockhash fetched for each attempt.
	blockhashCommitment config.String

	// Used when a request has no commitment.
	defaultCommitment config.String

	// Used when a request has no timeout. Covers every attempt.
	defaultTimeout config.Duration

	// Number of times an expired transaction is rebuilt with a fresh
	// blockhash and resubmitted.
	maxResubmissions config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			blockhashCommitment: env.NewStringConfig(BlockhashCommitmentConfigEnvName, defaultBlockhashCommitment),
			defaultCommitment:   env.NewStringConfig(DefaultCommitmentConfigEnvName, defaultDefaultCommitment),
			defaultTimeout:      env.NewDurationConfig(DefaultTimeoutConfigEnvName, defaultDefaultTimeout),
			maxResubmissions:    env.NewUint64Config(MaxResubmissionsConfigEnvName, defaultMaxResubmissions),
		}
	}
}

// WithViperConfigs returns configuration pulled from the "sender" section of v
func WithViperConfigs(v *viper.Viper) ConfigProvider {
	return func() *conf {
		return &conf{
			blockhashCommitment: viperconfig.NewStringConfig(v, blockhashCommitmentConfigKey, defaultBlockhashCommitment),
			defaultCommitment:   viperconfig.NewStringConfig(v, defaultCommitmentConfigKey, defaultDefaultCommitment),
			defaultTimeout:      viperconfig.NewDurationConfig(v, defaultTimeoutConfigKey, defaultDefaultTimeout),
			maxResubmissions:    viperconfig.NewUint64Config(v, maxResubmissionsConfigKey, defaultMaxResubmissions),
		}
	}
}

type testOverrides struct {
	defaultTimeout   time.Duration
	maxResubmissions uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			blockhashCommitment: wrapper.NewStringConfig(memory.NewConfig(defaultBlockhashCommitment), defaultBlockhashCommitment),
			defaultCommitment:   wrapper.NewStringConfig(memory.NewConfig(defaultDefaultCommitment), defaultDefaultCommitment),
			defaultTimeout:      wrapper.NewDurationConfig(memory.NewConfig(overrides.defaultTimeout), defaultDefaultTimeout),
			maxResubmissions:    wrapper.NewUint64Config(memory.NewConfig(overrides.maxResubmissions), defaultMaxResubmissions),
		}
	}
}
