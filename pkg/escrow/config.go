package escrow

import (
	"time"

	"github.com/code-payments/code-escrow/pkg/config"
	"github.com/code-payments/code-escrow/pkg/config/env"
	"github.com/code-payments/code-escrow/pkg/config/memory"
	"github.com/code-payments/code-escrow/pkg/config/wrapper"
)

const (
	envConfigPrefix = "ESCROW_COORDINATOR_"

	RPCMaxAttemptsConfigEnvName = envConfigPrefix + "RPC_MAX_ATTEMPTS"
	defaultRPCMaxAttempts       = 3

	RPCBaseDelayConfigEnvName = envConfigPrefix + "RPC_BASE_DELAY"
	defaultRPCBaseDelay       = 500 * time.Millisecond

	RPCMaxDelayConfigEnvName = envConfigPrefix + "RPC_MAX_DELAY"
	defaultRPCMaxDelay       = 5 * time.Second

	ConfirmationMaxAttemptsConfigEnvName = envConfigPrefix + "CONFIRMATION_MAX_ATTEMPTS"
	defaultConfirmationMaxAttempts       = 30

	ConfirmationBaseDelayConfigEnvName = envConfigPrefix + "CONFIRMATION_BASE_DELAY"
	defaultConfirmationBaseDelay       = 250 * time.Millisecond

	ConfirmationMaxDelayConfigEnvName = envConfigPrefix + "CONFIRMATION_MAX_DELAY"
	defaultConfirmationMaxDelay       = 5 * time.Second

	CommitmentConfigEnvName = envConfigPrefix + "COMMITMENT"
	defaultCommitment       = "finalized"

	EnforceMaturityConfigEnvName = envConfigPrefix + "ENFORCE_MATURITY"
	defaultEnforceMaturity       = false
)

type conf struct {
	rpcMaxAttempts          config.Uint64
	rpcBaseDelay            config.Duration
	rpcMaxDelay             config.Duration
	confirmationMaxAttempts config.Uint64
	confirmationBaseDelay   config.Duration
	confirmationMaxDelay    config.Duration
	commitment              config.String
	enforceMaturity         config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			rpcMaxAttempts:          env.NewUint64Config(RPCMaxAttemptsConfigEnvName, defaultRPCMaxAttempts),
			rpcBaseDelay:            env.NewDurationConfig(RPCBaseDelayConfigEnvName, defaultRPCBaseDelay),
			rpcMaxDelay:             env.NewDurationConfig(RPCMaxDelayConfigEnvName, defaultRPCMaxDelay),
			confirmationMaxAttempts: env.NewUint64Config(ConfirmationMaxAttemptsConfigEnvName, defaultConfirmationMaxAttempts),
			confirmationBaseDelay:   env.NewDurationConfig(ConfirmationBaseDelayConfigEnvName, defaultConfirmationBaseDelay),
			confirmationMaxDelay:    env.NewDurationConfig(ConfirmationMaxDelayConfigEnvName, defaultConfirmationMaxDelay),
			commitment:              env.NewStringConfig(CommitmentConfigEnvName, defaultCommitment),
			enforceMaturity:         env.NewBoolConfig(EnforceMaturityConfigEnvName, defaultEnforceMaturity),
		}
	}
}

type testOverrides struct {
	rpcMaxAttempts          uint64
	confirmationMaxAttempts uint64
	commitment              string
	enforceMaturity         bool
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	rpcMaxAttempts := uint64(defaultRPCMaxAttempts)
	if overrides.rpcMaxAttempts > 0 {
		rpcMaxAttempts = overrides.rpcMaxAttempts
	}

	confirmationMaxAttempts := uint64(defaultConfirmationMaxAttempts)
	if overrides.confirmationMaxAttempts > 0 {
		confirmationMaxAttempts = overrides.confirmationMaxAttempts
	}

	commitment := defaultCommitment
	if len(overrides.commitment) > 0 {
		commitment = overrides.commitment
	}

	return func() *conf {
		return &conf{
			rpcMaxAttempts:          wrapper.NewUint64Config(memory.NewConfig(rpcMaxAttempts), defaultRPCMaxAttempts),
			rpcBaseDelay:            wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultRPCBaseDelay),
			rpcMaxDelay:             wrapper.NewDurationConfig(memory.NewConfig(2*time.Millisecond), defaultRPCMaxDelay),
			confirmationMaxAttempts: wrapper.NewUint64Config(memory.NewConfig(confirmationMaxAttempts), defaultConfirmationMaxAttempts),
			confirmationBaseDelay:   wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultConfirmationBaseDelay),
			confirmationMaxDelay:    wrapper.NewDurationConfig(memory.NewConfig(2*time.Millisecond), defaultConfirmationMaxDelay),
			commitment:              wrapper.NewStringConfig(memory.NewConfig(commitment), defaultCommitment),
			enforceMaturity:         wrapper.NewBoolConfig(memory.NewConfig(overrides.enforceMaturity), defaultEnforceMaturity),
		}
	}
}
