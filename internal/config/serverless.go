package config

import (
	"sync"

	"serverless-container/pkg/container"
)

// ServerlessConfig holds serverless-specific configuration. The function
// metadata itself lives in container.HostingEnvironment.
type ServerlessConfig struct {
	IsLambda bool
}

// Global serverless configuration
var (
	serverlessConfig *ServerlessConfig
	serverlessOnce   sync.Once
)

// GetServerlessConfig returns the serverless configuration of this process
func GetServerlessConfig() *ServerlessConfig {
	serverlessOnce.Do(func() {
		serverlessConfig = &ServerlessConfig{
			IsLambda: isRunningInLambda(),
		}
	})
	return serverlessConfig
}

// isRunningInLambda detects if the application is running in AWS Lambda
func isRunningInLambda() bool {
	return container.NewHostingEnvironment(nil).IsLambda()
}

// IsServerlessMode returns true if running in serverless mode
func IsServerlessMode() bool {
	return GetServerlessConfig().IsLambda
}

// AdaptConfigForServerless modifies configuration for Lambda deployment
func AdaptConfigForServerless(config *Config, lambda bool) *Config {
	if !lambda {
		return config
	}

	config.Log.Format = "json"

	// Each warm instance only sees part of a client's traffic; throttling
	// belongs to API Gateway here
	config.RateLimit.Enabled = false

	return config
}

// GetOptimizedConfig returns configuration adapted to the current deployment mode
func GetOptimizedConfig() (*Config, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}

	return AdaptConfigForServerless(config, IsServerlessMode()), nil
}
