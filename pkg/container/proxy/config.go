package proxy

import (
	"time"

	"serverless-container/pkg/container"

	"github.com/sirupsen/logrus"
)

// Config holds the options shared by the API Gateway collaborators
type Config struct {
	// StripBasePath removes a custom domain base path mapping from request paths
	StripBasePath string
	// BinaryContentTypes are media types always returned base64 encoded
	BinaryContentTypes []string
	// JWTSecret enables HMAC verified bearer tokens as an identity source
	// when API Gateway did not run an authorizer
	JWTSecret string

	ResponseTimeout time.Duration
	DeadlineMargin  time.Duration

	Initializer *container.Initializer
	Environment *container.HostingEnvironment
	Logger      logrus.FieldLogger
}

// DefaultConfig returns the configuration used when none is supplied
func DefaultConfig() *Config {
	return &Config{
		DeadlineMargin: 50 * time.Millisecond,
	}
}

func (c *Config) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}
