package lambda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"serverless-container/internal/config"
	"serverless-container/pkg/container"
	"serverless-container/pkg/container/proxy"

	"github.com/aws/aws-lambda-go/events"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotInitialized is returned before Initialize succeeded
var ErrNotInitialized = errors.New("handler manager is not initialized")

// HandlerManager owns the invocation bridge of a warm Lambda process. One
// bridge, and therefore one application, serves every invocation the
// process receives.
type HandlerManager struct {
	mu          sync.RWMutex
	config      *config.Config
	logger      logrus.FieldLogger
	env         *container.HostingEnvironment
	initializer *container.Initializer
	rest        *proxy.APIGatewayHandler
	httpAPI     *proxy.HTTPAPIHandler
	lastUsed    time.Time
	initialized bool
	initOnce    sync.Once
	initErr     error
}

var (
	globalHandlerManager *HandlerManager
	handlerManagerOnce   sync.Once
)

// GetHandlerManager returns the process-wide handler manager
func GetHandlerManager() *HandlerManager {
	handlerManagerOnce.Do(func() {
		globalHandlerManager = NewHandlerManager()
	})
	return globalHandlerManager
}

// NewHandlerManager creates a standalone manager
func NewHandlerManager() *HandlerManager {
	return &HandlerManager{}
}

// Initialize builds the bridge for the configured event format and
// registers the application descriptor. Only the first call has an effect.
func (m *HandlerManager) Initialize(cfg *config.Config, logger logrus.FieldLogger, d container.Descriptor) error {
	m.initOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if logger == nil {
			logger = logrus.StandardLogger()
		}

		m.config = cfg
		m.logger = logger
		m.env = container.NewHostingEnvironment(logger)
		m.initializer = container.NewInitializer(logger)

		proxyConfig := m.proxyConfig()
		switch cfg.Container.EventFormat {
		case config.EventFormatHTTP:
			m.httpAPI, m.initErr = proxy.NewHTTPAPIHandler(d, proxyConfig)
		case config.EventFormatREST, "":
			m.rest, m.initErr = proxy.NewAPIGatewayHandler(d, proxyConfig)
		default:
			m.initErr = fmt.Errorf("unsupported event format %q", cfg.Container.EventFormat)
		}
		if m.initErr != nil {
			return
		}

		m.lastUsed = time.Now()
		m.initialized = true

		fields := m.env.Fields()
		fields["event_format"] = cfg.Container.EventFormat
		logger.WithFields(fields).Info("Handler manager initialized")
	})

	return m.initErr
}

func (m *HandlerManager) proxyConfig() *proxy.Config {
	return &proxy.Config{
		StripBasePath:      m.config.Container.StripBasePath,
		BinaryContentTypes: m.config.Container.BinaryContentTypes,
		JWTSecret:          m.config.Auth.JWTSecret,
		ResponseTimeout:    m.config.Container.ResponseTimeout,
		DeadlineMargin:     m.config.Container.DeadlineMargin,
		Initializer:        m.initializer,
		Environment:        m.env,
		Logger:             m.logger,
	}
}

// Warm bootstraps the application ahead of the first invocation. A failure
// is logged and left for the first invocation to retry.
func (m *HandlerManager) Warm(ctx context.Context) error {
	m.mu.RLock()
	initialized, initializer, env, logger := m.initialized, m.initializer, m.env, m.logger
	m.mu.RUnlock()

	if !initialized {
		return ErrNotInitialized
	}

	if err := initializer.Bootstrap(ctx, env); err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Eager bootstrap failed, deferring to first invocation")
		return err
	}
	return nil
}

// EntryPoint returns the function to hand to lambda.Start
func (m *HandlerManager) EntryPoint() (interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.rest != nil:
		return m.trackREST, nil
	case m.httpAPI != nil:
		return m.trackHTTP, nil
	default:
		return nil, ErrNotInitialized
	}
}

func (m *HandlerManager) trackREST(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	m.UpdateLastUsed()
	return m.rest.Proxy(ctx, event)
}

func (m *HandlerManager) trackHTTP(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	m.UpdateLastUsed()
	return m.httpAPI.Proxy(ctx, event)
}

// InvokeJSON decodes a raw event in the configured format, runs it through
// the bridge and encodes the output. The error reports a failed invocation
// even though the output still carries the error response.
func (m *HandlerManager) InvokeJSON(ctx context.Context, payload []byte) ([]byte, error) {
	m.mu.RLock()
	rest, httpAPI := m.rest, m.httpAPI
	m.mu.RUnlock()

	var (
		out       interface{}
		invokeErr error
	)

	switch {
	case rest != nil:
		var event events.APIGatewayProxyRequest
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", container.ErrMalformedInput, err)
		}
		out, invokeErr = rest.Invoke(ctx, event)
	case httpAPI != nil:
		var event events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", container.ErrMalformedInput, err)
		}
		out, invokeErr = httpAPI.Invoke(ctx, event)
	default:
		return nil, ErrNotInitialized
	}

	m.UpdateLastUsed()

	body, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	return body, invokeErr
}

// Initializer returns the initializer shared by the bridge
func (m *HandlerManager) Initializer() *container.Initializer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initializer
}

// IsHealthy reports whether the application is bootstrapped and recently used
func (m *HandlerManager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized || !m.initializer.IsReady() {
		return false
	}

	// Instances idle longer than this are likely frozen between invocations
	return time.Since(m.lastUsed) < 5*time.Minute
}

// UpdateLastUsed updates the last used timestamp
func (m *HandlerManager) UpdateLastUsed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsed = time.Now()
}
