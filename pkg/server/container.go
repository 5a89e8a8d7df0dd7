package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"serverless-container/internal/config"
	"serverless-container/pkg/container"

	"github.com/sirupsen/logrus"
)

// Container hosts an application outside Lambda. It goes through the same
// configure and bootstrap steps as the Lambda bridge and then serves the
// application directly over net/http.
type Container struct {
	Config *config.Config
	Logger logrus.FieldLogger

	env         *container.HostingEnvironment
	initializer *container.Initializer
	server      *http.Server
}

// NewContainer configures a container for the given application
func NewContainer(cfg *config.Config, logger logrus.FieldLogger, d container.Descriptor) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Container{
		Config:      cfg,
		Logger:      logger,
		env:         container.NewHostingEnvironment(logger),
		initializer: container.NewInitializer(logger),
	}

	if err := c.initializer.Configure(d); err != nil {
		return nil, fmt.Errorf("failed to configure container: %w", err)
	}

	return c, nil
}

// Environment returns the hosting environment handed to the application
func (c *Container) Environment() *container.HostingEnvironment {
	return c.env
}

// Initializer returns the initializer that owns the application
func (c *Container) Initializer() *container.Initializer {
	return c.initializer
}

// Bootstrap starts the application. It is safe to call more than once.
func (c *Container) Bootstrap(ctx context.Context) error {
	return c.initializer.Bootstrap(ctx, c.env)
}

// ServeHTTP forwards to the application, bootstrapping it on first use
func (c *Container) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := c.Bootstrap(r.Context()); err != nil {
		c.Logger.WithFields(logrus.Fields{
			"error": err.Error(),
			"path":  r.URL.Path,
		}).Error("Application is not available")
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	handler, err := c.initializer.Handler()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	handler.ServeHTTP(w, r)
}

// ListenAndServe bootstraps the application and serves it on the configured
// port until Shutdown is called
func (c *Container) ListenAndServe(ctx context.Context) error {
	if err := c.Bootstrap(ctx); err != nil {
		return err
	}

	c.server = &http.Server{
		Addr:              ":" + c.Config.Port,
		Handler:           c,
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.Logger.WithFields(logrus.Fields{
		"port":        c.Config.Port,
		"environment": c.Config.Environment,
	}).Info("Server started")

	if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (c *Container) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	if err := c.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	c.Logger.Info("Server exited")
	return nil
}
