package handlers

import (
	"context"
	"time"

	"serverless-container/internal/config"
	"serverless-container/internal/middleware"
	"serverless-container/pkg/container"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Version of the sample application
const Version = "1.0.0"

// maxBodySize limits request bodies of the API routes
const maxBodySize = 1 << 20

// RouterConfig holds configuration for setting up routes
type RouterConfig struct {
	Config *config.Config
	Logger logrus.FieldLogger
}

// NewDescriptor describes the sample application as container components
// behind the default middleware chain
func NewDescriptor(cfg *RouterConfig) *container.ComponentDescriptor {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	components := []container.Component{
		container.NewComponent("system", func(ctx context.Context, engine *gin.Engine, env *container.HostingEnvironment) error {
			env.SetAttribute(StartedAtAttribute, time.Now())
			SetupSystemRoutes(engine, env)
			return nil
		}),
		container.NewComponent("api", func(ctx context.Context, engine *gin.Engine, env *container.HostingEnvironment) error {
			SetupRoutes(engine, logger)
			return nil
		}),
	}

	if !cfg.Config.IsProduction() && cfg.Config.Auth.JWTSecret != "" {
		tokens := middleware.NewTokenIssuer(cfg.Config.Auth.JWTSecret, time.Hour)
		components = append(components, container.NewComponent("dev", func(ctx context.Context, engine *gin.Engine, env *container.HostingEnvironment) error {
			SetupDevelopmentRoutes(engine, tokens)
			return nil
		}))
	}

	return container.NewComponentDescriptor(components...).Use(middleware.Chain(cfg.Config, logger)...)
}

// SetupSystemRoutes configures the health check
func SetupSystemRoutes(router *gin.Engine, env *container.HostingEnvironment) {
	healthHandler := NewHealthHandler(env, Version)
	router.GET("/health", healthHandler.Health)
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, logger logrus.FieldLogger) {
	echoHandler := NewEchoHandler()
	identityHandler := NewIdentityHandler(nil)
	jobHandler := NewJobHandler(logger)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequestSizeLimit(maxBodySize))
	{
		echo := v1.Group("/echo")
		echo.Use(middleware.ContentTypeValidation("application/json"))
		{
			echo.GET("", echoHandler.Get)
			echo.POST("", echoHandler.Post)
		}
		v1.GET("/bytes", echoHandler.Bytes)
		v1.GET("/invocation", identityHandler.Invocation)

		jobs := v1.Group("/jobs")
		jobs.Use(middleware.ContentTypeValidation("application/json"))
		{
			jobs.POST("", jobHandler.Run)
		}

		// Protected routes
		protected := v1.Group("")
		protected.Use(middleware.Authentication())
		{
			protected.GET("/me", identityHandler.Me)
			protected.GET("/admin", middleware.Authorization("admin"), identityHandler.Admin)
		}
	}
}

// SetupDevelopmentRoutes adds development-only routes
func SetupDevelopmentRoutes(router *gin.Engine, tokens *middleware.TokenIssuer) {
	identityHandler := NewIdentityHandler(tokens)

	dev := router.Group("/dev")
	{
		dev.POST("/token", identityHandler.Token)
	}
}
