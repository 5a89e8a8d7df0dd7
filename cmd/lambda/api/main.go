package main

import (
	"context"

	"serverless-container/internal/config"
	"serverless-container/internal/handlers"
	"serverless-container/pkg/lambda"

	awslambda "github.com/aws/aws-lambda-go/lambda"
)

var entry interface{}

func init() {
	cfg, err := config.GetOptimizedConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger := config.NewLogger(cfg.Log)
	manager := lambda.GetHandlerManager()

	descriptor := handlers.NewDescriptor(&handlers.RouterConfig{Config: cfg, Logger: logger})
	if err := manager.Initialize(cfg, logger, descriptor); err != nil {
		panic("Failed to initialize handler manager: " + err.Error())
	}

	// Startup during the init phase is not billed against the first request.
	// A failure here is retried by the first invocation.
	if cfg.Container.EagerBootstrap {
		_ = manager.Warm(context.Background())
	}

	entry, err = manager.EntryPoint()
	if err != nil {
		panic("Failed to resolve entry point: " + err.Error())
	}
}

func main() {
	awslambda.Start(entry)
}
