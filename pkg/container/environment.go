package container

import (
	"os"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// HostingEnvironment describes the process the application is bootstrapped
// into. It is built once per process and handed to the application's startup.
type HostingEnvironment struct {
	FunctionName       string // AWS_LAMBDA_FUNCTION_NAME, empty outside Lambda
	FunctionVersion    string // Published version of the function
	Region             string // AWS region the function runs in
	Stage              string // Deployment stage (dev, prod, ...)
	LogGroupName       string // CloudWatch Logs group
	LogStreamName      string // CloudWatch Logs stream of this instance
	ExecutionEnv       string // Runtime identifier
	InitializationType string // on-demand, provisioned-concurrency, snap-start
	MemoryLimitMB      int    // Configured memory limit

	Logger logrus.FieldLogger

	mu         sync.RWMutex
	attributes map[string]interface{}
}

// NewHostingEnvironment populates an environment from the Lambda variables
// of the current process
func NewHostingEnvironment(logger logrus.FieldLogger) *HostingEnvironment {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	env := &HostingEnvironment{
		FunctionName:       os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		FunctionVersion:    os.Getenv("AWS_LAMBDA_FUNCTION_VERSION"),
		Region:             os.Getenv("AWS_REGION"),
		Stage:              os.Getenv("STAGE"),
		LogGroupName:       os.Getenv("AWS_LAMBDA_LOG_GROUP_NAME"),
		LogStreamName:      os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME"),
		ExecutionEnv:       os.Getenv("AWS_EXECUTION_ENV"),
		InitializationType: os.Getenv("AWS_LAMBDA_INITIALIZATION_TYPE"),
		Logger:             logger,
		attributes:         make(map[string]interface{}),
	}

	if env.Region == "" {
		env.Region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if env.Stage == "" {
		env.Stage = "dev"
	}
	if limit, err := strconv.Atoi(os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")); err == nil {
		env.MemoryLimitMB = limit
	}

	return env
}

// IsLambda returns true when running inside AWS Lambda
func (e *HostingEnvironment) IsLambda() bool {
	return e.FunctionName != ""
}

// DeploymentMode returns "serverless" inside Lambda and "server" otherwise
func (e *HostingEnvironment) DeploymentMode() string {
	if e.IsLambda() {
		return "serverless"
	}
	return "server"
}

// SetAttribute stores a value shared with the application components
func (e *HostingEnvironment) SetAttribute(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attributes == nil {
		e.attributes = make(map[string]interface{})
	}
	e.attributes[name] = value
}

// Attribute returns a value stored with SetAttribute
func (e *HostingEnvironment) Attribute(name string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.attributes[name]
	return v, ok
}

// Fields returns the environment as log fields
func (e *HostingEnvironment) Fields() logrus.Fields {
	return logrus.Fields{
		"function_name":    e.FunctionName,
		"function_version": e.FunctionVersion,
		"region":           e.Region,
		"stage":            e.Stage,
		"deployment_mode":  e.DeploymentMode(),
		"memory_mb":        e.MemoryLimitMB,
	}
}
