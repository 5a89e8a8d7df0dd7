package handlers

import (
	"net/http"
	"time"

	"serverless-container/pkg/container"

	"github.com/gin-gonic/gin"
)

// StartedAtAttribute is the hosting environment attribute holding the time
// the application was bootstrapped
const StartedAtAttribute = "started_at"

// HealthHandler reports the state of the hosted application
type HealthHandler struct {
	env     *container.HostingEnvironment
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(env *container.HostingEnvironment, version string) *HealthHandler {
	return &HealthHandler{env: env, version: version}
}

// Health returns the service status and where it is deployed
func (h *HealthHandler) Health(c *gin.Context) {
	response := gin.H{
		"status":          "healthy",
		"service":         "serverless-container",
		"version":         h.version,
		"timestamp":       time.Now().UTC(),
		"deployment_mode": h.env.DeploymentMode(),
		"stage":           h.env.Stage,
	}

	if h.env.IsLambda() {
		response["function_name"] = h.env.FunctionName
		response["function_version"] = h.env.FunctionVersion
		response["region"] = h.env.Region
	}

	if value, ok := h.env.Attribute(StartedAtAttribute); ok {
		if startedAt, ok := value.(time.Time); ok {
			response["uptime_seconds"] = int64(time.Since(startedAt).Seconds())
		}
	}

	c.JSON(http.StatusOK, response)
}
