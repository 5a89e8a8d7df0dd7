package handlers

import (
	"net/http"
	"time"

	"serverless-container/internal/middleware"
	"serverless-container/pkg/container"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
)

// IdentityHandler exposes the caller identity and invocation attributes
type IdentityHandler struct {
	tokens *middleware.TokenIssuer
}

// NewIdentityHandler creates a new identity handler. tokens may be nil when
// no signing secret is configured.
func NewIdentityHandler(tokens *middleware.TokenIssuer) *IdentityHandler {
	return &IdentityHandler{tokens: tokens}
}

// TokenRequest asks for a development bearer token
type TokenRequest struct {
	Subject  string   `json:"subject" binding:"required"`
	Username string   `json:"username" binding:"required"`
	Roles    []string `json:"roles,omitempty" binding:"omitempty,max=10,dive,required"`
}

// Me returns the authenticated caller
func (h *IdentityHandler) Me(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "Unauthorized", "Authentication is required")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"principal": identity.Principal,
		"auth_type": identity.AuthType,
		"source_ip": identity.SourceIP,
		"roles":     middleware.IdentityRoles(identity),
		"claims":    identity.Claims,
	})
}

// Admin is only reachable with the admin role
func (h *IdentityHandler) Admin(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	c.JSON(http.StatusOK, gin.H{
		"message":   "welcome, administrator",
		"principal": identity.Principal,
	})
}

// Invocation describes the invocation that carried the request
func (h *IdentityHandler) Invocation(c *gin.Context) {
	inv, ok := container.InvocationFromRequest(c.Request)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"invocation": false,
		})
		return
	}

	response := gin.H{
		"invocation": true,
		"request_id": inv.RequestID,
	}
	if !inv.Deadline.IsZero() {
		response["deadline"] = inv.Deadline.UTC().Format(time.RFC3339Nano)
		response["remaining_ms"] = time.Until(inv.Deadline).Milliseconds()
	}

	if event, ok := container.EventFromRequest[events.APIGatewayProxyRequest](c.Request); ok {
		response["event_format"] = "rest"
		response["stage"] = event.RequestContext.Stage
		response["resource"] = event.Resource
	} else if event, ok := container.EventFromRequest[events.APIGatewayV2HTTPRequest](c.Request); ok {
		response["event_format"] = "http"
		response["stage"] = event.RequestContext.Stage
		response["route_key"] = event.RouteKey
	}

	c.JSON(http.StatusOK, response)
}

// Token issues a development bearer token
func (h *IdentityHandler) Token(c *gin.Context) {
	if h.tokens == nil {
		abortWithError(c, http.StatusNotFound, "Not found", "Token issuing is disabled")
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	token, err := h.tokens.GenerateToken(req.Subject, req.Username, req.Roles)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
	})
}
