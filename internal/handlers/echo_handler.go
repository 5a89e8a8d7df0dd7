package handlers

import (
	"crypto/rand"
	"net/http"
	"strconv"

	"serverless-container/internal/middleware"

	"github.com/gin-gonic/gin"
)

// maxRandomBytes bounds the payload of the binary endpoint
const maxRandomBytes = 64 * 1024

// EchoRequest is the body accepted by the echo endpoint
type EchoRequest struct {
	Message string            `json:"message" binding:"required,max=1024"`
	Tags    map[string]string `json:"tags,omitempty" binding:"omitempty,max=20"`
}

// EchoResponse describes the request as the application received it
type EchoResponse struct {
	Message   string              `json:"message,omitempty"`
	Tags      map[string]string   `json:"tags,omitempty"`
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Query     map[string][]string `json:"query,omitempty"`
	Host      string              `json:"host,omitempty"`
	ClientIP  string              `json:"client_ip"`
	RequestID string              `json:"request_id"`
}

// EchoHandler mirrors requests back to the caller
type EchoHandler struct{}

// NewEchoHandler creates a new echo handler
func NewEchoHandler() *EchoHandler {
	return &EchoHandler{}
}

func (h *EchoHandler) describe(c *gin.Context) EchoResponse {
	return EchoResponse{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Query:     c.Request.URL.Query(),
		Host:      c.Request.Host,
		ClientIP:  c.ClientIP(),
		RequestID: c.GetString(middleware.RequestIDKey),
	}
}

// Get echoes the request line and query string
func (h *EchoHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.describe(c))
}

// Post echoes a JSON message
func (h *EchoHandler) Post(c *gin.Context) {
	var req EchoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	response := h.describe(c)
	response.Message = req.Message
	response.Tags = req.Tags
	c.JSON(http.StatusOK, response)
}

// Bytes returns n random bytes as application/octet-stream
func (h *EchoHandler) Bytes(c *gin.Context) {
	n := 16
	if raw := c.Query("n"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 || val > maxRandomBytes {
			badRequest(c, "n must be an integer between 0 and 65536")
			return
		}
		n = val
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		_ = c.Error(err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", buf)
}
