package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"serverless-container/internal/middleware"
	"serverless-container/pkg/container"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxJobDuration bounds how long a sample job may run
const maxJobDuration = 10 * time.Second

// JobRequest describes a unit of simulated work
type JobRequest struct {
	Task       string `json:"task" binding:"required,max=128"`
	DurationMS int    `json:"duration_ms" binding:"gte=0,lte=10000"`
}

// JobResult is returned once the job finished
type JobResult struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	Status     string    `json:"status"`
	Async      bool      `json:"async"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	RequestID  string    `json:"request_id,omitempty"`
}

// JobHandler runs simulated work. Inside the container the response is
// completed from a background goroutine after the handler returned.
type JobHandler struct {
	logger logrus.FieldLogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(logger logrus.FieldLogger) *JobHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &JobHandler{logger: logger}
}

// Run executes a job
func (h *JobHandler) Run(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	result := JobResult{
		ID:        uuid.New().String(),
		Task:      req.Task,
		StartedAt: time.Now().UTC(),
		RequestID: c.GetString(middleware.RequestIDKey),
	}
	duration := time.Duration(req.DurationMS) * time.Millisecond
	if duration > maxJobDuration {
		duration = maxJobDuration
	}
	ctx := c.Request.Context()

	async, err := container.StartAsync(c.Request)
	if err != nil {
		// Served outside the container: run inline
		if !errors.Is(err, container.ErrAsyncUnavailable) {
			_ = c.Error(err)
			return
		}
		result.Status = h.work(ctx, duration)
		result.FinishedAt = time.Now().UTC()
		c.JSON(http.StatusOK, result)
		return
	}

	result.Async = true
	resp := async.Response()
	resp.Header().Set("Content-Type", "application/json; charset=utf-8")
	resp.WriteHeader(http.StatusAccepted)
	c.Status(http.StatusAccepted)

	go func() {
		defer async.Complete()

		result.Status = h.work(ctx, duration)
		result.FinishedAt = time.Now().UTC()

		body, err := json.Marshal(result)
		if err != nil {
			h.logger.WithFields(logrus.Fields{
				"job_id": result.ID,
				"error":  err.Error(),
			}).Error("Failed to encode job result")
			return
		}
		if _, err := resp.Write(body); err != nil {
			h.logger.WithFields(logrus.Fields{
				"job_id": result.ID,
				"error":  err.Error(),
			}).Warn("Job finished after the invocation ended")
		}
	}()
}

// work simulates the job; it stops early when the invocation is abandoned
func (h *JobHandler) work(ctx context.Context, duration time.Duration) string {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return "completed"
	case <-ctx.Done():
		return "cancelled"
	}
}
