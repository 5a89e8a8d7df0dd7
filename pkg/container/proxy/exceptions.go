package proxy

import (
	"context"
	"errors"
	"net/http"

	"serverless-container/pkg/container"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fallbackBody is returned if the error body itself cannot be encoded
const fallbackBody = `{"message":"Internal Server Error","errorType":"InternalError"}`

// ErrorBody is the JSON payload of every error response
type ErrorBody struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType"`
	RequestID string `json:"requestId,omitempty"`
}

// StatusForError maps container failures to HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, container.ErrInvocationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, container.ErrMalformedInput):
		return http.StatusBadRequest
	case container.IsApplicationError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorBody builds the payload for err. Details of the error stay in the
// logs; clients only see the status text and the error category.
func NewErrorBody(ctx context.Context, err error) ErrorBody {
	return ErrorBody{
		Message:   http.StatusText(StatusForError(err)),
		ErrorType: container.ErrorType(err),
		RequestID: invocationRequestID(ctx),
	}
}

func encodeErrorBody(ctx context.Context, err error) string {
	body, mErr := json.MarshalToString(NewErrorBody(ctx, err))
	if mErr != nil {
		return fallbackBody
	}
	return body
}

func invocationRequestID(ctx context.Context) string {
	if inv, ok := container.InvocationFromContext(ctx); ok {
		return inv.RequestID
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}

// APIGatewayExceptionHandler renders failures as REST API proxy responses
type APIGatewayExceptionHandler struct{}

// NewAPIGatewayExceptionHandler creates an exception handler
func NewAPIGatewayExceptionHandler() *APIGatewayExceptionHandler {
	return &APIGatewayExceptionHandler{}
}

// HandleError implements container.ExceptionHandler
func (h *APIGatewayExceptionHandler) HandleError(ctx context.Context, err error) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: StatusForError(err),
		MultiValueHeaders: map[string][]string{
			"Content-Type": {"application/json"},
		},
		Body: encodeErrorBody(ctx, err),
	}
}

// HTTPAPIExceptionHandler renders failures as HTTP API responses
type HTTPAPIExceptionHandler struct{}

// NewHTTPAPIExceptionHandler creates an exception handler
func NewHTTPAPIExceptionHandler() *HTTPAPIExceptionHandler {
	return &HTTPAPIExceptionHandler{}
}

// HandleError implements container.ExceptionHandler
func (h *HTTPAPIExceptionHandler) HandleError(ctx context.Context, err error) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: StatusForError(err),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: encodeErrorBody(ctx, err),
	}
}
