package proxy

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"serverless-container/pkg/container"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
)

// HTTPAPIHandler bridges API Gateway HTTP API (v2 payload) events
type HTTPAPIHandler = container.Handler[events.APIGatewayV2HTTPRequest, events.APIGatewayV2HTTPResponse]

// NewHTTPAPIHandler creates a bridge for HTTP API integrations and configures
// it with the given descriptor
func NewHTTPAPIHandler(d container.Descriptor, cfg *Config) (*HTTPAPIHandler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	handler, err := container.NewHandler(container.HandlerConfig[events.APIGatewayV2HTTPRequest, events.APIGatewayV2HTTPResponse]{
		Reader:          NewHTTPAPIRequestReader(cfg),
		Writer:          NewHTTPAPIResponseWriter(cfg),
		Security:        NewHTTPAPISecurityContextWriter(cfg),
		Exceptions:      NewHTTPAPIExceptionHandler(),
		Initializer:     cfg.Initializer,
		Environment:     cfg.Environment,
		Logger:          cfg.logger(),
		ResponseTimeout: cfg.ResponseTimeout,
		DeadlineMargin:  cfg.DeadlineMargin,
	})
	if err != nil {
		return nil, err
	}

	if d != nil {
		if err := handler.Configure(d); err != nil {
			return nil, err
		}
	}
	return handler, nil
}

// HTTPAPIRequestReader builds requests from HTTP API events
type HTTPAPIRequestReader struct {
	accessor core.RequestAccessorV2
}

// NewHTTPAPIRequestReader creates a reader
func NewHTTPAPIRequestReader(cfg *Config) *HTTPAPIRequestReader {
	r := &HTTPAPIRequestReader{}
	r.accessor.StripBasePath(cfg.StripBasePath)
	return r
}

// ReadRequest implements container.RequestReader
func (r *HTTPAPIRequestReader) ReadRequest(ctx context.Context, event events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	if event.RequestContext.HTTP.Method == "" {
		return nil, fmt.Errorf("%w: missing http method", container.ErrMalformedInput)
	}

	req, err := r.accessor.EventToRequestWithContext(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", container.ErrMalformedInput, err)
	}
	useHostHeader(req)

	return req, nil
}

// HTTPAPIResponseWriter renders container responses as HTTP API responses
type HTTPAPIResponseWriter struct {
	binaryTypes map[string]bool
}

// NewHTTPAPIResponseWriter creates a writer
func NewHTTPAPIResponseWriter(cfg *Config) *HTTPAPIResponseWriter {
	return &HTTPAPIResponseWriter{binaryTypes: binaryTypeSet(cfg.BinaryContentTypes)}
}

// WriteResponse implements container.ResponseWriter
func (w *HTTPAPIResponseWriter) WriteResponse(ctx context.Context, resp *container.Response) (events.APIGatewayV2HTTPResponse, error) {
	header := resp.HeaderSnapshot()
	body, encoded := encodeBody(header, resp.Body(), w.binaryTypes)

	out := events.APIGatewayV2HTTPResponse{
		StatusCode:      resp.StatusCode(),
		Headers:         make(map[string]string, len(header)),
		Body:            body,
		IsBase64Encoded: encoded,
	}

	for k, values := range header {
		if k == "Set-Cookie" {
			out.Cookies = append(out.Cookies, values...)
			continue
		}
		out.Headers[k] = strings.Join(values, ",")
	}

	return out, nil
}

// HTTPAPISecurityContextWriter extracts identities from JWT, IAM or Lambda
// authorizer output, falling back to a verified bearer token
type HTTPAPISecurityContextWriter struct {
	tokens *BearerTokenVerifier
}

// NewHTTPAPISecurityContextWriter creates a security context writer
func NewHTTPAPISecurityContextWriter(cfg *Config) *HTTPAPISecurityContextWriter {
	return &HTTPAPISecurityContextWriter{tokens: NewBearerTokenVerifier(cfg.JWTSecret)}
}

// WriteSecurityContext implements container.SecurityContextWriter
func (s *HTTPAPISecurityContextWriter) WriteSecurityContext(ctx context.Context, event events.APIGatewayV2HTTPRequest) (*container.Identity, error) {
	identity := &container.Identity{
		SourceIP: event.RequestContext.HTTP.SourceIP,
	}

	if auth := event.RequestContext.Authorizer; auth != nil {
		switch {
		case auth.JWT != nil:
			claims := make(map[string]interface{}, len(auth.JWT.Claims))
			for k, v := range auth.JWT.Claims {
				claims[k] = v
			}
			identity.AuthType = "JWT"
			identity.Claims = claims
			identity.Principal = principalFromClaims(claims)
			return identity, nil

		case auth.IAM != nil:
			identity.AuthType = "AWS_IAM"
			identity.UserArn = auth.IAM.UserARN
			identity.Principal = auth.IAM.UserARN
			return identity, nil

		case len(auth.Lambda) > 0:
			identity.AuthType = "CUSTOM"
			identity.Claims = copyClaims(auth.Lambda)
			identity.Principal = principalFromClaims(identity.Claims)
			return identity, nil
		}
	}

	s.tokens.apply(identity, headerValue(event.Headers, "Authorization"))
	return identity, nil
}

// headerValue looks up a header in an HTTP API header map. API Gateway
// lowercases names but locally built events may not.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
