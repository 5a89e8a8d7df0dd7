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

// APIGatewayHandler bridges API Gateway REST (v1 payload) events
type APIGatewayHandler = container.Handler[events.APIGatewayProxyRequest, events.APIGatewayProxyResponse]

// NewAPIGatewayHandler creates a bridge for REST API proxy integrations and
// configures it with the given descriptor
func NewAPIGatewayHandler(d container.Descriptor, cfg *Config) (*APIGatewayHandler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	handler, err := container.NewHandler(container.HandlerConfig[events.APIGatewayProxyRequest, events.APIGatewayProxyResponse]{
		Reader:          NewAPIGatewayRequestReader(cfg),
		Writer:          NewAPIGatewayResponseWriter(cfg),
		Security:        NewAPIGatewaySecurityContextWriter(cfg),
		Exceptions:      NewAPIGatewayExceptionHandler(),
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

// APIGatewayRequestReader builds requests from REST API proxy events
type APIGatewayRequestReader struct {
	accessor core.RequestAccessor
}

// NewAPIGatewayRequestReader creates a reader
func NewAPIGatewayRequestReader(cfg *Config) *APIGatewayRequestReader {
	r := &APIGatewayRequestReader{}
	r.accessor.StripBasePath(cfg.StripBasePath)
	return r
}

// ReadRequest implements container.RequestReader
func (r *APIGatewayRequestReader) ReadRequest(ctx context.Context, event events.APIGatewayProxyRequest) (*http.Request, error) {
	if event.HTTPMethod == "" {
		return nil, fmt.Errorf("%w: missing http method", container.ErrMalformedInput)
	}

	req, err := r.accessor.EventToRequestWithContext(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", container.ErrMalformedInput, err)
	}
	if req.RemoteAddr == "" {
		req.RemoteAddr = event.RequestContext.Identity.SourceIP
	}
	useHostHeader(req)

	return req, nil
}

// APIGatewayResponseWriter renders container responses as proxy responses
type APIGatewayResponseWriter struct {
	binaryTypes map[string]bool
}

// NewAPIGatewayResponseWriter creates a writer
func NewAPIGatewayResponseWriter(cfg *Config) *APIGatewayResponseWriter {
	return &APIGatewayResponseWriter{binaryTypes: binaryTypeSet(cfg.BinaryContentTypes)}
}

// WriteResponse implements container.ResponseWriter
func (w *APIGatewayResponseWriter) WriteResponse(ctx context.Context, resp *container.Response) (events.APIGatewayProxyResponse, error) {
	header := resp.HeaderSnapshot()
	body, encoded := encodeBody(header, resp.Body(), w.binaryTypes)

	out := events.APIGatewayProxyResponse{
		StatusCode:        resp.StatusCode(),
		MultiValueHeaders: map[string][]string(header),
		Body:              body,
		IsBase64Encoded:   encoded,
	}
	return out, nil
}

// APIGatewaySecurityContextWriter extracts identities from authorizer output,
// IAM and Cognito identity data, or a verified bearer token
type APIGatewaySecurityContextWriter struct {
	tokens *BearerTokenVerifier
}

// NewAPIGatewaySecurityContextWriter creates a security context writer
func NewAPIGatewaySecurityContextWriter(cfg *Config) *APIGatewaySecurityContextWriter {
	return &APIGatewaySecurityContextWriter{tokens: NewBearerTokenVerifier(cfg.JWTSecret)}
}

// WriteSecurityContext implements container.SecurityContextWriter
func (s *APIGatewaySecurityContextWriter) WriteSecurityContext(ctx context.Context, event events.APIGatewayProxyRequest) (*container.Identity, error) {
	rc := event.RequestContext
	identity := &container.Identity{
		SourceIP:          rc.Identity.SourceIP,
		UserArn:           rc.Identity.UserArn,
		CognitoIdentityID: rc.Identity.CognitoIdentityID,
		CognitoPoolID:     rc.Identity.CognitoIdentityPoolID,
	}

	if claims, ok := rc.Authorizer["claims"].(map[string]interface{}); ok {
		identity.AuthType = "COGNITO_USER_POOLS"
		identity.Claims = claims
		identity.Principal = principalFromClaims(claims)
		return identity, nil
	}

	if principal, ok := rc.Authorizer["principalId"].(string); ok && principal != "" {
		identity.AuthType = "CUSTOM"
		identity.Principal = principal
		identity.Claims = copyClaims(rc.Authorizer)
		return identity, nil
	}

	if rc.Identity.CognitoIdentityID != "" {
		identity.AuthType = "COGNITO_IDENTITY"
		identity.Principal = rc.Identity.CognitoIdentityID
		return identity, nil
	}

	if rc.Identity.UserArn != "" {
		identity.AuthType = "AWS_IAM"
		identity.Principal = rc.Identity.UserArn
		return identity, nil
	}

	s.tokens.apply(identity, restHeader(event, "Authorization"))
	return identity, nil
}

// principalFromClaims picks the most specific user name in a claim set
func principalFromClaims(claims map[string]interface{}) string {
	for _, key := range []string{"cognito:username", "username", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// restHeader reads a header the way the request accessor does: the
// multi-value map wins when present
func restHeader(event events.APIGatewayProxyRequest, name string) string {
	if event.MultiValueHeaders != nil {
		for k, values := range event.MultiValueHeaders {
			if strings.EqualFold(k, name) && len(values) > 0 {
				return values[0]
			}
		}
		return ""
	}
	return headerValue(event.Headers, name)
}

func copyClaims(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
