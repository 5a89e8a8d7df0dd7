package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"serverless-container/internal/config"
	"serverless-container/internal/handlers"
	"serverless-container/internal/middleware"
	"serverless-container/pkg/lambda"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type invokeOptions struct {
	format   string
	timeout  time.Duration
	subject  string
	username string
	roles    []string
	secret   string
}

var opts invokeOptions

// rootCmd runs one API Gateway event through the sample application
var rootCmd = &cobra.Command{
	Use:   "invoke [event.json]",
	Short: "Invoke the application with an API Gateway event",
	Long: "Loads configuration, bootstraps the sample application inside the container and " +
		"proxies one API Gateway event read from a file or stdin. The proxy response is printed as JSON.",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readEvent(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger := config.NewLogger(cfg.Log)
		logger.SetOutput(cmd.ErrOrStderr())

		err = runInvoke(cmd.Context(), cfg, logger, opts, payload, cmd.OutOrStdout())
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "invocation failed: %v\n", err)
		}
		return err
	},
}

func init() {
	gin.SetMode(gin.ReleaseMode)

	rootCmd.Flags().StringVarP(&opts.format, "format", "f", "", "event format, rest or http (defaults to CONTAINER_EVENT_FORMAT)")
	rootCmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 30*time.Second, "simulated remaining execution time")
	rootCmd.Flags().StringVar(&opts.subject, "token-subject", "", "mint a bearer token for this subject")
	rootCmd.Flags().StringVar(&opts.username, "token-username", "", "username claim of the minted token")
	rootCmd.Flags().StringSliceVar(&opts.roles, "roles", nil, "roles claim of the minted token")
	rootCmd.Flags().StringVar(&opts.secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
}

func readEvent(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		payload, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read event from stdin: %w", err)
		}
		return payload, nil
	}

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}
	return payload, nil
}

func runInvoke(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts invokeOptions, payload []byte, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.format != "" {
		cfg.Container.EventFormat = strings.ToLower(opts.format)
	}
	if opts.secret != "" {
		cfg.Auth.JWTSecret = opts.secret
	}

	if opts.subject != "" {
		username := opts.username
		if username == "" {
			username = opts.subject
		}
		token, err := middleware.NewTokenIssuer(cfg.Auth.JWTSecret, time.Hour).GenerateToken(opts.subject, username, opts.roles)
		if err != nil {
			return fmt.Errorf("failed to mint token: %w", err)
		}
		if payload, err = withAuthorization(payload, "Bearer "+token); err != nil {
			return err
		}
	}

	manager := lambda.NewHandlerManager()
	descriptor := handlers.NewDescriptor(&handlers.RouterConfig{Config: cfg, Logger: logger})
	if err := manager.Initialize(cfg, logger, descriptor); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	ctx = lambdacontext.NewContext(ctx, &lambdacontext.LambdaContext{
		AwsRequestID:       uuid.New().String(),
		InvokedFunctionArn: "arn:aws:lambda:local:000000000000:function:invoke",
	})

	result, invokeErr := manager.InvokeJSON(ctx, payload)
	if len(result) > 0 {
		fmt.Fprintln(out, string(result))
	}
	return invokeErr
}

// withAuthorization sets the Authorization header of a raw event
func withAuthorization(payload []byte, value string) ([]byte, error) {
	var event map[string]interface{}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	headers, _ := event["headers"].(map[string]interface{})
	if headers == nil {
		headers = make(map[string]interface{})
	}
	for name := range headers {
		if strings.EqualFold(name, "authorization") {
			delete(headers, name)
		}
	}
	headers["Authorization"] = value
	event["headers"] = headers

	// REST events may also carry the multi-value form, which takes precedence
	if multi, ok := event["multiValueHeaders"].(map[string]interface{}); ok {
		for name := range multi {
			if strings.EqualFold(name, "authorization") {
				delete(multi, name)
			}
		}
		multi["Authorization"] = []interface{}{value}
	}

	return json.Marshal(event)
}
