// Package sns implements the push gateway on AWS SNS mobile push. Devices
// are bound to SNS platform endpoints and payloads are published directly
// to the endpoint ARN using the "json" message structure.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// SNSClient defines the subset of the SNS API the gateway uses. It allows
// mocking for unit tests; *awssns.Client satisfies it.
type SNSClient interface {
	CreatePlatformApplication(ctx context.Context, in *awssns.CreatePlatformApplicationInput, optFns ...func(*awssns.Options)) (*awssns.CreatePlatformApplicationOutput, error)
	CreatePlatformEndpoint(ctx context.Context, in *awssns.CreatePlatformEndpointInput, optFns ...func(*awssns.Options)) (*awssns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, in *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
	DeleteEndpoint(ctx context.Context, in *awssns.DeleteEndpointInput, optFns ...func(*awssns.Options)) (*awssns.DeleteEndpointOutput, error)
	DeletePlatformApplication(ctx context.Context, in *awssns.DeletePlatformApplicationInput, optFns ...func(*awssns.Options)) (*awssns.DeletePlatformApplicationOutput, error)
}

type Gateway struct {
	client SNSClient
	logger *slog.Logger
}

// NewClient builds a real SNS client. An explicit key pair takes precedence
// over the ambient AWS credential chain.
func NewClient(ctx context.Context, region, accessKeyID, secretAccessKey string) (*awssns.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awssns.NewFromConfig(cfg), nil
}

func NewGateway(client SNSClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With("component", "SNSGateway"),
	}
}

func (g *Gateway) CreatePlatformApplication(ctx context.Context, platform push.Platform, principal, credential, applicationName string) (push.PlatformApplication, error) {
	attributes := map[string]string{"PlatformCredential": credential}
	if principal != "" {
		attributes["PlatformPrincipal"] = principal
	}

	out, err := g.client.CreatePlatformApplication(ctx, &awssns.CreatePlatformApplicationInput{
		Name:       aws.String(applicationName),
		Platform:   aws.String(string(platform)),
		Attributes: attributes,
	})
	if err != nil {
		return push.PlatformApplication{}, g.wrap("CreatePlatformApplication", platform, "", "", err)
	}

	app := push.PlatformApplication{Platform: platform, Handle: aws.ToString(out.PlatformApplicationArn)}
	g.logger.Debug("Created platform application", "platform", platform, "arn", app.Handle)
	return app, nil
}

func (g *Gateway) CreateEndpoint(ctx context.Context, app push.PlatformApplication, device push.DeviceIdentity, label string) (push.EndpointIdentity, error) {
	out, err := g.client.CreatePlatformEndpoint(ctx, &awssns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(app.Handle),
		Token:                  aws.String(string(device)),
		CustomUserData:         aws.String(label),
	})
	if err != nil {
		return "", g.wrap("CreateEndpoint", app.Platform, "", device, err)
	}
	return push.EndpointIdentity(aws.ToString(out.EndpointArn)), nil
}

func (g *Gateway) Send(ctx context.Context, endpoint push.EndpointIdentity, payload string) error {
	message, err := wrapPayload(endpoint, payload)
	if err != nil {
		return err
	}

	// Direct publish to a mobile endpoint; no topic involved.
	_, err = g.client.Publish(ctx, &awssns.PublishInput{
		TargetArn:        aws.String(string(endpoint)),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		var disabled *types.EndpointDisabledException
		var notFound *types.NotFoundException
		if errors.As(err, &disabled) || errors.As(err, &notFound) {
			err = fmt.Errorf("%w: %w", push.ErrEndpointDisabled, err)
		}
		return g.wrap("Send", platformFromEndpoint(endpoint), endpoint, "", err)
	}
	return nil
}

func (g *Gateway) DeleteEndpoint(ctx context.Context, endpoint push.EndpointIdentity) error {
	_, err := g.client.DeleteEndpoint(ctx, &awssns.DeleteEndpointInput{
		EndpointArn: aws.String(string(endpoint)),
	})
	if err != nil && !isNotFound(err) {
		return g.wrap("DeleteEndpoint", platformFromEndpoint(endpoint), endpoint, "", err)
	}
	return nil
}

func (g *Gateway) DeletePlatformApplication(ctx context.Context, app push.PlatformApplication) error {
	_, err := g.client.DeletePlatformApplication(ctx, &awssns.DeletePlatformApplicationInput{
		PlatformApplicationArn: aws.String(app.Handle),
	})
	if err != nil && !isNotFound(err) {
		return g.wrap("DeletePlatformApplication", app.Platform, "", "", err)
	}
	return nil
}

// wrapPayload nests the encoded payload under the platform's key, the
// structure SNS expects for MessageStructure=json.
func wrapPayload(endpoint push.EndpointIdentity, payload string) (string, error) {
	envelope := map[string]string{"default": ""}
	if platform := platformFromEndpoint(endpoint); platform != "" {
		envelope[string(platform)] = payload
	} else {
		envelope["default"] = payload
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("wrap payload: %w", err)
	}
	return string(b), nil
}

// platformFromEndpoint recovers the platform from an endpoint ARN, which
// has the shape arn:aws:sns:region:account:endpoint/PLATFORM/app/uuid.
func platformFromEndpoint(endpoint push.EndpointIdentity) push.Platform {
	parts := strings.Split(string(endpoint), "/")
	if len(parts) < 2 {
		return ""
	}
	platform, err := push.ParsePlatform(parts[1])
	if err != nil {
		return ""
	}
	return platform
}

func isNotFound(err error) bool {
	var notFound *types.NotFoundException
	return errors.As(err, &notFound)
}

// wrap builds the ProviderError, classifying the origin: an error the SNS
// service returned is a service failure, anything else is transport.
func (g *Gateway) wrap(op string, platform push.Platform, endpoint push.EndpointIdentity, device push.DeviceIdentity, err error) *push.ProviderError {
	origin := push.OriginClient
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		origin = push.OriginService
	}
	return &push.ProviderError{
		Op:       op,
		Origin:   origin,
		Platform: platform,
		Endpoint: endpoint,
		Device:   device,
		Err:      err,
	}
}
