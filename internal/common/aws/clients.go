// internal/common/aws/clients.go
package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SESService is the subset of the SES API used for decision emails.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the subset of the SNS API used for decision events.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// LoadConfig resolves credentials through the default chain for region.
func LoadConfig(ctx context.Context, region string) (sdkaws.Config, error) {
	return config.LoadDefaultConfig(ctx, config.WithRegion(region))
}

func NewSESClient(cfg sdkaws.Config) *ses.Client {
	return ses.NewFromConfig(cfg)
}

func NewSNSClient(cfg sdkaws.Config) *sns.Client {
	return sns.NewFromConfig(cfg)
}
