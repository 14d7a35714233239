package awsconfig

import (
	"context"
	"errors"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

type Options struct {
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint points every service at one local emulator when set.
	Endpoint string
}

// Load builds the shared aws.Config used by the DynamoDB, SNS, SQS and S3
// clients.
func Load(ctx context.Context, o Options) (aws.Config, error) {
	if o.Region == "" {
		return aws.Config{}, errors.New("aws region is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(o.Region))

	if o.AccessKey != "" && o.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	}

	if o.Endpoint != "" {
		endpoint := o.Endpoint
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.String()
		}
		opts = append(opts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: endpoint, SigningRegion: o.Region, HostnameImmutable: true}, nil
			}),
		))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}
