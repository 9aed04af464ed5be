package lode

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Scheme prefixes storage targets that live in S3.
const S3Scheme = "s3://"

// S3Options carries the S3 settings that do not fit in a target string.
// Endpoint and UsePathStyle exist for S3-compatible servers such as MinIO.
type S3Options struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3Config locates a bucket and key prefix.
type S3Config struct {
	Bucket string
	Prefix string
	S3Options
}

// Validate rejects a config with no bucket.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 target has no bucket")
	}
	return nil
}

// newS3Factory resolves credentials through the SDK's default chain once
// and hands every store the same client.
func newS3Factory(ctx context.Context, c S3Config) (lode.StoreFactory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var load []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		load = append(load, awsconfig.WithRegion(c.Region))
	}
	aws, err := awsconfig.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("aws config: %w", err), S3Scheme+c.Bucket)
	}

	client := s3.NewFromConfig(aws, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = &c.Endpoint
		}
		o.UsePathStyle = c.UsePathStyle
	})
	layout := lodes3.Config{Bucket: c.Bucket, Prefix: c.Prefix}
	return func() (lode.Store, error) {
		return lodes3.New(client, layout)
	}, nil
}
