package backtest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Uploader mirrors persisted run artifacts into an S3 bucket under the
// results/ prefix.
type S3Uploader struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// NewS3Uploader creates an uploader using the ambient AWS credential chain.
func NewS3Uploader(ctx context.Context, bucket string, log zerolog.Logger) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		log:    log.With().Str("component", "s3_uploader").Logger(),
	}, nil
}

// Upload writes one object.
func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	objectKey := "results/" + key
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}
	u.log.Debug().Str("key", objectKey).Int("bytes", len(body)).Msg("Uploaded artifact")
	return nil
}
