package aws

import (
	"bytes"
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectArchiver stores an immutable blob under a key.
type ObjectArchiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// S3Archiver writes objects into a single bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

func NewS3Archiver(cfg sdkaws.Config, bucket string) *S3Archiver {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// LocalStack does not serve virtual-hosted buckets
		o.UsePathStyle = Endpoint() != ""
	})
	return &S3Archiver{client: client, bucket: bucket}
}

func (a *S3Archiver) Archive(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      sdkaws.String(a.bucket),
		Key:         sdkaws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: sdkaws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s failed: %w", a.bucket, key, err)
	}
	return nil
}
