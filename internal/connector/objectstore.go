package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// openObject fetches the object named by read_config.file_name and parses it
// like a local file.
func openObject(ctx context.Context, ds *core.Dataset, deps Deps) (Reader, error) {
	if deps.S3 == nil {
		return nil, errors.New("no object store client configured")
	}
	bucket := ds.Source.ConfigString("bucket")
	if bucket == "" {
		bucket = deps.Bucket
	}
	key := ds.Source.ConfigString("file_name")
	if bucket == "" || key == "" {
		return nil, errors.New("bucket and file_name are required")
	}

	out, err := deps.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	deps.logger().Info("object store source opened",
		"bucket", bucket,
		"key", key,
		"size", aws.Int64Value(out.ContentLength),
	)
	return &readCloserRows{body: out.Body, format: formatOf(ds, key), ds: ds}, nil
}
