// Package s3client stores run reports in S3.
package s3client

import (
	"context"
	"io"
)

// Client is the subset of S3 the report upload needs.
type Client interface {
	PutObject(ctx context.Context, req *PutObjectRequest) error
}

type PutObjectRequest struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
}
