package s3client

import (
	"fmt"
	"strings"
)

// ParseS3URI splits s3://bucket/key into bucket and key. A key ending in a
// slash (or an empty key) denotes a prefix.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URI %q: must start with s3://", uri)
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing bucket name", uri)
	}
	return bucket, key, nil
}

// ObjectKey returns key itself, or key joined with name when key is a prefix.
func ObjectKey(key, name string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key + name
	}
	return key
}
