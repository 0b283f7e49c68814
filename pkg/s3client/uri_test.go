package s3client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{name: "bucket only", uri: "s3://audit", wantBucket: "audit"},
		{name: "bucket with slash", uri: "s3://audit/", wantBucket: "audit"},
		{name: "prefix", uri: "s3://audit/releases/", wantBucket: "audit", wantKey: "releases/"},
		{name: "object key", uri: "s3://audit/releases/demo.json", wantBucket: "audit", wantKey: "releases/demo.json"},
		{name: "wrong scheme", uri: "https://audit/releases", wantErr: true},
		{name: "missing bucket", uri: "s3:///releases", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "demo.json", ObjectKey("", "demo.json"))
	assert.Equal(t, "releases/demo.json", ObjectKey("releases/", "demo.json"))
	assert.Equal(t, "fixed.json", ObjectKey("fixed.json", "demo.json"))
}
