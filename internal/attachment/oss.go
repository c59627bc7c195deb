package attachment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// OSSOptions configures the object storage sink.
type OSSOptions struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	PublicBase      string
}

// Configured reports whether every credential is present.
func (o OSSOptions) Configured() bool {
	return o.Endpoint != "" && o.AccessKeyID != "" && o.AccessKeySecret != "" && o.Bucket != ""
}

// OSSSink stores uploads in an Alibaba Cloud OSS bucket.
type OSSSink struct {
	bucket     *oss.Bucket
	publicBase string
}

// NewOSSSink dials the bucket.
func NewOSSSink(opts OSSOptions) (*OSSSink, error) {
	if !opts.Configured() {
		return nil, errors.New("attachment: oss credentials incomplete")
	}
	client, err := oss.New(opts.Endpoint, opts.AccessKeyID, opts.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bucket, err := client.Bucket(opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("oss bucket %s: %w", opts.Bucket, err)
	}
	base := strings.TrimRight(opts.PublicBase, "/")
	if base == "" {
		endpoint := strings.TrimPrefix(strings.TrimPrefix(opts.Endpoint, "https://"), "http://")
		base = "https://" + opts.Bucket + "." + endpoint
	}
	return &OSSSink{bucket: bucket, publicBase: base}, nil
}

// Name implements Sink.
func (s *OSSSink) Name() string { return "oss" }

// Save implements Sink.
func (s *OSSSink) Save(ctx context.Context, folder string, up Upload) (string, error) {
	key := objectKey(folder, up)
	err := s.bucket.PutObject(key, up.Reader(),
		oss.WithContext(ctx),
		oss.ContentType(up.ContentType),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	)
	if err != nil {
		return "", fmt.Errorf("oss put %s: %w", key, err)
	}
	return s.publicBase + "/" + key, nil
}
