package tiles

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/jobrunner/regiond/internal/domain"
)

// BucketSource fetches tiles from a Go CDK bucket URL such as
// file:///var/tiles or mem://.
type BucketSource struct {
	bucket *blob.Bucket
	url    string
}

// OpenBucketSource opens the bucket at url. Keys are read below prefix.
func OpenBucketSource(ctx context.Context, url, prefix string) (*BucketSource, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", url, err)
	}
	return NewBucketSource(bucket, url, prefix), nil
}

// NewBucketSource wraps an open bucket.
func NewBucketSource(bucket *blob.Bucket, url, prefix string) *BucketSource {
	if p := strings.Trim(prefix, "/"); p != "" {
		bucket = blob.PrefixedBucket(bucket, p+"/")
	}
	return &BucketSource{bucket: bucket, url: url}
}

// Fetch reads the object stored under key.
func (s *BucketSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, cleanKey(key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrTileNotFound, key)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Name returns the source name.
func (s *BucketSource) Name() string {
	return "bucket:" + s.url
}

// Close releases the bucket.
func (s *BucketSource) Close() error {
	return s.bucket.Close()
}
