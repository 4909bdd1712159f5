package store

import (
	"context"
	"fmt"
	"path/filepath"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// blobDocument stores the document as one object in a blob bucket. The
// file backend opens a fileblob bucket over the document's directory, so
// the same code path serves local files, tests (memblob), and any bucket
// a future backend opens by URL
type blobDocument struct {
	bucket *blob.Bucket
	key    string
}

func newBlobDocument(path string) (*blobDocument, error) {
	dir := filepath.Dir(path)
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dir, err)
	}
	return &blobDocument{
		bucket: bucket,
		key:    filepath.Base(path),
	}, nil
}

// NewBlobDocument wraps an already-open bucket. Used by tests to back a
// store with memblob
func NewBlobDocument(bucket *blob.Bucket, key string) Document {
	return &blobDocument{bucket: bucket, key: key}
}

func (d *blobDocument) Load(ctx context.Context) ([]byte, error) {
	data, err := d.bucket.ReadAll(ctx, d.key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.key, err)
	}
	return data, nil
}

func (d *blobDocument) Save(ctx context.Context, data []byte) error {
	if err := d.bucket.WriteAll(ctx, d.key, data, nil); err != nil {
		return fmt.Errorf("failed to write %s: %w", d.key, err)
	}
	return nil
}

func (d *blobDocument) Close() error {
	return d.bucket.Close()
}
