package housekeeping

import (
	"context"
	"encoding/json"
	"errors"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/kode4food/beckn/pkg/api"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Archive keeps evicted transaction records in a gocloud.dev/blob bucket,
// so any registered scheme (mem://, file://, s3://, gs://, azblob://)
// can back it
type Archive struct {
	bucket *blob.Bucket
	prefix string
}

const recordSuffix = ".json"

var ErrNotArchived = errors.New("transaction not archived")

// OpenArchive opens the bucket at bucketURL. Keys are written under prefix
func OpenArchive(
	ctx context.Context, bucketURL, prefix string,
) (*Archive, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return NewArchive(bucket, prefix), nil
}

// NewArchive wraps an already opened bucket
func NewArchive(bucket *blob.Bucket, prefix string) *Archive {
	return &Archive{bucket: bucket, prefix: prefix}
}

// Put writes the record, replacing any earlier copy
func (a *Archive) Put(ctx context.Context, tx *api.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, a.keyFor(tx.ID), data, nil)
}

// Get reads an archived record, or returns ErrNotArchived
func (a *Archive) Get(
	ctx context.Context, id api.TransactionID,
) (*api.Transaction, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotArchived
		}
		return nil, err
	}

	var tx api.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Close releases the bucket
func (a *Archive) Close() error {
	return a.bucket.Close()
}

func (a *Archive) keyFor(id api.TransactionID) string {
	return a.prefix + string(id) + recordSuffix
}
