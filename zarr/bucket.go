package zarr

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// BucketStore keeps keys as objects in a gocloud bucket, so a store can live
// on s3, gcs, azure or in memory. Prefix the bucket with blob.PrefixedBucket
// to root the store below a path.
type BucketStore struct {
	ctx    context.Context
	bucket *blob.Bucket
}

var _ Store = (*BucketStore)(nil)

func NewBucketStore(ctx context.Context, bucket *blob.Bucket) *BucketStore {
	return &BucketStore{ctx: ctx, bucket: bucket}
}

func (s *BucketStore) Type() string { return BucketStoreType }

func (s *BucketStore) Get(key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(s.ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
		}
		return nil, err
	}
	return r, nil
}

func (s *BucketStore) Put(key string, val io.Reader) error {
	w, err := s.bucket.NewWriter(s.ctx, key, nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, val); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *BucketStore) Keys() ([]string, error) {
	var keys []string
	iter := s.bucket.List(nil)
	for {
		obj, err := iter.Next(s.ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !obj.IsDir {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

func (s *BucketStore) Clear() error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.bucket.Delete(s.ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return err
		}
	}
	return nil
}

func (s *BucketStore) Close() error { return s.bucket.Close() }

// IsURL reports whether location addresses a bucket rather than a local path
func IsURL(location string) bool {
	return strings.Contains(location, "://")
}

// OpenStore opens the store at location, either a local directory or a
// gocloud bucket URL such as "s3://bucket/path/out.zarr?region=eu-west-1".
// ModeRead and ModeReadWrite require the store to exist, ModeWrite removes
// any existing contents and ModeWriteFail refuses a non-empty store.
func OpenStore(ctx context.Context, location string, mode PersistenceMode) (Store, error) {
	var (
		store Store
		err   error
	)

	if u, perr := url.Parse(location); IsURL(location) && perr == nil && u.Scheme != "file" {
		prefix := strings.Trim(u.Path, "/")
		u.Path = ""
		bucket, err := blob.OpenBucket(ctx, u.String())
		if err != nil {
			return nil, err
		}
		if prefix != "" {
			bucket = blob.PrefixedBucket(bucket, prefix+"/")
		}
		store = NewBucketStore(ctx, bucket)
	} else {
		if IsURL(location) {
			location = strings.TrimPrefix(location, "file://")
		}
		if mode == ModeRead || mode == ModeReadWrite {
			if _, err := os.Stat(location); err != nil {
				return nil, fmt.Errorf("%w: store %s", ErrNotfound, location)
			}
		}
		if store, err = NewLocalStore(location); err != nil {
			return nil, err
		}
	}

	switch mode {
	case ModeWrite:
		err = store.Clear()
	case ModeWriteFail:
		var keys []string
		if keys, err = store.Keys(); err == nil && len(keys) > 0 {
			err = fmt.Errorf("store %s already exists", location)
		}
	case ModeRead, ModeReadWrite:
		if _, ok := store.(*BucketStore); ok {
			var keys []string
			if keys, err = store.Keys(); err == nil && len(keys) == 0 {
				err = fmt.Errorf("%w: store %s", ErrNotfound, location)
			}
		}
	}
	if err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
