package zarr

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotfound) {
		t.Errorf("%s: expected ErrNotfound, got %v", s.Type(), err)
	}

	if err := s.Put("a/.zarray", strings.NewReader("{}")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("a/0.0", bytes.NewReader([]byte{1, 2, 3})); err != nil {
		t.Fatal(err)
	}

	rc, err := s.Get("a/0.0")
	if err != nil {
		t.Fatal(err)
	}
	data, err := ioutil.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("%s: value mismatch. got %v", s.Type(), data)
	}

	keys, err := s.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(keys, ",") != "a/.zarray,a/0.0" {
		t.Errorf("%s: keys mismatch. got %v", s.Type(), keys)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if keys, _ := s.Keys(); len(keys) != 0 {
		t.Errorf("%s: expected no keys after clear, got %v", s.Type(), keys)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "out.zarr"))
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
}

func TestBucketStore(t *testing.T) {
	ctx := context.Background()
	b := blob.PrefixedBucket(memblob.OpenBucket(nil), "out.zarr/")
	s := NewBucketStore(ctx, b)
	defer s.Close()
	testStore(t, s)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store.zarr")

	if _, err := OpenStore(ctx, dir, ModeRead); !errors.Is(err, ErrNotfound) {
		t.Errorf("expected ErrNotfound opening a missing store, got %v", err)
	}

	s, err := OpenStore(ctx, dir, ModeWrite)
	if err != nil {
		t.Fatal(err)
	}
	if s.Type() != LocalStoreType {
		t.Errorf("expected a local store, got %s", s.Type())
	}
	if err := s.Put("stale", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenStore(ctx, dir, ModeWriteFail); err == nil {
		t.Error("expected ModeWriteFail to refuse an existing store")
	}

	s, err = OpenStore(ctx, "file://"+dir, ModeWrite)
	if err != nil {
		t.Fatal(err)
	}
	if keys, _ := s.Keys(); len(keys) != 0 {
		t.Errorf("expected ModeWrite to clear the store, got %v", keys)
	}

	s, err = OpenStore(ctx, "mem://bucket/path/out.zarr", ModeWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Type() != BucketStoreType {
		t.Errorf("expected a bucket store, got %s", s.Type())
	}
}

func TestBucketSchemes(t *testing.T) {
	for _, scheme := range []string{"s3", "gs", "azblob", "mem"} {
		if !blob.DefaultURLMux().ValidBucketScheme(scheme) {
			t.Errorf("no bucket driver registered for %s://", scheme)
		}
	}
}
