package ard

import (
	"fmt"
	"strings"
)

// Target is where ClipExport writes its result: an ArrayStore or a Tabular
// file
type Target interface {
	Location() string
	target()
}

// ArrayStore is a consolidated Zarr store, local or a bucket URL
type ArrayStore struct {
	Path string
}

func (t ArrayStore) Location() string { return t.Path }
func (ArrayStore) target()            {}

// Tabular is a local Parquet file
type Tabular struct {
	Path string
}

func (t Tabular) Location() string { return t.Path }
func (Tabular) target()            {}

// ParseTarget picks a target by the path's suffix: "zarr" for an
// ArrayStore and "parquet" for Tabular
func ParseTarget(path string) (Target, error) {
	p := strings.ToLower(strings.TrimRight(path, "/"))
	switch {
	case strings.HasSuffix(p, "zarr"):
		return ArrayStore{Path: path}, nil
	case strings.HasSuffix(p, "parquet"):
		return Tabular{Path: path}, nil
	}
	return nil, fmt.Errorf("%w: %q, want a path ending in zarr or parquet", ErrUnknownTarget, path)
}
