package zarr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
	// MTGroup is the key for storing group definitions on an array store
	MTGroup MetaType = ".zgroup"
	// MTMetadata is the key for composite metadata
	MTMetadata MetaType = ".zmetadata"
)

// ConsolidatedFormat is the zarr_consolidated_format this package writes
const ConsolidatedFormat = 1

type MetaTyper interface {
	MetaType() MetaType
}

var metaTypes = map[MetaType]struct{}{
	MTAttributes: {},
	MTArray:      {},
	MTGroup:      {},
}

// KeyMetaType reports the metadata document stored under a key. It relies on
// all per-node metadata key names being 7 characters long.
func KeyMetaType(s string) (mt MetaType, ok bool) {
	if len(s) < 7 {
		return mt, false
	}
	mt = MetaType(s[len(s)-7:])
	if _, ok = metaTypes[mt]; !ok {
		return mt, false
	}
	// ".zattrs" matches, "foo.zattrs" does not
	rest := s[:len(s)-7]
	return mt, rest == "" || strings.HasSuffix(rest, "/")
}

type Attributes map[string]interface{}

func (Attributes) MetaType() MetaType { return MTAttributes }

// Arrays can be organized into groups which can also contain other groups.
// A group exists at logical path "foo/bar" if the "foo/bar/.zgroup" key
// exists in the store.
type Group struct {
	ZarrFormat int `json:"zarr_format"`
}

func (Group) MetaType() MetaType { return MTGroup }

// ConsolidatedMetadata gathers every metadata document of a store under a
// single ".zmetadata" key so readers can open the store with one request
type ConsolidatedMetadata struct {
	ConsolidatedFormat int                  `json:"zarr_consolidated_format"`
	Metadata           map[string]MetaTyper `json:"metadata"`
}

type consolidatedMetaDecoder struct {
	ConsolidatedFormat int                        `json:"zarr_consolidated_format"`
	Metadata           map[string]json.RawMessage `json:"metadata"`
}

func (m *ConsolidatedMetadata) UnmarshalJSON(d []byte) error {
	cd := consolidatedMetaDecoder{}
	if err := json.Unmarshal(d, &cd); err != nil {
		return err
	}
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: cd.ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}

	for key, data := range cd.Metadata {
		kt, ok := KeyMetaType(key)
		if !ok {
			return fmt.Errorf("invalid consolidated metadata key: %q", key)
		}

		switch kt {
		case MTArray:
			arr := &ArrayMeta{}
			if err := json.Unmarshal(data, arr); err != nil {
				return fmt.Errorf("reading %q metadata: %w", key, err)
			}
			cm.Metadata[key] = arr
		case MTAttributes:
			attr := Attributes{}
			if err := json.Unmarshal(data, &attr); err != nil {
				return fmt.Errorf("reading %q attributes: %w", key, err)
			}
			cm.Metadata[key] = attr
		case MTGroup:
			grp := Group{}
			if err := json.Unmarshal(data, &grp); err != nil {
				return fmt.Errorf("reading %q group: %w", key, err)
			}
			cm.Metadata[key] = grp
		}
	}

	*m = cm
	return nil
}

// Arrays returns the paths of every array named in the metadata, sorted
func (m *ConsolidatedMetadata) Arrays() []string {
	var paths []string
	for key, mt := range m.Metadata {
		if mt.MetaType() == MTArray {
			paths = append(paths, strings.TrimSuffix(strings.TrimSuffix(key, string(MTArray)), "/"))
		}
	}
	sort.Strings(paths)
	return paths
}

// ConsolidateMetadata reads every metadata document in the store and writes
// them together under the ".zmetadata" key
func ConsolidateMetadata(store Store) (*ConsolidatedMetadata, error) {
	keys, err := store.Keys()
	if err != nil {
		return nil, err
	}

	docs := map[string]json.RawMessage{}
	for _, key := range keys {
		if _, ok := KeyMetaType(key); !ok {
			continue
		}
		var raw json.RawMessage
		if err := getJSON(store, key, &raw); err != nil {
			return nil, err
		}
		docs[key] = raw
	}

	data, err := json.Marshal(consolidatedMetaDecoder{
		ConsolidatedFormat: ConsolidatedFormat,
		Metadata:           docs,
	})
	if err != nil {
		return nil, err
	}

	cm := &ConsolidatedMetadata{}
	if err := json.Unmarshal(data, cm); err != nil {
		return nil, err
	}
	if err := store.Put(string(MTMetadata), bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return cm, nil
}

// ReadConsolidatedMetadata loads the ".zmetadata" document of a store
func ReadConsolidatedMetadata(store Store) (*ConsolidatedMetadata, error) {
	cm := &ConsolidatedMetadata{}
	if err := getJSON(store, string(MTMetadata), cm); err != nil {
		return nil, err
	}
	return cm, nil
}

// Each array requires essential configuration metadata to be stored,
// enabling correct interpretation of the stored data.
// This metadata is encoded using JSON and stored as the value of the
// ".zarray" key within an array store.
type ArrayMeta struct {
	// version of the storage specification the array adheres to
	ZarrFormat int `json:"zarr_format"`
	// length of each dimension of the array
	Shape []int `json:"shape"`
	// length of each dimension of a chunk. All chunks of an array share this
	// shape, chunks at the array edge are padded with the fill value.
	Chunks []int `json:"chunks"`
	// A string or list defining a valid data type for the array.
	Dtype StructuredType `json:"dtype"`
	// primary compression codec, or null if chunks are stored raw
	Compressor *CompressionMeta `json:"compressor"`
	// A scalar value providing the default value to use for uninitialized
	// portions of the array, or null if no fill_value is to be used.
	// Floating point arrays may use the strings "NaN", "Infinity" and
	// "-Infinity".
	FillValue interface{} `json:"fill_value"`
	// Either "C" or "F", defining the layout of bytes within each chunk of the
	// array. Only "C" (row-major) is supported.
	Order string `json:"order"`
	// codec configurations applied before compression, or null
	Filters []Filter `json:"filters"`

	// If present, either "." or "/", the separator placed between the
	// dimensions of a chunk key. Defaults to ".".
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

func (a ArrayMeta) MetaType() MetaType { return MTArray }

// Validate checks the metadata describes an array this package can read
func (a *ArrayMeta) Validate() error {
	if a.ZarrFormat != Version {
		return fmt.Errorf("unsupported zarr_format %d", a.ZarrFormat)
	}
	if len(a.Chunks) != len(a.Shape) {
		return fmt.Errorf("chunks %v do not match shape %v", a.Chunks, a.Shape)
	}
	for _, c := range a.Chunks {
		if c < 1 {
			return fmt.Errorf("invalid chunk shape %v", a.Chunks)
		}
	}
	if a.Order != "" && a.Order != "C" {
		return fmt.Errorf("unsupported order %q", a.Order)
	}
	if !a.Dtype.IsBasic() {
		return fmt.Errorf("structured dtypes are not supported")
	}
	if len(a.Filters) > 0 {
		return fmt.Errorf("%w: filter %q", ErrUnsupportedCodec, a.Filters[0].ID)
	}
	if a.Compressor != nil && a.Compressor.ID == CodecBlosc {
		return fmt.Errorf("%w: %q; rewrite the store with zstd, zlib, gzip or lz4", ErrUnsupportedCodec, CodecBlosc)
	}
	return nil
}

func (a *ArrayMeta) separator() string {
	if a.DimensionSeparator == "" {
		return "."
	}
	return a.DimensionSeparator
}

type Filter struct {
	ID     string `json:"id"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)

func getJSON(store Store, key string, v interface{}) error {
	rc, err := store.Get(key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func putJSON(store Store, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return store.Put(key, bytes.NewReader(data))
}
