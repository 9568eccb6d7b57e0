package zarr

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
)

const (
	// Version is the zarr storage format version this package reads and
	// writes
	Version = 2
)

// Array is a chunked N-dimensional array stored under a path of a Store
type Array struct {
	path  Path
	store Store
	mode  PersistenceMode
	meta  *ArrayMeta
}

// WriteStats counts the chunks written by a write call
type WriteStats struct {
	Chunks int
	Bytes  int64
}

func (s *WriteStats) Add(o WriteStats) {
	s.Chunks += o.Chunks
	s.Bytes += o.Bytes
}

// Create writes array metadata at path, replacing any array already there
func Create(store Store, path string, m *ArrayMeta) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	if m.ZarrFormat == 0 {
		m.ZarrFormat = Version
	}
	if m.Order == "" {
		m.Order = "C"
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := putJSON(store, p.Join(string(MTArray)).String(), m); err != nil {
		return nil, err
	}
	return &Array{path: p, store: store, mode: ModeReadWrite, meta: m}, nil
}

// Open reads the metadata of the array at path
func Open(store Store, path string, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}

	a := &Array{
		path:  p,
		store: store,
		mode:  mode,
		meta:  &ArrayMeta{},
	}
	if err := getJSON(store, p.Join(string(MTArray)).String(), a.meta); err != nil {
		return nil, err
	}
	if err := a.meta.Validate(); err != nil {
		return nil, fmt.Errorf("array %q: %w", path, err)
	}
	return a, nil
}

func (a *Array) Info() string {
	return fmt.Sprintf("<zarr.Array %q shape=%v chunks=%v dtype=%s compressor=%s>",
		a.Path(), a.meta.Shape, a.meta.Chunks, a.meta.Dtype.Dtype, a.meta.Compressor)
}

func (a *Array) Path() string { return a.path.String() }

func (a *Array) Meta() *ArrayMeta { return a.meta }

// Size is the number of items in the array
func (a *Array) Size() int {
	n := 1
	for _, s := range a.meta.Shape {
		n *= s
	}
	return n
}

// Attributes reads the array's ".zattrs", which may be absent
func (a *Array) Attributes() (Attributes, error) {
	attrs := Attributes{}
	err := getJSON(a.store, a.path.Join(string(MTAttributes)).String(), &attrs)
	if errors.Is(err, ErrNotfound) {
		return attrs, nil
	}
	return attrs, err
}

func (a *Array) SetAttributes(attrs Attributes) error {
	if attrs == nil {
		attrs = Attributes{}
	}
	return putJSON(a.store, a.path.Join(string(MTAttributes)).String(), attrs)
}

// ReadFloat64 reads the whole array in C order. Missing chunks read as the
// fill value. Chunks are decoded one at a time straight into the result.
func (a *Array) ReadFloat64() ([]float64, error) {
	m := a.meta
	at, err := floatReader(m.Dtype.Dtype)
	if err != nil {
		return nil, err
	}
	item := m.Dtype.Dtype.ItemSize()
	out := make([]float64, a.Size())
	origin := make([]int, len(m.Chunks))
	err = a.eachChunk(func(data []byte, p chunkProjection) {
		eachRun(m.Shape, p.Offset, m.Chunks, origin, p.Extent, func(di, si, n int) {
			for k := 0; k < n; k++ {
				out[di+k] = at(data[(si+k)*item:])
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadStrings reads the whole array of a text dtype
func (a *Array) ReadStrings() ([]string, error) {
	m := a.meta
	item := m.Dtype.Dtype.ItemSize()
	raw := make([]byte, a.Size()*item)
	origin := make([]int, len(m.Chunks))
	err := a.eachChunk(func(data []byte, p chunkProjection) {
		copyBlock(raw, m.Shape, p.Offset, data, m.Chunks, origin, p.Extent, item)
	})
	if err != nil {
		return nil, err
	}
	return decodeStrings(m.Dtype.Dtype, raw)
}

// WriteFloat64 writes every chunk of the array from vals, given in C order.
// Each chunk is encoded on its own, so no second copy of vals is held.
func (a *Array) WriteFloat64(vals []float64) (WriteStats, error) {
	if len(vals) != a.Size() {
		return WriteStats{}, fmt.Errorf("writing %d values to array of size %d", len(vals), a.Size())
	}
	m := a.meta
	put, err := floatWriter(m.Dtype.Dtype)
	if err != nil {
		return WriteStats{}, err
	}
	item := m.Dtype.Dtype.ItemSize()
	origin := make([]int, len(m.Chunks))
	return a.writeChunks(func(chunk []byte, p chunkProjection) {
		eachRun(m.Chunks, origin, m.Shape, p.Offset, p.Extent, func(di, si, n int) {
			for k := 0; k < n; k++ {
				put(chunk[(di+k)*item:], vals[si+k])
			}
		})
	})
}

func (a *Array) WriteStrings(vals []string) (WriteStats, error) {
	if len(vals) != a.Size() {
		return WriteStats{}, fmt.Errorf("writing %d values to array of size %d", len(vals), a.Size())
	}
	raw, err := encodeStrings(a.meta.Dtype.Dtype, vals)
	if err != nil {
		return WriteStats{}, err
	}
	m := a.meta
	item := m.Dtype.Dtype.ItemSize()
	origin := make([]int, len(m.Chunks))
	return a.writeChunks(func(chunk []byte, p chunkProjection) {
		copyBlock(chunk, m.Chunks, origin, raw, m.Shape, p.Offset, p.Extent, item)
	})
}

// eachChunk calls fn with the decompressed bytes of every chunk in C order.
// Missing chunks are passed as fill.
func (a *Array) eachChunk(fn func(data []byte, p chunkProjection)) error {
	m := a.meta
	item := m.Dtype.Dtype.ItemSize()
	fill := fillBytes(m.Dtype.Dtype, m.FillValue)
	chunkLen := item
	for _, c := range m.Chunks {
		chunkLen *= c
	}

	for _, p := range projections(m.Shape, m.Chunks) {
		data, err := a.readChunk(p.ChunkCoords)
		if errors.Is(err, ErrNotfound) {
			data = bytes.Repeat(fill, chunkLen/item)
		} else if err != nil {
			return err
		}
		if len(data) != chunkLen {
			return fmt.Errorf("chunk %s: got %d bytes, want %d", a.chunkKey(p.ChunkCoords), len(data), chunkLen)
		}
		fn(data, p)
	}
	return nil
}

// writeChunks compresses and stores every chunk in C order after fill has
// copied the chunk's items into a buffer prefilled with the fill value
func (a *Array) writeChunks(fill func(chunk []byte, p chunkProjection)) (WriteStats, error) {
	if a.mode == ModeRead {
		return WriteStats{}, fmt.Errorf("array %q is read only", a.Path())
	}
	m := a.meta
	pad := fillBytes(m.Dtype.Dtype, m.FillValue)
	n := 1
	for _, c := range m.Chunks {
		n *= c
	}

	stats := WriteStats{}
	for _, p := range projections(m.Shape, m.Chunks) {
		// edge chunks keep the full chunk shape, padded with fill
		chunk := bytes.Repeat(pad, n)
		fill(chunk, p)

		data, err := m.Compressor.Compress(chunk)
		if err != nil {
			return stats, fmt.Errorf("compressing chunk %s: %w", a.chunkKey(p.ChunkCoords), err)
		}
		if err := a.store.Put(a.chunkPath(p.ChunkCoords).String(), bytes.NewReader(data)); err != nil {
			return stats, err
		}
		stats.Chunks++
		stats.Bytes += int64(len(data))
	}
	return stats, nil
}

func (a *Array) readChunk(coords []int) ([]byte, error) {
	f, err := a.store.Get(a.chunkPath(coords).String())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return a.meta.Compressor.Decompress(data)
}

func (a *Array) chunkKey(coords []int) string {
	if len(coords) == 0 {
		return "0"
	}
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, a.meta.separator())
}

func (a *Array) chunkPath(coords []int) Path {
	return a.path.Join(a.chunkKey(coords))
}

type PersistenceMode string

const (
	// Persistence mode:
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	//‘r+’ means read/write (must exist)
	ModeReadWrite PersistenceMode = "r+"
	// ‘a’ means read/write (create if doesn’t exist)
	ModeReadWriteCreate PersistenceMode = "a"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ‘w-’ means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

// CreateGroup writes a ".zgroup" document at path, along with empty group
// attributes when none exist yet
func CreateGroup(store Store, path string, attrs Attributes) error {
	p, err := NewPath(path)
	if err != nil {
		return err
	}
	if err := putJSON(store, p.Join(string(MTGroup)).String(), Group{ZarrFormat: Version}); err != nil {
		return err
	}
	if attrs == nil {
		attrs = Attributes{}
	}
	return putJSON(store, p.Join(string(MTAttributes)).String(), attrs)
}

// Path is a normalized logical path within a store. The root is the empty
// Path.
type Path []string

// NewPath normalizes a logical path: backslashes become forward slashes,
// leading, trailing and repeated slashes are dropped. "." and ".." segments
// are rejected.
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, `\`, "/")
	var p Path
	for _, seg := range strings.Split(posix, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("invalid path %q: relative segment %q", posix, seg)
		}
		p = append(p, seg)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) Shift() (head string, ch Path) {
	switch len(p) {
	case 0:
		return "", nil
	case 1:
		return p[0], nil
	default:
		return p[0], p[1:]
	}
}

func (p Path) Join(elems ...string) Path {
	j := make(Path, 0, len(p)+len(elems))
	j = append(j, p...)
	return append(j, elems...)
}
