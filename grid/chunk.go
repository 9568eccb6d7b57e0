package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var (
	// ErrNonUniformChunks is returned when a dimension's chunks do not all
	// share one size
	ErrNonUniformChunks = errors.New("chunks are not uniform")
	// ErrIrregularChunks is returned when a chunk layout cannot be stored as
	// a single chunk shape
	ErrIrregularChunks = errors.New("chunks are irregular")
)

// itemSize is the byte width of one float64 element
const itemSize = 8

// Chunk describes the target chunking of one dimension: either a fixed
// length or a byte budget per chunk
type Chunk struct {
	size  int
	bytes int64
}

// Fixed chunks a dimension into runs of n elements
func Fixed(n int) Chunk { return Chunk{size: n} }

// ByteTarget sizes chunks of a dimension so a whole chunk holds about b bytes
func ByteTarget(b int64) Chunk { return Chunk{bytes: b} }

// ParseChunk reads either an element count ("120") or a byte size ("200MB",
// "1.5GiB")
func ParseChunk(s string) (Chunk, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return Chunk{}, fmt.Errorf("invalid chunk size %d", n)
		}
		return Fixed(n), nil
	}
	b, err := humanize.ParseBytes(s)
	if err != nil {
		return Chunk{}, fmt.Errorf("invalid chunk size %q: %w", s, err)
	}
	if b < 1 {
		return Chunk{}, fmt.Errorf("invalid chunk size %q", s)
	}
	return ByteTarget(int64(b)), nil
}

func (c Chunk) String() string {
	if c.bytes > 0 {
		return humanize.Bytes(uint64(c.bytes))
	}
	return strconv.Itoa(c.size)
}

// chunksOf returns the chunk lengths of an axis, treating an unchunked axis
// as one chunk
func (da *DataArray) chunksOf(axis int) []int {
	if da.Chunks != nil && axis < len(da.Chunks) && da.Chunks[axis] != nil {
		return da.Chunks[axis]
	}
	if da.Shape[axis] == 0 {
		return nil
	}
	return []int{da.Shape[axis]}
}

// ChunkSizes returns the chunk lengths along dim
func (da *DataArray) ChunkSizes(dim string) ([]int, error) {
	i, err := da.AxisNum(dim)
	if err != nil {
		return nil, err
	}
	return append([]int{}, da.chunksOf(i)...), nil
}

// UniformChunk returns the single chunk length shared by every chunk along
// dim. Any remainder chunk counts as a distinct size, so [120 120 60] is not
// uniform.
func (da *DataArray) UniformChunk(dim string) (int, error) {
	cs, err := da.ChunkSizes(dim)
	if err != nil {
		return 0, err
	}
	distinct := map[int]bool{}
	for _, c := range cs {
		distinct[c] = true
	}
	if len(distinct) != 1 {
		return 0, fmt.Errorf("%w: %q has chunks %v", ErrNonUniformChunks, dim, cs)
	}
	return cs[0], nil
}

// HasEqualChunks reports whether all chunks along axis have the same length
func (da *DataArray) HasEqualChunks(axis int) bool {
	cs := da.chunksOf(axis)
	for _, c := range cs {
		if c != cs[0] {
			return false
		}
	}
	return true
}

// IsRegular reports whether chunks can be described by a single chunk
// length: all equal except a shorter final chunk
func IsRegular(chunks []int) bool {
	if len(chunks) < 2 {
		return true
	}
	for _, c := range chunks[:len(chunks)-1] {
		if c != chunks[0] {
			return false
		}
	}
	return chunks[len(chunks)-1] <= chunks[0]
}

// RegularChunks returns the single chunk shape the array's layout reduces to
func (da *DataArray) RegularChunks() ([]int, error) {
	shape := make([]int, len(da.Dims))
	for i, d := range da.Dims {
		cs := da.chunksOf(i)
		if !IsRegular(cs) {
			return nil, fmt.Errorf("%w: %q has chunks %v", ErrIrregularChunks, d, cs)
		}
		shape[i] = 1
		if len(cs) > 0 {
			shape[i] = cs[0]
		}
	}
	return shape, nil
}

// regular splits n elements into runs of size with a shorter remainder
func regular(n, size int) []int {
	if n == 0 {
		return nil
	}
	if size < 1 || size > n {
		size = n
	}
	cs := make([]int, 0, (n+size-1)/size)
	for rem := n; rem > 0; rem -= size {
		if rem < size {
			cs = append(cs, rem)
			break
		}
		cs = append(cs, size)
	}
	return cs
}

// Rechunk returns an array with new chunk layouts for the named dimensions.
// Fixed chunks are applied first so byte targets are sized against the final
// chunk lengths of the other dimensions. Only metadata is copied: the result
// shares Data with da.
func (da *DataArray) Rechunk(layout map[string]Chunk) (*DataArray, error) {
	out := da.withData(da.Data)
	out.Chunks = make([][]int, len(da.Dims))
	for i := range da.Dims {
		out.Chunks[i] = append([]int{}, da.chunksOf(i)...)
	}

	var byBytes []int
	for dim, c := range layout {
		i, err := da.AxisNum(dim)
		if err != nil {
			return nil, err
		}
		if c.bytes > 0 {
			byBytes = append(byBytes, i)
			continue
		}
		if c.size < 1 {
			return nil, fmt.Errorf("invalid chunk size %d for %q", c.size, dim)
		}
		out.Chunks[i] = regular(da.Shape[i], c.size)
	}

	for _, i := range byBytes {
		others := int64(1)
		for j := range da.Dims {
			if j == i || byBytesContains(byBytes, j) {
				continue
			}
			others *= int64(maxOf(out.Chunks[j]))
		}
		size := layout[da.Dims[i]].bytes / (itemSize * others)
		if size < 1 {
			size = 1
		}
		out.Chunks[i] = regular(da.Shape[i], int(size))
	}
	return out, nil
}

func byBytesContains(axes []int, a int) bool {
	for _, x := range axes {
		if x == a {
			return true
		}
	}
	return false
}

func maxOf(cs []int) int {
	m := 1
	for _, c := range cs {
		if c > m {
			m = c
		}
	}
	return m
}

// sliceChunks intersects a chunk list with the element range [start, stop)
func sliceChunks(chunks []int, start, stop int) []int {
	var out []int
	pos := 0
	for _, c := range chunks {
		lo, hi := pos, pos+c
		if lo < start {
			lo = start
		}
		if hi > stop {
			hi = stop
		}
		if hi > lo {
			out = append(out, hi-lo)
		}
		pos += c
	}
	return out
}
