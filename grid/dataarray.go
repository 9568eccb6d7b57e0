// Package grid holds labelled N-dimensional float64 arrays: named
// dimensions, coordinate variables, attributes and the chunk layout the
// array is stored with.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrDimNotFound is returned when an operation names a dimension the
	// array does not have
	ErrDimNotFound = errors.New("dimension not found")
	// ErrShapeMismatch is returned when arrays or coordinates disagree on
	// dimension lengths
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrMisaligned is returned when two arrays share a dimension but not its
	// coordinate values
	ErrMisaligned = errors.New("coordinates are not aligned")
)

// Coord is a one dimensional coordinate variable. Exactly one of Values or
// Labels is set.
type Coord struct {
	Values []float64
	Labels []string
	Attrs  map[string]interface{}
}

func NewCoord(values []float64) *Coord { return &Coord{Values: values} }

func LabelCoord(labels []string) *Coord { return &Coord{Labels: labels} }

func (c *Coord) Len() int {
	if c.Labels != nil {
		return len(c.Labels)
	}
	return len(c.Values)
}

func (c *Coord) IsLabel() bool { return c.Labels != nil }

func (c *Coord) Copy() *Coord {
	if c == nil {
		return nil
	}
	cp := &Coord{Attrs: copyMap(c.Attrs)}
	if c.Values != nil {
		cp.Values = append([]float64{}, c.Values...)
	}
	if c.Labels != nil {
		cp.Labels = append([]string{}, c.Labels...)
	}
	return cp
}

func (c *Coord) slice(start, stop int) *Coord {
	cp := &Coord{Attrs: copyMap(c.Attrs)}
	if c.Labels != nil {
		cp.Labels = append([]string{}, c.Labels[start:stop]...)
	} else {
		cp.Values = append([]float64{}, c.Values[start:stop]...)
	}
	return cp
}

// equal compares coordinates, numeric values within a relative tolerance
func (c *Coord) equal(o *Coord) bool {
	if c.Len() != o.Len() || c.IsLabel() != o.IsLabel() {
		return false
	}
	for i := 0; i < c.Len(); i++ {
		if c.IsLabel() {
			if c.Labels[i] != o.Labels[i] {
				return false
			}
			continue
		}
		a, b := c.Values[i], o.Values[i]
		if math.Abs(a-b) > 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b))) {
			return false
		}
	}
	return true
}

// DataArray is a labelled N-dimensional array of float64 values stored in C
// order. Missing values are NaN.
type DataArray struct {
	Name  string
	Dims  []string
	Shape []int
	Data  []float64
	// Coords maps a dimension name to its coordinate variable. Dimensions
	// without a coordinate are indexed positionally.
	Coords map[string]*Coord
	Attrs  map[string]interface{}
	// Encoding holds storage hints read alongside the array
	Encoding map[string]interface{}
	// Chunks lists the chunk lengths along each dimension. A nil Chunks, or a
	// nil entry, means a single chunk spanning the dimension.
	Chunks [][]int

	spatial spatialRef
}

// New allocates a NaN-filled array
func New(name string, dims []string, shape []int) (*DataArray, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("%w: %d dims for shape %v", ErrShapeMismatch, len(dims), shape)
	}
	seen := map[string]bool{}
	n := 1
	for i, d := range dims {
		if seen[d] {
			return nil, fmt.Errorf("duplicate dimension %q", d)
		}
		seen[d] = true
		if shape[i] < 0 {
			return nil, fmt.Errorf("negative length for dimension %q", d)
		}
		n *= shape[i]
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = math.NaN()
	}
	return &DataArray{
		Name:     name,
		Dims:     append([]string{}, dims...),
		Shape:    append([]int{}, shape...),
		Data:     data,
		Coords:   map[string]*Coord{},
		Attrs:    map[string]interface{}{},
		Encoding: map[string]interface{}{},
	}, nil
}

// FromData wraps C-ordered data in an array
func FromData(name string, dims []string, shape []int, data []float64) (*DataArray, error) {
	da, err := New(name, dims, shape)
	if err != nil {
		return nil, err
	}
	if len(data) != len(da.Data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	da.Data = data
	return da, nil
}

func (da *DataArray) String() string {
	return fmt.Sprintf("<DataArray %q dims=%v shape=%v>", da.Name, da.Dims, da.Shape)
}

// AxisNum returns the position of dim in Dims
func (da *DataArray) AxisNum(dim string) (int, error) {
	for i, d := range da.Dims {
		if d == dim {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q not in %v", ErrDimNotFound, dim, da.Dims)
}

func (da *DataArray) HasDim(dim string) bool {
	_, err := da.AxisNum(dim)
	return err == nil
}

// Len is the length of dim, or zero if the array does not have it
func (da *DataArray) Len(dim string) int {
	i, err := da.AxisNum(dim)
	if err != nil {
		return 0
	}
	return da.Shape[i]
}

func (da *DataArray) Size() int { return len(da.Data) }

func (da *DataArray) strides() []int {
	st := make([]int, len(da.Shape))
	acc := 1
	for i := len(da.Shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= da.Shape[i]
	}
	return st
}

func (da *DataArray) offset(idx []int) int {
	if len(idx) != len(da.Shape) {
		panic(fmt.Sprintf("grid: index %v for %d dimensions", idx, len(da.Shape)))
	}
	off := 0
	for i, st := range da.strides() {
		if idx[i] < 0 || idx[i] >= da.Shape[i] {
			panic(fmt.Sprintf("grid: index %v out of range for shape %v", idx, da.Shape))
		}
		off += idx[i] * st
	}
	return off
}

func (da *DataArray) At(idx ...int) float64 { return da.Data[da.offset(idx)] }

func (da *DataArray) Set(v float64, idx ...int) { da.Data[da.offset(idx)] = v }

// Each calls fn with the index and value of every element in C order. fn
// must not retain idx.
func (da *DataArray) Each(fn func(idx []int, v float64)) {
	if len(da.Data) == 0 {
		return
	}
	idx := make([]int, len(da.Shape))
	for _, v := range da.Data {
		fn(idx, v)
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < da.Shape[d] {
				break
			}
			idx[d] = 0
		}
	}
}

// Count is the number of non-NaN elements
func (da *DataArray) Count() int {
	n := 0
	for _, v := range da.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Coord returns the value of dim's coordinate at i, falling back to i itself
// for dimensions without a numeric coordinate
func (da *DataArray) Coord(dim string, i int) float64 {
	if c, ok := da.Coords[dim]; ok && !c.IsLabel() {
		return c.Values[i]
	}
	return float64(i)
}

// Copy returns a deep copy
func (da *DataArray) Copy() *DataArray {
	return da.withData(append([]float64{}, da.Data...))
}

// withData copies everything but the values, which it takes from data
// without copying
func (da *DataArray) withData(data []float64) *DataArray {
	cp := &DataArray{
		Name:     da.Name,
		Dims:     append([]string{}, da.Dims...),
		Shape:    append([]int{}, da.Shape...),
		Data:     data,
		Coords:   map[string]*Coord{},
		Attrs:    copyMap(da.Attrs),
		Encoding: copyMap(da.Encoding),
		spatial:  da.spatial,
	}
	for k, c := range da.Coords {
		cp.Coords[k] = c.Copy()
	}
	if da.Chunks != nil {
		cp.Chunks = make([][]int, len(da.Chunks))
		for i, c := range da.Chunks {
			if c != nil {
				cp.Chunks[i] = append([]int{}, c...)
			}
		}
	}
	return cp
}

// AttrKeys returns attribute names, sorted
func (da *DataArray) AttrKeys() []string {
	keys := make([]string, 0, len(da.Attrs))
	for k := range da.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
