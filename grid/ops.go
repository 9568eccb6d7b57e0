package grid

import (
	"fmt"
	"math"
)

// outerInner splits a C-ordered array around axis into the number of blocks
// before it and the element count after it
func (da *DataArray) outerInner(axis int) (outer, inner int) {
	outer, inner = 1, 1
	for i, s := range da.Shape {
		switch {
		case i < axis:
			outer *= s
		case i > axis:
			inner *= s
		}
	}
	return outer, inner
}

// Isel selects position i of dim, dropping the dimension and its coordinate.
// Selecting along the first dimension shares Data with da.
func (da *DataArray) Isel(dim string, i int) (*DataArray, error) {
	axis, err := da.AxisNum(dim)
	if err != nil {
		return nil, err
	}
	n := da.Shape[axis]
	if i < 0 || i >= n {
		return nil, fmt.Errorf("index %d out of range for %q of length %d", i, dim, n)
	}

	out := da.withData(nil)
	out.Dims = append(append([]string{}, da.Dims[:axis]...), da.Dims[axis+1:]...)
	out.Shape = append(append([]int{}, da.Shape[:axis]...), da.Shape[axis+1:]...)
	delete(out.Coords, dim)
	if out.Chunks != nil && axis < len(out.Chunks) {
		out.Chunks = append(out.Chunks[:axis], out.Chunks[axis+1:]...)
	}

	outer, inner := da.outerInner(axis)
	if outer == 1 {
		out.Data = da.Data[i*inner : (i+1)*inner : (i+1)*inner]
		return out, nil
	}
	out.Data = make([]float64, 0, outer*inner)
	for o := 0; o < outer; o++ {
		start := (o*n + i) * inner
		out.Data = append(out.Data, da.Data[start:start+inner]...)
	}
	return out, nil
}

// Slice keeps positions [start, stop) of dim. Chunk boundaries are kept, so
// the chunks along dim may become irregular.
func (da *DataArray) Slice(dim string, start, stop int) (*DataArray, error) {
	axis, err := da.AxisNum(dim)
	if err != nil {
		return nil, err
	}
	n := da.Shape[axis]
	if start < 0 || stop > n || start > stop {
		return nil, fmt.Errorf("slice [%d:%d] out of range for %q of length %d", start, stop, dim, n)
	}

	out := da.withData(nil)
	out.Shape[axis] = stop - start
	if c, ok := da.Coords[dim]; ok {
		out.Coords[dim] = c.slice(start, stop)
	}
	if out.Chunks != nil && axis < len(out.Chunks) && out.Chunks[axis] != nil {
		out.Chunks[axis] = sliceChunks(out.Chunks[axis], start, stop)
	}

	outer, inner := da.outerInner(axis)
	out.Data = make([]float64, 0, outer*(stop-start)*inner)
	for o := 0; o < outer; o++ {
		base := o * n * inner
		out.Data = append(out.Data, da.Data[base+start*inner:base+stop*inner]...)
	}
	return out, nil
}

// RenameDim renames a dimension along with its coordinate and spatial role
func (da *DataArray) RenameDim(from, to string) error {
	axis, err := da.AxisNum(from)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if da.HasDim(to) {
		return fmt.Errorf("cannot rename %q: dimension %q exists", from, to)
	}
	da.Dims[axis] = to
	if c, ok := da.Coords[from]; ok {
		delete(da.Coords, from)
		da.Coords[to] = c
	}
	if da.spatial.x == from {
		da.spatial.x = to
	}
	if da.spatial.y == from {
		da.spatial.y = to
	}
	return nil
}

// SetCoord replaces the coordinate of dim
func (da *DataArray) SetCoord(dim string, c *Coord) error {
	axis, err := da.AxisNum(dim)
	if err != nil {
		return err
	}
	if c.Len() != da.Shape[axis] {
		return fmt.Errorf("%w: coordinate of length %d for %q of length %d", ErrShapeMismatch, c.Len(), dim, da.Shape[axis])
	}
	if da.Coords == nil {
		da.Coords = map[string]*Coord{}
	}
	da.Coords[dim] = c
	return nil
}

// Where keeps elements whose corresponding cond element satisfies keep and
// sets the rest to NaN. cond's dimensions must be a subset of the array's,
// broadcast over the others. Shared dimensions must have equal lengths and
// matching coordinates.
func (da *DataArray) Where(cond *DataArray, keep func(float64) bool) (*DataArray, error) {
	axes := make([]int, len(cond.Dims))
	for j, d := range cond.Dims {
		i, err := da.AxisNum(d)
		if err != nil {
			return nil, err
		}
		if da.Shape[i] != cond.Shape[j] {
			return nil, fmt.Errorf("%w: %q has length %d, condition has %d", ErrShapeMismatch, d, da.Shape[i], cond.Shape[j])
		}
		a, okA := da.Coords[d]
		b, okB := cond.Coords[d]
		if okA && okB && !a.equal(b) {
			return nil, fmt.Errorf("%w: %q", ErrMisaligned, d)
		}
		axes[j] = i
	}

	out := da.Copy()
	cst := cond.strides()
	k := 0
	da.Each(func(idx []int, v float64) {
		off := 0
		for j, i := range axes {
			off += idx[i] * cst[j]
		}
		if !keep(cond.Data[off]) {
			out.Data[k] = math.NaN()
		}
		k++
	})
	return out, nil
}

// Concat joins arrays along an existing dimension. The remaining dimensions
// must agree in length; names, attributes and their chunking come from the
// first array while the chunks along dim are concatenated.
func Concat(arrays []*DataArray, dim string) (*DataArray, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("concat: no arrays")
	}
	first := arrays[0]
	axis, err := first.AxisNum(dim)
	if err != nil {
		return nil, err
	}

	total := 0
	var chunks []int
	coord := &Coord{}
	hasCoord := true
	for n, a := range arrays {
		if len(a.Dims) != len(first.Dims) {
			return nil, fmt.Errorf("%w: array %d has dims %v, want %v", ErrShapeMismatch, n, a.Dims, first.Dims)
		}
		for i, d := range a.Dims {
			if d != first.Dims[i] {
				return nil, fmt.Errorf("%w: array %d has dims %v, want %v", ErrShapeMismatch, n, a.Dims, first.Dims)
			}
			if i != axis && a.Shape[i] != first.Shape[i] {
				return nil, fmt.Errorf("%w: array %d has %s=%d, want %d", ErrShapeMismatch, n, d, a.Shape[i], first.Shape[i])
			}
		}
		total += a.Shape[axis]
		chunks = append(chunks, a.chunksOf(axis)...)
		if c, ok := a.Coords[dim]; ok && hasCoord && !c.IsLabel() {
			coord.Values = append(coord.Values, c.Values...)
			if coord.Attrs == nil {
				coord.Attrs = copyMap(c.Attrs)
			}
		} else {
			hasCoord = false
		}
	}

	out := first.withData(nil)
	out.Shape[axis] = total
	if out.Chunks == nil {
		out.Chunks = make([][]int, len(out.Dims))
	}
	out.Chunks[axis] = chunks
	delete(out.Coords, dim)
	if hasCoord {
		out.Coords[dim] = coord
	}

	outer, _ := first.outerInner(axis)
	out.Data = make([]float64, 0, len(first.Data)/maxInt(first.Shape[axis], 1)*total)
	for o := 0; o < outer; o++ {
		for _, a := range arrays {
			_, inner := a.outerInner(axis)
			block := a.Shape[axis] * inner
			out.Data = append(out.Data, a.Data[o*block:(o+1)*block]...)
		}
	}
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
