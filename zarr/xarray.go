package zarr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fishmip/ard-go/grid"
)

const (
	// DimensionsKey is the attribute xarray stores an array's dimension
	// names under
	DimensionsKey = "_ARRAY_DIMENSIONS"
	// UnnamedVariable is the name given to arrays written without one
	UnnamedVariable = "__xarray_dataarray_variable__"
)

// ErrVariableCount is returned when a store does not hold exactly one data
// variable
var ErrVariableCount = errors.New("store must contain exactly one data variable")

// WriteOptions configures WriteDataArray
type WriteOptions struct {
	// Compressor for the data variable's chunks, nil for none
	Compressor *CompressionMeta
}

// WriteDataArray writes da as a one-variable dataset in the layout xarray
// uses: a root group, one array per dimension coordinate and the data
// variable chunked by da.Chunks, followed by consolidated metadata. The
// store should be empty.
func WriteDataArray(store Store, da *grid.DataArray, opts WriteOptions) (WriteStats, error) {
	stats := WriteStats{}
	name := da.Name
	if name == "" {
		name = UnnamedVariable
	}
	if da.HasDim(name) {
		return stats, fmt.Errorf("variable %q has the same name as a dimension", name)
	}

	chunks, err := da.RegularChunks()
	if err != nil {
		return stats, err
	}
	for i := range chunks {
		if chunks[i] < 1 {
			chunks[i] = 1
		}
	}

	if err := CreateGroup(store, "", nil); err != nil {
		return stats, err
	}

	for _, dim := range da.Dims {
		c, ok := da.Coords[dim]
		if !ok {
			continue
		}
		st, err := writeCoord(store, dim, c)
		if err != nil {
			return stats, fmt.Errorf("writing coordinate %q: %w", dim, err)
		}
		stats.Add(st)
	}

	arr, err := Create(store, name, &ArrayMeta{
		Shape:      append([]int{}, da.Shape...),
		Chunks:     chunks,
		Dtype:      Basic(Float64),
		Compressor: opts.Compressor,
		FillValue:  FillValueNaN,
	})
	if err != nil {
		return stats, err
	}
	if err := arr.SetAttributes(withDims(da.Attrs, da.Dims)); err != nil {
		return stats, err
	}
	st, err := arr.WriteFloat64(da.Data)
	stats.Add(st)
	if err != nil {
		return stats, fmt.Errorf("writing %q: %w", name, err)
	}

	if _, err := ConsolidateMetadata(store); err != nil {
		return stats, err
	}
	return stats, nil
}

func writeCoord(store Store, dim string, c *grid.Coord) (WriteStats, error) {
	n := c.Len()
	meta := &ArrayMeta{
		Shape:  []int{n},
		Chunks: []int{n},
	}
	if n == 0 {
		meta.Chunks = []int{1}
	}

	if c.IsLabel() {
		width := 1
		for _, l := range c.Labels {
			if w := len([]rune(l)); w > width {
				width = w
			}
		}
		meta.Dtype = Basic(UnicodeOf(width))
	} else {
		meta.Dtype = Basic(Float64)
		meta.FillValue = FillValueNaN
	}

	arr, err := Create(store, dim, meta)
	if err != nil {
		return WriteStats{}, err
	}
	if err := arr.SetAttributes(withDims(c.Attrs, []string{dim})); err != nil {
		return WriteStats{}, err
	}
	if c.IsLabel() {
		return arr.WriteStrings(c.Labels)
	}
	return arr.WriteFloat64(c.Values)
}

func withDims(attrs map[string]interface{}, dims []string) Attributes {
	out := Attributes{}
	for k, v := range attrs {
		out[k] = v
	}
	out[DimensionsKey] = append([]string{}, dims...)
	return out
}

// storeArrays lists top-level arrays and their dimension names, preferring
// consolidated metadata when the store has it
func storeArrays(store Store) (map[string][]string, error) {
	var paths []string
	if cm, err := ReadConsolidatedMetadata(store); err == nil {
		paths = cm.Arrays()
	} else if errors.Is(err, ErrNotfound) {
		keys, err := store.Keys()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if strings.HasSuffix(k, "/"+string(MTArray)) {
				paths = append(paths, strings.TrimSuffix(k, "/"+string(MTArray)))
			}
		}
	} else {
		return nil, err
	}

	arrays := map[string][]string{}
	for _, p := range paths {
		if p == "" || strings.Contains(p, "/") {
			continue
		}
		arr, err := Open(store, p, ModeRead)
		if err != nil {
			return nil, err
		}
		attrs, err := arr.Attributes()
		if err != nil {
			return nil, err
		}
		dims, err := attrDims(attrs)
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", p, err)
		}
		if len(dims) != len(arr.Meta().Shape) {
			return nil, fmt.Errorf("array %q: %d dimension names for shape %v", p, len(dims), arr.Meta().Shape)
		}
		arrays[p] = dims
	}
	return arrays, nil
}

func attrDims(attrs Attributes) ([]string, error) {
	raw, ok := attrs[DimensionsKey]
	if !ok {
		return nil, fmt.Errorf("missing %s attribute", DimensionsKey)
	}
	list, ok := raw.([]interface{})
	if !ok {
		if s, ok := raw.([]string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("invalid %s attribute %v", DimensionsKey, raw)
	}
	dims := make([]string, len(list))
	for i, d := range list {
		if dims[i], ok = d.(string); !ok {
			return nil, fmt.Errorf("invalid %s attribute %v", DimensionsKey, raw)
		}
	}
	return dims, nil
}

// DataVariables returns the names of arrays that are not dimension
// coordinates, sorted
func DataVariables(store Store) ([]string, error) {
	arrays, err := storeArrays(store)
	if err != nil {
		return nil, err
	}
	return dataVariables(arrays), nil
}

func dataVariables(arrays map[string][]string) []string {
	dims := map[string]bool{}
	for _, ds := range arrays {
		for _, d := range ds {
			dims[d] = true
		}
	}
	var vars []string
	for name := range arrays {
		if !dims[name] {
			vars = append(vars, name)
		}
	}
	sort.Strings(vars)
	return vars
}

// ReadDataArray reads the single data variable of a store with its
// dimension coordinates. The chunk layout of the stored array becomes the
// array's Chunks.
func ReadDataArray(store Store) (*grid.DataArray, error) {
	arrays, err := storeArrays(store)
	if err != nil {
		return nil, err
	}
	vars := dataVariables(arrays)
	if len(vars) != 1 {
		return nil, fmt.Errorf("%w: found %d %v", ErrVariableCount, len(vars), vars)
	}
	name := vars[0]

	arr, err := Open(store, name, ModeRead)
	if err != nil {
		return nil, err
	}
	meta := arr.Meta()
	data, err := arr.ReadFloat64()
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}

	varName := name
	if varName == UnnamedVariable {
		varName = ""
	}
	da, err := grid.FromData(varName, arrays[name], meta.Shape, data)
	if err != nil {
		return nil, err
	}

	attrs, err := arr.Attributes()
	if err != nil {
		return nil, err
	}
	delete(attrs, DimensionsKey)
	da.Attrs = attrs
	da.Encoding = map[string]interface{}{
		"chunks":     append([]int{}, meta.Chunks...),
		"compressor": meta.Compressor,
		"dtype":      meta.Dtype.Dtype.String(),
	}
	da.Chunks = make([][]int, len(da.Dims))
	for i := range da.Dims {
		da.Chunks[i] = regularChunks(meta.Shape[i], meta.Chunks[i])
	}

	for _, dim := range da.Dims {
		if _, ok := arrays[dim]; !ok {
			continue
		}
		c, err := readCoord(store, dim)
		if err != nil {
			return nil, fmt.Errorf("reading coordinate %q: %w", dim, err)
		}
		if err := da.SetCoord(dim, c); err != nil {
			return nil, err
		}
	}
	return da, nil
}

func readCoord(store Store, dim string) (*grid.Coord, error) {
	arr, err := Open(store, dim, ModeRead)
	if err != nil {
		return nil, err
	}
	if len(arr.Meta().Shape) != 1 {
		return nil, fmt.Errorf("coordinate has shape %v", arr.Meta().Shape)
	}
	attrs, err := arr.Attributes()
	if err != nil {
		return nil, err
	}
	delete(attrs, DimensionsKey)

	if arr.Meta().Dtype.Dtype.IsText() {
		labels, err := arr.ReadStrings()
		if err != nil {
			return nil, err
		}
		return &grid.Coord{Labels: labels, Attrs: attrs}, nil
	}
	vals, err := arr.ReadFloat64()
	if err != nil {
		return nil, err
	}
	return &grid.Coord{Values: vals, Attrs: attrs}, nil
}

func regularChunks(n, size int) []int {
	var cs []int
	for rem := n; rem > 0; rem -= size {
		if rem < size {
			cs = append(cs, rem)
			break
		}
		cs = append(cs, size)
	}
	return cs
}
