// Package netcdf reads and writes variables of netCDF classic files as
// labelled arrays.
package netcdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/fishmip/ard-go/grid"
)

var (
	// ErrUnsupportedFormat is returned for files that are not netCDF
	// classic or 64-bit offset files, including netCDF-4/HDF5
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrVariableNotFound is returned when a file lacks the requested variable
	ErrVariableNotFound = errors.New("variable not found")
)

// attributes moved from a variable's attrs into its encoding when values are
// decoded
var encodingAttrs = map[string]bool{
	"_FillValue":    true,
	"missing_value": true,
	"scale_factor":  true,
	"add_offset":    true,
}

var hdf5Magic = []byte("\x89HDF")

// ReadVariable reads one variable of a file with the coordinate variables of
// its dimensions. Fill and missing values become NaN and packed values are
// unpacked with scale_factor and add_offset. Time coordinates are left as
// stored, their units attribute kept.
func ReadVariable(path, name string) (*grid.DataArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := checkMagic(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if !hasVariable(nc.Header, name) {
		return nil, fmt.Errorf("%w: %q in %s", ErrVariableNotFound, name, path)
	}

	dims := nc.Header.Dimensions(name)
	data, lengths, err := readVar(nc, name, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("reading %q from %s: %w", name, path, err)
	}
	da, err := grid.FromData(name, dims, lengths, data)
	if err != nil {
		return nil, err
	}
	da.Attrs, da.Encoding = decodeCF(nc.Header, name, da.Data)
	da.Encoding["source"] = path

	for i, dim := range dims {
		if dim == name || !hasVariable(nc.Header, dim) {
			continue
		}
		if cd := nc.Header.Dimensions(dim); len(cd) != 1 || cd[0] != dim {
			continue
		}
		vals, _, err := readVar(nc, dim, fi.Size())
		if err != nil {
			return nil, fmt.Errorf("reading coordinate %q from %s: %w", dim, path, err)
		}
		if len(vals) != lengths[i] {
			return nil, fmt.Errorf("%w: coordinate %q has %d values, dimension has %d", grid.ErrShapeMismatch, dim, len(vals), lengths[i])
		}
		attrs, _ := decodeCF(nc.Header, dim, vals)
		if err := da.SetCoord(dim, &grid.Coord{Values: vals, Attrs: attrs}); err != nil {
			return nil, err
		}
	}
	return da, nil
}

func checkMagic(r io.ReaderAt) error {
	magic := make([]byte, 4)
	if _, err := r.ReadAt(magic, 0); err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, err)
	}
	if bytes.Equal(magic, hdf5Magic) {
		return fmt.Errorf("%w: netCDF-4/HDF5", ErrUnsupportedFormat)
	}
	if !bytes.HasPrefix(magic, []byte("CDF")) {
		return fmt.Errorf("%w: not a netCDF file", ErrUnsupportedFormat)
	}
	return nil
}

func hasVariable(h *cdf.Header, name string) bool {
	for _, v := range h.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// readVar reads every value of a variable as float64. The length of the
// record dimension is derived from the file size.
func readVar(nc *cdf.File, name string, fileSize int64) ([]float64, []int, error) {
	lengths := append([]int{}, nc.Header.Lengths(name)...)
	if nc.Header.IsRecordVariable(name) {
		lengths[0] = int(nc.Header.NumRecs(fileSize))
	}
	total := 1
	for _, l := range lengths {
		total *= l
	}
	if total == 0 {
		return []float64{}, lengths, nil
	}

	end := make([]int, len(lengths))
	for i, l := range lengths {
		end[i] = l - 1
	}
	r := nc.Reader(name, nil, end)
	buf := r.Zero(total)
	if _, ok := buf.(string); ok {
		return nil, nil, fmt.Errorf("character variables are not supported")
	}
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, nil, err
	}

	out := make([]float64, total)
	switch vals := buf.(type) {
	case []float64:
		copy(out, vals)
	case []float32:
		for i, v := range vals {
			out[i] = float64(v)
		}
	case []int32:
		for i, v := range vals {
			out[i] = float64(v)
		}
	case []int16:
		for i, v := range vals {
			out[i] = float64(v)
		}
	case []uint8:
		// netCDF bytes are signed
		for i, v := range vals {
			out[i] = float64(int8(v))
		}
	default:
		return nil, nil, fmt.Errorf("unexpected value type %T", buf)
	}
	return out, lengths, nil
}

// decodeCF masks and unpacks data in place, returning the variable's
// attributes and the encoding attributes consumed
func decodeCF(h *cdf.Header, name string, data []float64) (attrs, encoding map[string]interface{}) {
	attrs = map[string]interface{}{}
	encoding = map[string]interface{}{}
	for _, a := range h.Attributes(name) {
		v := attrValue(h.GetAttribute(name, a))
		if encodingAttrs[a] {
			encoding[a] = v
			continue
		}
		attrs[a] = v
	}

	var missing []float64
	for _, a := range []string{"_FillValue", "missing_value"} {
		missing = append(missing, numbers(h.GetAttribute(name, a))...)
	}
	scale, offset := 1.0, 0.0
	if s := numbers(h.GetAttribute(name, "scale_factor")); len(s) > 0 {
		scale = s[0]
	}
	if o := numbers(h.GetAttribute(name, "add_offset")); len(o) > 0 {
		offset = o[0]
	}

	for i, v := range data {
		for _, m := range missing {
			if v == m || (math.IsNaN(m) && math.IsNaN(v)) {
				v = math.NaN()
				break
			}
		}
		data[i] = v*scale + offset
	}
	return attrs, encoding
}

// numbers converts a numeric attribute to float64s. The values of float32
// attributes are widened exactly, so they compare equal to widened data.
func numbers(v interface{}) []float64 {
	var out []float64
	switch vals := v.(type) {
	case []float64:
		out = append(out, vals...)
	case []float32:
		for _, x := range vals {
			out = append(out, float64(x))
		}
	case []int32:
		for _, x := range vals {
			out = append(out, float64(x))
		}
	case []int16:
		for _, x := range vals {
			out = append(out, float64(x))
		}
	case []uint8:
		for _, x := range vals {
			out = append(out, float64(int8(x)))
		}
	}
	return out
}

// attrValue flattens an attribute to a string, a float64 or a []float64
func attrValue(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return s
	}
	n := numbers(v)
	if len(n) == 1 {
		return n[0]
	}
	return n
}

// OpenMultiFile reads a variable from several files and concatenates it
// along dim, ordering the files by their first coordinate value along dim.
// Every file contributes one chunk along dim. Attributes come from the first
// file in that order.
func OpenMultiFile(paths []string, name, dim string) (*grid.DataArray, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files")
	}

	arrays := make([]*grid.DataArray, 0, len(paths))
	for _, p := range paths {
		da, err := ReadVariable(p, name)
		if err != nil {
			return nil, err
		}
		if !da.HasDim(dim) {
			return nil, fmt.Errorf("%w: %q not in %s", grid.ErrDimNotFound, dim, p)
		}
		arrays = append(arrays, da)
	}

	sort.SliceStable(arrays, func(i, j int) bool {
		return firstCoord(arrays[i], dim) < firstCoord(arrays[j], dim)
	})

	if len(arrays) == 1 {
		da := arrays[0]
		axis, _ := da.AxisNum(dim)
		da.Chunks = make([][]int, len(da.Dims))
		da.Chunks[axis] = []int{da.Shape[axis]}
		return da, nil
	}
	return grid.Concat(arrays, dim)
}

func firstCoord(da *grid.DataArray, dim string) float64 {
	if c, ok := da.Coords[dim]; ok && !c.IsLabel() && len(c.Values) > 0 {
		return c.Values[0]
	}
	return math.Inf(1)
}
