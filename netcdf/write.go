package netcdf

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/fishmip/ard-go/grid"
)

// WriteOptions configures Write
type WriteOptions struct {
	// RecordDim, when set, is written as the unlimited dimension. It must be
	// the array's first dimension.
	RecordDim string
}

// Write stores an array and its numeric dimension coordinates as a netCDF
// classic file. Label coordinates are not written.
func Write(path string, da *grid.DataArray, opts WriteOptions) error {
	name := da.Name
	if name == "" {
		return fmt.Errorf("cannot write an unnamed variable")
	}
	lengths := append([]int{}, da.Shape...)
	if opts.RecordDim != "" {
		if len(da.Dims) == 0 || da.Dims[0] != opts.RecordDim {
			return fmt.Errorf("record dimension %q must be the first of %v", opts.RecordDim, da.Dims)
		}
		lengths[0] = 0
	}
	for i, l := range lengths {
		if l == 0 && (opts.RecordDim == "" || i > 0) {
			return fmt.Errorf("dimension %q has zero length", da.Dims[i])
		}
	}

	h := cdf.NewHeader(da.Dims, lengths)
	var coords []string
	for _, dim := range da.Dims {
		c, ok := da.Coords[dim]
		if !ok || c.IsLabel() {
			continue
		}
		h.AddVariable(dim, []string{dim}, []float64{0})
		addAttributes(h, dim, c.Attrs)
		coords = append(coords, dim)
	}
	h.AddVariable(name, da.Dims, []float64{0})
	addAttributes(h, name, da.Attrs)
	h.AddAttribute(name, "_FillValue", []float64{math.NaN()})
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	nc, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return err
	}

	for _, dim := range coords {
		if err := writeVar(nc, dim, da.Coords[dim].Values, opts.RecordDim == dim); err != nil {
			f.Close()
			return fmt.Errorf("writing coordinate %q: %w", dim, err)
		}
	}
	if err := writeVar(nc, name, da.Data, opts.RecordDim != ""); err != nil {
		f.Close()
		return fmt.Errorf("writing %q: %w", name, err)
	}

	if opts.RecordDim != "" {
		if err := cdf.UpdateNumRecs(f); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func writeVar(nc *cdf.File, name string, vals []float64, record bool) error {
	if len(vals) == 0 {
		return nil
	}
	var w cdf.Writer
	if record {
		// record variables grow the file as they are written
		w = nc.Writer(name, nil, nil)
	} else {
		end := nc.Header.Lengths(name)
		w = nc.Writer(name, make([]int, len(end)), end)
	}
	n, err := w.Write(vals)
	if err != nil {
		return err
	}
	if n != len(vals) {
		return fmt.Errorf("wrote %d of %d values", n, len(vals))
	}
	return nil
}

// addAttributes converts attributes to the value types netCDF headers hold
func addAttributes(h *cdf.Header, v string, attrs map[string]interface{}) {
	for _, k := range sortedKeys(attrs) {
		if encodingAttrs[k] {
			continue
		}
		switch val := attrs[k].(type) {
		case string:
			h.AddAttribute(v, k, val)
		case float64:
			h.AddAttribute(v, k, []float64{val})
		case float32:
			h.AddAttribute(v, k, []float32{val})
		case int:
			h.AddAttribute(v, k, []int32{int32(val)})
		case int32:
			h.AddAttribute(v, k, []int32{val})
		case []float64:
			if len(val) > 0 {
				h.AddAttribute(v, k, val)
			}
		default:
			h.AddAttribute(v, k, fmt.Sprint(val))
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
