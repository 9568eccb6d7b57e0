package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fishmip/ard-go/zarr"
	"github.com/spf13/cobra"
)

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect STORE",
		Short: "Describe the arrays of a Zarr store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := zarr.OpenStore(cmd.Context(), args[0], zarr.ModeRead)
			if err != nil {
				return err
			}
			defer store.Close()
			return describe(cmd.OutOrStdout(), store)
		},
	}
}

// describe writes one line per array: name, dimensions, shape, chunk
// shape, dtype, compressor and uncompressed size, data variables first
func describe(w io.Writer, store zarr.Store) error {
	vars, err := zarr.DataVariables(store)
	if err != nil {
		return err
	}
	isVar := map[string]bool{}
	for _, v := range vars {
		isVar[v] = true
	}

	var coords []string
	for _, v := range vars {
		arr, err := zarr.Open(store, v, zarr.ModeRead)
		if err != nil {
			return err
		}
		attrs, err := arr.Attributes()
		if err != nil {
			return err
		}
		for _, d := range dims(attrs) {
			if !isVar[d] && !contains(coords, d) {
				coords = append(coords, d)
			}
		}
	}
	sort.Strings(coords)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDIMS\tSHAPE\tCHUNKS\tDTYPE\tCOMPRESSOR\tSIZE")
	for _, name := range append(vars, coords...) {
		arr, err := zarr.Open(store, name, zarr.ModeRead)
		if err != nil {
			if isVar[name] {
				return err
			}
			// dimensions without a coordinate array
			continue
		}
		attrs, err := arr.Attributes()
		if err != nil {
			return err
		}
		m := arr.Meta()
		size := uint64(m.Dtype.Dtype.ItemSize())
		for _, s := range m.Shape {
			size *= uint64(s)
		}
		fmt.Fprintf(tw, "%s\t(%s)\t%v\t%v\t%s\t%s\t%s\n",
			name, strings.Join(dims(attrs), ", "), m.Shape, m.Chunks, m.Dtype.Dtype, m.Compressor, humanize.Bytes(size))
	}
	return tw.Flush()
}

func dims(attrs zarr.Attributes) []string {
	raw, _ := attrs[zarr.DimensionsKey].([]interface{})
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		if s, ok := d.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
