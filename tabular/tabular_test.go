package tabular

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/fishmip/ard-go/grid"
	"github.com/stretchr/testify/require"
)

func clipped(t *testing.T, month bool) *grid.DataArray {
	t.Helper()
	dims := []string{"depth", "lat", "lon"}
	shape := []int{2, 2, 2}
	if month {
		dims = append([]string{"month"}, dims...)
		shape = append([]int{2}, shape...)
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	data[1] = math.NaN()
	data[n-1] = math.NaN()
	da, err := grid.FromData("to", dims, shape, data)
	require.NoError(t, err)
	require.NoError(t, da.SetCoord("depth", grid.NewCoord([]float64{0, 5})))
	require.NoError(t, da.SetCoord("lat", grid.NewCoord([]float64{-0.5, 0.5})))
	require.NoError(t, da.SetCoord("lon", grid.NewCoord([]float64{1.5, 2.5})))
	if month {
		require.NoError(t, da.SetCoord("month", grid.LabelCoord([]string{"January", "February"})))
	}
	return da
}

func TestFromDataArray(t *testing.T) {
	tbl, err := FromDataArray(clipped(t, false))
	require.NoError(t, err)
	require.Equal(t, []string{"lat", "lon", "depth", "vals"}, tbl.Names())
	require.Equal(t, 6, tbl.NumRows())
	require.Equal(t, []float64{0, 2, 3, 4, 5, 6}, tbl.Column("vals").Floats)
	// the second kept row is depth 0, lat 0.5, lon 1.5
	require.Equal(t, 0.5, tbl.Column("lat").Floats[1])
	require.Equal(t, 1.5, tbl.Column("lon").Floats[1])
	require.Equal(t, 5.0, tbl.Column("depth").Floats[5])

	tbl, err = FromDataArray(clipped(t, true))
	require.NoError(t, err)
	require.Equal(t, []string{"lat", "lon", "depth", "vals"}, tbl.Names())
	require.Equal(t, 14, tbl.NumRows())
	require.Nil(t, tbl.Column("month"))
	// rows of the second month follow those of the first
	require.Equal(t, 8.0, tbl.Column("vals").Floats[7])
	require.Equal(t, -0.5, tbl.Column("lat").Floats[7])

	other, err := grid.New("to", []string{"time", "lat", "lon", "depth"}, []int{1, 1, 1, 1})
	require.NoError(t, err)
	_, err = FromDataArray(other)
	require.Error(t, err)

	nodepth, err := grid.New("to", []string{"lat", "lon"}, []int{1, 1})
	require.NoError(t, err)
	_, err = FromDataArray(nodepth)
	require.ErrorIs(t, err, grid.ErrDimNotFound)
}

func TestWithConstants(t *testing.T) {
	tbl, err := FromDataArray(clipped(t, false))
	require.NoError(t, err)
	require.NoError(t, tbl.WithConstants(map[string]interface{}{
		"units":       "degrees_celsius",
		"valid_range": []float64{-2, 40},
		"version":     2.0,
	}))
	require.Equal(t, []string{"lat", "lon", "depth", "vals", "units", "valid_range", "version"}, tbl.Names())
	require.Equal(t, "degrees_celsius", tbl.Column("units").Strings[5])
	require.Equal(t, "[-2,40]", tbl.Column("valid_range").Strings[0])
	require.Equal(t, 2.0, tbl.Column("version").Floats[3])

	require.Error(t, tbl.WithConstants(map[string]interface{}{"lat": "x"}))
}

func TestParquetRoundTrip(t *testing.T) {
	tbl, err := FromDataArray(clipped(t, true))
	require.NoError(t, err)
	require.NoError(t, tbl.WithConstants(map[string]interface{}{"units": "degrees_celsius", "scale": 1}))

	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, WriteParquet(path, tbl))
	// writing again replaces the file
	require.NoError(t, WriteParquet(path, tbl))

	got, err := ReadParquet(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, tbl.Names(), got.Names())
	require.Equal(t, tbl.NumRows(), got.NumRows())
	require.Equal(t, tbl.Column("vals").Floats, got.Column("vals").Floats)
	require.Equal(t, tbl.Column("lat").Floats, got.Column("lat").Floats)
	require.Equal(t, []string{"lat", "lon", "depth", "vals", "scale", "units"}, got.Names())
	for _, v := range got.Column("vals").Floats {
		require.False(t, math.IsNaN(v))
	}
}
