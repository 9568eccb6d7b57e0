package netcdf

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/fishmip/ard-go/grid"
	"github.com/stretchr/testify/require"
)

// monthly builds a (time, lat, lon) temperature field whose values encode
// their time step
func monthly(t *testing.T, times []float64) *grid.DataArray {
	t.Helper()
	da, err := grid.New("t_an", []string{"time", "lat", "lon"}, []int{len(times), 2, 3})
	require.NoError(t, err)
	da.Each(func(idx []int, _ float64) {
		da.Set(times[idx[0]]*100+float64(idx[1]*3+idx[2]), idx...)
	})
	require.NoError(t, da.SetCoord("time", &grid.Coord{
		Values: times,
		Attrs:  map[string]interface{}{"units": "months since 1955-01-01 00:00:00"},
	}))
	require.NoError(t, da.SetCoord("lat", grid.NewCoord([]float64{-0.5, 0.5})))
	require.NoError(t, da.SetCoord("lon", grid.NewCoord([]float64{10.5, 11.5, 12.5})))
	da.Attrs["units"] = "degrees_celsius"
	da.Attrs["standard_name"] = "sea_water_temperature"
	return da
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.nc")
	da := monthly(t, []float64{0.5, 1.5})
	da.Data[4] = math.NaN()
	require.NoError(t, Write(path, da, WriteOptions{}))

	got, err := ReadVariable(path, "t_an")
	require.NoError(t, err)
	require.Equal(t, da.Dims, got.Dims)
	require.Equal(t, da.Shape, got.Shape)
	require.True(t, math.IsNaN(got.Data[4]))
	require.Equal(t, da.Data[5], got.Data[5])
	require.Equal(t, "degrees_celsius", got.Attrs["units"])
	require.NotContains(t, got.Attrs, "_FillValue")
	require.Equal(t, []float64{10.5, 11.5, 12.5}, got.Coords["lon"].Values)
	require.Equal(t, "months since 1955-01-01 00:00:00", got.Coords["time"].Attrs["units"])

	_, err = ReadVariable(path, "s_an")
	require.ErrorIs(t, err, ErrVariableNotFound)
}

func TestRecordDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.nc")
	da := monthly(t, []float64{0.5, 1.5, 2.5})
	require.NoError(t, Write(path, da, WriteOptions{RecordDim: "time"}))

	got, err := ReadVariable(path, "t_an")
	require.NoError(t, err)
	require.Equal(t, []int{3, 2, 3}, got.Shape)
	require.Equal(t, da.Data, got.Data)
	require.Equal(t, []float64{0.5, 1.5, 2.5}, got.Coords["time"].Values)

	require.Error(t, Write(path, da, WriteOptions{RecordDim: "lat"}))
}

func TestOpenMultiFile(t *testing.T) {
	dir := t.TempDir()
	late := filepath.Join(dir, "a.nc")
	early := filepath.Join(dir, "b.nc")
	require.NoError(t, Write(late, monthly(t, []float64{6.5, 7.5, 8.5}), WriteOptions{}))
	require.NoError(t, Write(early, monthly(t, []float64{0.5, 1.5, 2.5}), WriteOptions{}))

	da, err := OpenMultiFile([]string{late, early}, "t_an", "time")
	require.NoError(t, err)
	require.Equal(t, []int{6, 2, 3}, da.Shape)
	require.Equal(t, []float64{0.5, 1.5, 2.5, 6.5, 7.5, 8.5}, da.Coords["time"].Values)
	require.Equal(t, 650.0, da.At(3, 0, 0))
	chunks, err := da.ChunkSizes("time")
	require.NoError(t, err)
	require.Equal(t, []int{3, 3}, chunks)

	_, err = OpenMultiFile([]string{late}, "t_an", "depth")
	require.ErrorIs(t, err, grid.ErrDimNotFound)
}

func TestOpenMultiFileShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.nc")
	b := filepath.Join(dir, "b.nc")
	require.NoError(t, Write(a, monthly(t, []float64{0.5}), WriteOptions{}))

	other, err := grid.New("t_an", []string{"time", "lat", "lon"}, []int{1, 3, 3})
	require.NoError(t, err)
	require.NoError(t, other.SetCoord("time", grid.NewCoord([]float64{1.5})))
	require.NoError(t, Write(b, other, WriteOptions{}))

	_, err = OpenMultiFile([]string{a, b}, "t_an", "time")
	require.ErrorIs(t, err, grid.ErrShapeMismatch)
}

func TestPackedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")
	h := cdf.NewHeader([]string{"x"}, []int{4})
	h.AddVariable("v", []string{"x"}, []int16{0})
	h.AddAttribute("v", "scale_factor", []float32{0.5})
	h.AddAttribute("v", "add_offset", []float32{10})
	h.AddAttribute("v", "_FillValue", []int16{-999})
	h.AddAttribute("v", "long_name", "packed")
	h.Define()

	f, err := os.Create(path)
	require.NoError(t, err)
	nc, err := cdf.Create(f, h)
	require.NoError(t, err)
	_, err = nc.Writer("v", []int{0}, []int{4}).Write([]int16{0, 2, -999, 4})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	da, err := ReadVariable(path, "v")
	require.NoError(t, err)
	require.Equal(t, 10.0, da.Data[0])
	require.Equal(t, 11.0, da.Data[1])
	require.True(t, math.IsNaN(da.Data[2]))
	require.Equal(t, 12.0, da.Data[3])
	require.Equal(t, "packed", da.Attrs["long_name"])
	require.Contains(t, da.Encoding, "scale_factor")
	require.NotContains(t, da.Coords, "x")
}

func TestUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	hdf := filepath.Join(dir, "woa.nc")
	require.NoError(t, os.WriteFile(hdf, []byte("\x89HDF\r\n\x1a\n"), 0644))
	_, err := ReadVariable(hdf, "t_an")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	txt := filepath.Join(dir, "notes.nc")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0644))
	_, err = ReadVariable(txt, "t_an")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
