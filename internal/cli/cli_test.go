package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	ard "github.com/fishmip/ard-go"
	"github.com/fishmip/ard-go/boundary"
	"github.com/fishmip/ard-go/grid"
	"github.com/fishmip/ard-go/netcdf"
	"github.com/fishmip/ard-go/tabular"
	goshp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&logs)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// annualFile writes a single time step (time, depth, lat, lon) temperature
// file on a 4x4 one degree grid
func annualFile(t *testing.T, dir string) string {
	t.Helper()
	da, err := grid.New("t_an", []string{"time", "depth", "lat", "lon"}, []int{1, 2, 4, 4})
	require.NoError(t, err)
	da.Each(func(idx []int, _ float64) {
		da.Set(float64(idx[1]*100+idx[2]*10+idx[3]), idx...)
	})
	require.NoError(t, da.SetCoord("time", &grid.Coord{
		Values: []float64{0},
		Attrs:  map[string]interface{}{"units": "months since 1955-01-01"},
	}))
	require.NoError(t, da.SetCoord("depth", grid.NewCoord([]float64{0, 5})))
	require.NoError(t, da.SetCoord("lat", grid.NewCoord([]float64{-1.5, -0.5, 0.5, 1.5})))
	require.NoError(t, da.SetCoord("lon", grid.NewCoord([]float64{0.5, 1.5, 2.5, 3.5})))
	da.Attrs["units"] = "degrees_celsius"

	path := filepath.Join(dir, "woa_t00.nc")
	require.NoError(t, netcdf.Write(path, da, netcdf.WriteOptions{}))
	return path
}

// maskFile writes a netCDF (lat, lon) grid of ones
func maskFile(t *testing.T, dir string) string {
	t.Helper()
	m, err := grid.New("mask", []string{"lat", "lon"}, []int{4, 4})
	require.NoError(t, err)
	for i := range m.Data {
		m.Data[i] = 1
	}
	require.NoError(t, m.SetCoord("lat", grid.NewCoord([]float64{-1.5, -0.5, 0.5, 1.5})))
	require.NoError(t, m.SetCoord("lon", grid.NewCoord([]float64{0.5, 1.5, 2.5, 3.5})))
	path := filepath.Join(dir, "mask.nc")
	require.NoError(t, netcdf.Write(path, m, netcdf.WriteOptions{}))
	return path
}

func shapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "region.shp")
	e, err := shp.NewEncoderFromFields(path, goshp.POLYGON, goshp.StringField("NAME", 20))
	require.NoError(t, err)
	require.NoError(t, e.EncodeFields(geom.Polygon{{{X: 0, Y: -2}, {X: 4, Y: -2}, {X: 4, Y: 2}, {X: 0, Y: 2}}}, "all"))
	e.Close()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "region.prj"), []byte(boundary.WGS84), 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "ard dev\n", out)
}

func TestConsolidateAndInspect(t *testing.T) {
	dir := t.TempDir()
	annualFile(t, dir)
	store := filepath.Join(dir, "t_an.zarr")

	_, err := execute(t, "consolidate", "--var", "t_an", "--out", store, filepath.Join(dir, "*.nc"))
	require.NoError(t, err)

	out, err := execute(t, "inspect", store)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[0], "NAME"))
	require.True(t, strings.HasPrefix(lines[1], "t_an"))
	require.Contains(t, lines[1], "(depth, lat, lon)")
	require.Contains(t, lines[1], "zstd")
	require.True(t, strings.HasPrefix(lines[2], "depth"))
	require.True(t, strings.HasPrefix(lines[3], "lat"))
	require.True(t, strings.HasPrefix(lines[4], "lon"))
}

func TestRunJobFile(t *testing.T) {
	dir := t.TempDir()
	annualFile(t, dir)
	maskFile(t, dir)
	shapefile(t, dir)

	job := `consolidate:
  - files: ["woa_*.nc"]
    variable: t_an
    out: t_an.zarr
mask:
  - store: t_an.zarr
    mask: mask.nc
    boundary: region.shp
    out: region.parquet
metrics_file: ard.prom
`
	jobPath := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(jobPath, []byte(job), 0644))

	_, err := execute(t, "run", "--config", jobPath, "--log-level", "warn")
	require.NoError(t, err)

	table, err := tabular.ReadParquet(context.Background(), filepath.Join(dir, "region.parquet"))
	require.NoError(t, err)
	require.Equal(t, 32, table.NumRows())
	require.NotNil(t, table.Column("units"))

	prom, err := os.ReadFile(filepath.Join(dir, "ard.prom"))
	require.NoError(t, err)
	require.Contains(t, string(prom), "ard_rows_exported_total 32")
}

func TestMaskUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "mask",
		"--store", filepath.Join(dir, "t_an.zarr"),
		"--mask", maskFile(t, dir),
		"--boundary", shapefile(t, dir),
		"--out", filepath.Join(dir, "region.csv"))
	require.ErrorIs(t, err, ard.ErrUnknownTarget)
}

func TestRunNeedsJobFile(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
}

func TestExpandFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.nc", "a.nc", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	files, err := expandFiles([]string{filepath.Join(dir, "*.nc"), "plain.nc"})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.nc"), filepath.Join(dir, "b.nc"), "plain.nc"}, files)

	_, err = expandFiles([]string{filepath.Join(dir, "*.grib")})
	require.ErrorIs(t, err, ard.ErrNoInputFiles)
	_, err = expandFiles(nil)
	require.ErrorIs(t, err, ard.ErrNoInputFiles)
}
