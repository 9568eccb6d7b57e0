package boundary

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/fishmip/ard-go/grid"
	goshp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

func box(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

// writeShapefile writes polygons to dir/name.shp, with a .prj when prj is
// not empty
func writeShapefile(t *testing.T, dir, name, prj string, polys ...geom.Polygon) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	e, err := shp.NewEncoderFromFields(path, goshp.POLYGON, goshp.StringField("NAME", 20))
	require.NoError(t, err)
	for i, p := range polys {
		require.NoError(t, e.EncodeFields(p, string(rune('a'+i))))
	}
	e.Close()
	if prj != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".prj"), []byte(prj), 0644))
	}
	return path
}

// field is a (depth, lat, lon) grid of unit cells; lon cell i spans [i, i+1]
// and lat cell j spans [j-2, j-1]
func field(t *testing.T) *grid.DataArray {
	t.Helper()
	data := make([]float64, 20)
	for i := range data {
		data[i] = float64(i)
	}
	da, err := grid.FromData("to", []string{"depth", "lat", "lon"}, []int{1, 4, 5}, data)
	require.NoError(t, err)
	require.NoError(t, da.SetCoord("lat", grid.NewCoord([]float64{-1.5, -0.5, 0.5, 1.5})))
	require.NoError(t, da.SetCoord("lon", grid.NewCoord([]float64{0.5, 1.5, 2.5, 3.5, 4.5})))
	require.NoError(t, da.SetSpatialDims("lon", "lat"))
	da.WriteCRS("EPSG:4326")
	return da
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "region", WGS84, box(1.2, -0.8, 2.6, 0.3), box(3.2, 0.2, 3.4, 0.4))

	b, err := Load(path)
	require.NoError(t, err)
	require.Len(t, b.Polygons, 2)
	require.NotNil(t, b.SR)
	require.True(t, geographicWGS84(b.SR))
	bounds := b.Bounds()
	require.InDelta(t, 1.2, bounds.Min.X, 1e-9)
	require.InDelta(t, 0.4, bounds.Max.Y, 1e-9)

	noprj := writeShapefile(t, dir, "bare", "", box(0, 0, 1, 1))
	b, err = Load(noprj)
	require.NoError(t, err)
	require.Nil(t, b.SR)

	_, err = Load(filepath.Join(dir, "missing.shp"))
	require.Error(t, err)
}

func TestParseCRS(t *testing.T) {
	for _, code := range []string{"EPSG:4326", "epsg:4326", "WGS84", WGS84} {
		sr, err := ParseCRS(code)
		require.NoError(t, err, code)
		require.True(t, geographicWGS84(sr), code)
	}
	_, err := ParseCRS("")
	require.ErrorIs(t, err, ErrNoCRS)
}

func TestClipAllTouched(t *testing.T) {
	sr, err := ParseCRS("EPSG:4326")
	require.NoError(t, err)
	b := New([]geom.Polygonal{box(1.2, -0.8, 2.6, 0.3)}, sr)
	da := field(t)

	out, err := b.Clip(da, ClipOptions{AllTouched: true, Drop: true})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2}, out.Shape)
	require.Equal(t, []float64{-0.5, 0.5}, out.Coords["lat"].Values)
	require.Equal(t, []float64{1.5, 2.5}, out.Coords["lon"].Values)
	require.Equal(t, []float64{6, 7, 11, 12}, out.Data)
	require.Equal(t, "EPSG:4326", out.CRS())

	// centre-only clipping keeps the cells whose centres fall inside
	out, err = b.Clip(da, ClipOptions{Drop: true})
	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 2}, out.Shape)
	require.Equal(t, []float64{6, 7}, out.Data)

	// without Drop the shape is kept and the rest is masked
	out, err = b.Clip(da, ClipOptions{AllTouched: true})
	require.NoError(t, err)
	require.Equal(t, da.Shape, out.Shape)
	require.Equal(t, 4, out.Count())
	require.True(t, math.IsNaN(out.At(0, 0, 0)))
	require.Equal(t, 12.0, out.At(0, 2, 2))
}

// mercator is a projected reference in metres on the WGS84 datum
const mercator = "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +ellps=WGS84 +datum=WGS84 +units=m +no_defs"

func TestClipProjectedBoundary(t *testing.T) {
	wgs, err := ParseCRS("EPSG:4326")
	require.NoError(t, err)
	merc, err := ParseCRS(mercator)
	require.NoError(t, err)
	require.False(t, geographicWGS84(merc))

	toMerc, err := wgs.NewTransform(merc)
	require.NoError(t, err)
	g, err := box(1.2, -0.8, 2.6, 0.3).Transform(toMerc)
	require.NoError(t, err)
	projected := g.(geom.Polygon)
	// metres, not degrees
	require.Greater(t, projected.Bounds().Max.X, 1e5)

	path := writeShapefile(t, t.TempDir(), "merc", mercator, projected)
	b, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, b.SR)
	require.False(t, geographicWGS84(b.SR))

	polys, err := b.project(wgs)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	bounds := polys[0].Bounds()
	require.InDelta(t, 1.2, bounds.Min.X, 1e-6)
	require.InDelta(t, -0.8, bounds.Min.Y, 1e-6)
	require.InDelta(t, 2.6, bounds.Max.X, 1e-6)
	require.InDelta(t, 0.3, bounds.Max.Y, 1e-6)

	// the same cells as the boundary drawn in degrees
	out, err := b.Clip(field(t), ClipOptions{AllTouched: true, Drop: true})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2}, out.Shape)
	require.Equal(t, []float64{6, 7, 11, 12}, out.Data)
}

func TestClipSmallPolygon(t *testing.T) {
	// a polygon inside one cell, away from its centre
	b := New([]geom.Polygonal{box(3.2, 0.2, 3.4, 0.4)}, nil)
	da := field(t)

	out, err := b.Clip(da, ClipOptions{AllTouched: true, Drop: true})
	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 1}, out.Shape)
	require.Equal(t, []float64{13}, out.Data)

	_, err = b.Clip(da, ClipOptions{Drop: true})
	require.ErrorIs(t, err, ErrNoDataInBounds)
}

func TestClipCrossingEdge(t *testing.T) {
	// a thin diagonal sliver crossing cells without containing any corner
	// or centre of the middle cell
	sliver := geom.Polygon{{
		{X: 0.9, Y: -1.95}, {X: 3.1, Y: -1.05}, {X: 3.1, Y: -1.04}, {X: 0.9, Y: -1.94},
	}}
	b := New([]geom.Polygonal{sliver}, nil)
	out, err := b.Clip(field(t), ClipOptions{AllTouched: true, Drop: true})
	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 4}, out.Shape)
	require.Equal(t, []float64{0, 1, 2, 3}, out.Data)
}

func TestClipErrors(t *testing.T) {
	b := New([]geom.Polygonal{box(1.2, -0.8, 2.6, 0.3)}, nil)

	da := field(t)
	da.DropSpatialRef()
	_, err := b.Clip(da, ClipOptions{AllTouched: true})
	require.ErrorIs(t, err, ErrNoCRS)

	da = field(t)
	da, err = da.Slice("lat", 0, 1)
	require.NoError(t, err)
	_, err = b.Clip(da, ClipOptions{AllTouched: true})
	require.ErrorIs(t, err, ErrDegenerateGrid)

	far := New([]geom.Polygonal{box(50, 50, 51, 51)}, nil)
	_, err = far.Clip(field(t), ClipOptions{AllTouched: true})
	require.ErrorIs(t, err, ErrNoDataInBounds)
}
