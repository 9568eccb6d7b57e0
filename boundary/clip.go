package boundary

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/fishmip/ard-go/grid"
)

// ClipOptions configures Clip
type ClipOptions struct {
	// AllTouched keeps every cell the boundary touches. Otherwise a cell is
	// kept only when its centre lies inside or on the boundary.
	AllTouched bool
	// Drop trims the result to the rows and columns holding kept cells
	Drop bool
}

// Clip masks an array to the boundary, setting cells outside it to NaN. The
// array's spatial dimensions default to lon and lat. Grid coordinates are
// cell centres; cell edges lie halfway between neighbouring centres.
func (b *Boundary) Clip(da *grid.DataArray, opts ClipOptions) (*grid.DataArray, error) {
	xdim, ydim := da.SpatialDims()
	if xdim == "" || ydim == "" {
		xdim, ydim = "lon", "lat"
	}
	if da.CRS() == "" {
		return nil, ErrNoCRS
	}
	dst, err := ParseCRS(da.CRS())
	if err != nil {
		return nil, err
	}
	polys, err := b.project(dst)
	if err != nil {
		return nil, err
	}

	xs, err := centres(da, xdim)
	if err != nil {
		return nil, err
	}
	ys, err := centres(da, ydim)
	if err != nil {
		return nil, err
	}

	touched := make([][]bool, len(ys))
	rows, cols := span{lo: len(ys)}, span{lo: len(xs)}
	for j := range ys {
		touched[j] = make([]bool, len(xs))
		for i := range xs {
			c := cellBounds(xs, ys, i, j)
			if !cellTouched(c, polys, opts.AllTouched) {
				continue
			}
			touched[j][i] = true
			rows.add(j)
			cols.add(i)
		}
	}
	if rows.empty() {
		return nil, ErrNoDataInBounds
	}

	xaxis, _ := da.AxisNum(xdim)
	yaxis, _ := da.AxisNum(ydim)
	out := da.Copy()
	out.Each(func(idx []int, _ float64) {
		if !touched[idx[yaxis]][idx[xaxis]] {
			out.Set(math.NaN(), idx...)
		}
	})

	if opts.Drop {
		if out, err = out.Slice(ydim, rows.lo, rows.hi+1); err != nil {
			return nil, err
		}
		if out, err = out.Slice(xdim, cols.lo, cols.hi+1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type span struct{ lo, hi int }

func (s *span) add(i int) {
	if i < s.lo {
		s.lo = i
	}
	if i > s.hi {
		s.hi = i
	}
}

func (s span) empty() bool { return s.lo > s.hi }

func centres(da *grid.DataArray, dim string) ([]float64, error) {
	if !da.HasDim(dim) {
		return nil, fmt.Errorf("%w: spatial dimension %q", grid.ErrDimNotFound, dim)
	}
	c, ok := da.Coords[dim]
	if !ok || c.IsLabel() {
		return nil, fmt.Errorf("spatial dimension %q has no numeric coordinate", dim)
	}
	if len(c.Values) < 2 {
		return nil, fmt.Errorf("%w: %q has %d", ErrDegenerateGrid, dim, len(c.Values))
	}
	return c.Values, nil
}

// gridSpacing returns the size of the cell at index i given cell centres
func gridSpacing(points []float64, i int) float64 {
	if i == 0 {
		return points[1] - points[0]
	} else if i == len(points)-1 {
		return points[len(points)-1] - points[len(points)-2]
	}
	return (points[i+1] - points[i-1]) / 2
}

func cellBounds(xs, ys []float64, i, j int) *geom.Bounds {
	dx := math.Abs(gridSpacing(xs, i))
	dy := math.Abs(gridSpacing(ys, j))
	return &geom.Bounds{
		Min: geom.Point{X: xs[i] - dx/2, Y: ys[j] - dy/2},
		Max: geom.Point{X: xs[i] + dx/2, Y: ys[j] + dy/2},
	}
}

func cellTouched(c *geom.Bounds, polys []geom.Polygonal, allTouched bool) bool {
	centre := geom.Point{X: (c.Min.X + c.Max.X) / 2, Y: (c.Min.Y + c.Max.Y) / 2}
	for _, p := range polys {
		if !c.Overlaps(p.Bounds()) {
			continue
		}
		if centre.Within(p) != geom.Outside {
			return true
		}
		if allTouched && intersects(c, p) {
			return true
		}
	}
	return false
}

// intersects reports whether the interiors of a cell and a polygon meet:
// a cell corner lies inside the polygon, a polygon vertex lies inside the
// cell, or an edge of one crosses an edge of the other.
func intersects(c *geom.Bounds, p geom.Polygonal) bool {
	corners := []geom.Point{
		c.Min,
		{X: c.Max.X, Y: c.Min.Y},
		c.Max,
		{X: c.Min.X, Y: c.Max.Y},
	}
	for _, pt := range corners {
		if pt.Within(p) == geom.Inside {
			return true
		}
	}
	for _, poly := range p.Polygons() {
		for _, ring := range poly {
			for k, v := range ring {
				if v.X > c.Min.X && v.X < c.Max.X && v.Y > c.Min.Y && v.Y < c.Max.Y {
					return true
				}
				next := ring[(k+1)%len(ring)]
				for e := range corners {
					if crosses(v, next, corners[e], corners[(e+1)%len(corners)]) {
						return true
					}
				}
			}
		}
	}
	return false
}

// crosses reports whether segments ab and cd properly intersect
func crosses(a, b, c, d geom.Point) bool {
	d1 := orientation(c, d, a)
	d2 := orientation(c, d, b)
	d3 := orientation(a, b, c)
	d4 := orientation(a, b, d)
	return d1*d2 < 0 && d3*d4 < 0
}

func orientation(a, b, c geom.Point) float64 {
	v := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
