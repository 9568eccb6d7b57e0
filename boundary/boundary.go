// Package boundary loads polygon boundaries with their spatial reference and
// clips gridded arrays to them.
package boundary

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
)

var (
	// ErrNoCRS is returned when clipping an array that has no coordinate
	// reference system
	ErrNoCRS = errors.New("array has no coordinate reference system")
	// ErrNoDataInBounds is returned when no grid cell is touched by the
	// boundary
	ErrNoDataInBounds = errors.New("no data found in bounds")
	// ErrDegenerateGrid is returned when a spatial dimension has fewer than
	// two points, so cell sizes cannot be derived
	ErrDegenerateGrid = errors.New("spatial dimensions need at least two points")
)

// WGS84 is the proj4 definition of geographic longitude/latitude on the
// WGS84 datum
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

// Boundary is a set of polygons in one spatial reference
type Boundary struct {
	Polygons []geom.Polygonal
	// SR is nil when the boundary's reference is unknown. Such boundaries
	// are assumed to share the reference of the arrays they clip.
	SR *proj.SR
}

// New creates a boundary from polygons
func New(polygons []geom.Polygonal, sr *proj.SR) *Boundary {
	return &Boundary{Polygons: polygons, SR: sr}
}

// Load reads the polygons of a shapefile and the spatial reference of its
// .prj sidecar. Non-polygon shapes are an error. A missing .prj leaves the
// boundary without a spatial reference.
func Load(path string) (*Boundary, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile %s: %w", path, err)
	}
	defer d.Close()

	b := &Boundary{}
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		switch t := g.(type) {
		case geom.Polygonal:
			b.Polygons = append(b.Polygons, t)
		case nil:
		default:
			return nil, fmt.Errorf("%s: unsupported shape %T, want polygons", path, g)
		}
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("decoding shapefile %s: %w", path, err)
	}

	sr, err := d.SR()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading projection of %s: %w", path, err)
	}
	b.SR = sr
	return b, nil
}

// Bounds is the extent of every polygon
func (b *Boundary) Bounds() *geom.Bounds {
	bounds := geom.NewBounds()
	for _, p := range b.Polygons {
		bounds.Extend(p.Bounds())
	}
	return bounds
}

// ParseCRS parses a coordinate reference system written as an EPSG code for
// geographic WGS84, a proj4 string or WKT
func ParseCRS(code string) (*proj.SR, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "":
		return nil, ErrNoCRS
	case "EPSG:4326", "WGS84", "CRS84", "OGC:CRS84":
		return proj.Parse(WGS84)
	}
	sr, err := proj.Parse(code)
	if err != nil {
		return nil, fmt.Errorf("parsing CRS %q: %w", code, err)
	}
	return sr, nil
}

// geographicWGS84 reports whether sr is longitude/latitude on WGS84
func geographicWGS84(sr *proj.SR) bool {
	return (sr.Name == "longlat" || sr.Name == "latlong") && strings.EqualFold(sr.DatumCode, "wgs84")
}

// project returns the boundary's polygons in dst. Polygons already in a
// geographic WGS84 reference are returned as is.
func (b *Boundary) project(dst *proj.SR) ([]geom.Polygonal, error) {
	if b.SR == nil || (geographicWGS84(b.SR) && geographicWGS84(dst)) {
		return b.Polygons, nil
	}
	t, err := b.SR.NewTransform(dst)
	if err != nil {
		return nil, err
	}
	out := make([]geom.Polygonal, 0, len(b.Polygons))
	for _, p := range b.Polygons {
		g, err := p.Transform(t)
		if err != nil {
			return nil, fmt.Errorf("reprojecting boundary: %w", err)
		}
		out = append(out, g.(geom.Polygonal))
	}
	return out, nil
}
