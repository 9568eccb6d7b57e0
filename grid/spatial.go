package grid

// spatialRef records which dimensions hold the x (longitude) and y
// (latitude) axes and the coordinate reference system of the array
type spatialRef struct {
	x, y string
	crs  string
}

// SetSpatialDims marks x and y as the horizontal dimensions
func (da *DataArray) SetSpatialDims(x, y string) error {
	if _, err := da.AxisNum(x); err != nil {
		return err
	}
	if _, err := da.AxisNum(y); err != nil {
		return err
	}
	da.spatial.x, da.spatial.y = x, y
	return nil
}

// SpatialDims returns the horizontal dimensions, empty when unset
func (da *DataArray) SpatialDims() (x, y string) {
	return da.spatial.x, da.spatial.y
}

// WriteCRS attaches a coordinate reference system, eg. "EPSG:4326"
func (da *DataArray) WriteCRS(crs string) { da.spatial.crs = crs }

func (da *DataArray) CRS() string { return da.spatial.crs }

// DropSpatialRef removes the CRS and spatial dimension roles
func (da *DataArray) DropSpatialRef() { da.spatial = spatialRef{} }
