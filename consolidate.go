package ard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fishmip/ard-go/grid"
	"github.com/fishmip/ard-go/netcdf"
	"github.com/fishmip/ard-go/zarr"
	"github.com/sirupsen/logrus"
)

// Consolidate merges one variable of several netCDF files along time and
// writes it as a consolidated Zarr store at out, replacing any existing
// store. Twelve time steps become a month dimension labelled with month
// names; a single time step is dropped. Files are ordered by their first
// time value, and time values are never calendar-decoded.
func Consolidate(ctx context.Context, files []string, varName, out string, opts ...Option) error {
	s, err := newSettings(opts)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNoInputFiles
	}
	log := s.log.WithFields(logrus.Fields{"op": "consolidate", "var": varName, "out": out})
	log.WithField("files", len(files)).Debug("opening inputs")

	da, err := netcdf.OpenMultiFile(files, varName, "time")
	if err != nil {
		return err
	}

	switch n := da.Len("time"); n {
	case 12:
		if da, err = toMonths(da); err != nil {
			return err
		}
		da, err = da.Rechunk(map[string]grid.Chunk{
			"month": grid.Fixed(s.chunks.Month),
			"depth": grid.Fixed(s.chunks.Depth),
			"lat":   grid.Fixed(s.chunks.Lat),
			"lon":   grid.Fixed(s.chunks.Lon),
		})
	case 1:
		if da, err = da.Isel("time", 0); err != nil {
			return err
		}
		da, err = da.Rechunk(map[string]grid.Chunk{
			"depth": grid.Fixed(s.chunks.Depth),
			"lat":   grid.Fixed(s.chunks.Lat),
			"lon":   grid.Fixed(s.chunks.Lon),
		})
	default:
		return fmt.Errorf("%w: %d, want 1 or 12", ErrUnsupportedTimeSteps, n)
	}
	if err != nil {
		return err
	}
	// the source paths are not part of the stored array
	da.Encoding = map[string]interface{}{}

	if !zarr.IsURL(out) {
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
	}
	stats, err := writeStore(ctx, da, out, s)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"dims": da.Dims, "shape": da.Shape, "chunks": stats.Chunks}).Info("consolidated")
	return nil
}

// toMonths replaces a twelve step time axis with month names counted from
// the reference date of its units and renames it month
func toMonths(da *grid.DataArray) (*grid.DataArray, error) {
	c, ok := da.Coords["time"]
	if !ok {
		return nil, fmt.Errorf("%w: time has no coordinate", ErrMalformedTimeUnits)
	}
	units, _ := c.Attrs["units"].(string)
	labels, err := MonthLabels(units)
	if err != nil {
		return nil, err
	}
	if err := da.SetCoord("time", grid.LabelCoord(labels)); err != nil {
		return nil, err
	}
	if err := da.RenameDim("time", "month"); err != nil {
		return nil, err
	}
	return da, nil
}

// writeStore writes da to a freshly cleared store at location
func writeStore(ctx context.Context, da *grid.DataArray, location string, s *settings) (zarr.WriteStats, error) {
	store, err := zarr.OpenStore(ctx, location, zarr.ModeWrite)
	if err != nil {
		return zarr.WriteStats{}, err
	}
	stats, err := zarr.WriteDataArray(store, da, zarr.WriteOptions{Compressor: s.compressor})
	s.metrics.AddChunks(stats.Chunks, stats.Bytes)
	if err != nil {
		store.Close()
		return stats, fmt.Errorf("writing %s: %w", location, err)
	}
	return stats, store.Close()
}
