package ard

import (
	"context"
	"fmt"

	"github.com/fishmip/ard-go/grid"
	"github.com/fishmip/ard-go/zarr"
	"github.com/sirupsen/logrus"
)

// CRS is the coordinate reference system attached to extracted regions
const CRS = "EPSG:4326"

// ExtractRegion opens a consolidated store, chunks it like mask along lat
// and lon, and keeps only the cells where mask is 1. Other cells become NaN
// and the shape is unchanged. The result is marked as a lon/lat grid in
// EPSG:4326.
func ExtractRegion(ctx context.Context, storePath string, mask *grid.DataArray, opts ...Option) (*grid.DataArray, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	latChunk, err := mask.UniformChunk("lat")
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	lonChunk, err := mask.UniformChunk("lon")
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	log := s.log.WithFields(logrus.Fields{"op": "extract", "store": storePath})

	store, err := zarr.OpenStore(ctx, storePath, zarr.ModeRead)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	da, err := zarr.ReadDataArray(store)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", storePath, err)
	}

	layout := map[string]grid.Chunk{
		"depth": grid.Fixed(s.chunks.Depth),
		"lat":   grid.Fixed(latChunk),
		"lon":   grid.Fixed(lonChunk),
	}
	if da.HasDim("month") {
		if n := da.Len("month"); n != 12 {
			return nil, fmt.Errorf("%w: %d months", ErrUnsupportedTimeSteps, n)
		}
		layout["month"] = grid.Fixed(s.chunks.Month)
		if err := da.SetCoord("month", grid.LabelCoord(CalendarMonths())); err != nil {
			return nil, err
		}
	}
	if da, err = da.Rechunk(layout); err != nil {
		return nil, err
	}

	valid := da.Count()
	if da, err = da.Where(mask, func(v float64) bool { return v == 1 }); err != nil {
		return nil, err
	}
	s.metrics.AddMasked(valid - da.Count())

	if err := da.SetSpatialDims("lon", "lat"); err != nil {
		return nil, err
	}
	da.WriteCRS(CRS)
	log.WithFields(logrus.Fields{"var": da.Name, "cells": da.Count()}).Info("extracted region")
	return da, nil
}
