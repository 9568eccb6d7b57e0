package ard

import (
	"context"
	"fmt"

	"github.com/fishmip/ard-go/boundary"
	"github.com/fishmip/ard-go/grid"
	"github.com/fishmip/ard-go/tabular"
	"github.com/sirupsen/logrus"
)

// ClipExport clips an extracted region to a boundary, keeping every cell
// the boundary touches and dropping rows and columns outside it, then writes
// it to target. Spatial reference and encoding metadata are not written.
// Parquet rows carry the array's attributes as extra columns.
func ClipExport(ctx context.Context, da *grid.DataArray, b *boundary.Boundary, target Target, opts ...Option) error {
	s, err := newSettings(opts)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrUnknownTarget
	}
	log := s.log.WithFields(logrus.Fields{"op": "export", "var": da.Name, "out": target.Location()})

	clipped, err := b.Clip(da, boundary.ClipOptions{AllTouched: true, Drop: true})
	if err != nil {
		return err
	}
	clipped.DropSpatialRef()
	clipped.Encoding = map[string]interface{}{}

	switch t := target.(type) {
	case ArrayStore:
		return exportStore(ctx, clipped, t, s, log)
	case Tabular:
		return exportTable(clipped, da.Attrs, t, s, log)
	}
	return fmt.Errorf("%w: %T", ErrUnknownTarget, target)
}

// exportStore rechunks every dimension holding several unequal chunks to
// the rechunk target before writing
func exportStore(ctx context.Context, da *grid.DataArray, t ArrayStore, s *settings, log logrus.FieldLogger) error {
	for i, dim := range da.Dims {
		cs, err := da.ChunkSizes(dim)
		if err != nil {
			return err
		}
		if len(cs) < 2 || da.HasEqualChunks(i) {
			continue
		}
		log.WithFields(logrus.Fields{"dim": dim, "chunks": cs, "target": s.rechunkTarget.String()}).
			Warnf("rechunking %s: dimension %q has unequal chunks", t.Path, dim)
		if da, err = da.Rechunk(map[string]grid.Chunk{dim: s.rechunkTarget}); err != nil {
			return err
		}
		s.metrics.Rechunked(dim)
	}

	stats, err := writeStore(ctx, da, t.Path, s)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"shape": da.Shape, "chunks": stats.Chunks, "bytes": stats.Bytes}).Info("wrote array store")
	return nil
}

func exportTable(da *grid.DataArray, attrs map[string]interface{}, t Tabular, s *settings, log logrus.FieldLogger) error {
	tbl, err := tabular.FromDataArray(da)
	if err != nil {
		return err
	}
	if err := tbl.WithConstants(attrs); err != nil {
		return err
	}
	if err := tabular.WriteParquet(t.Path, tbl); err != nil {
		return err
	}
	s.metrics.AddRows(tbl.NumRows())
	log.WithFields(logrus.Fields{"rows": tbl.NumRows(), "columns": len(tbl.Columns)}).Info("wrote table")
	return nil
}
