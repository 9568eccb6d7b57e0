// Package ard converts gridded ocean climatologies into analysis-ready data:
// Consolidate merges netCDF downloads into one chunked Zarr store,
// ExtractRegion masks a store to regional model cells, and ClipExport clips
// the result to a boundary and writes it as a Zarr store or a Parquet table.
package ard

import (
	"fmt"

	"github.com/fishmip/ard-go/grid"
	"github.com/fishmip/ard-go/telemetry"
	"github.com/fishmip/ard-go/zarr"
	"github.com/sirupsen/logrus"
)

// ChunkSizes are the fixed chunk lengths of the month, depth, lat and lon
// dimensions of consolidated stores. Region extraction takes lat and lon
// chunks from its mask instead.
type ChunkSizes struct {
	Month int
	Depth int
	Lat   int
	Lon   int
}

// DefaultChunkSizes chunk a monthly World Ocean Atlas grid into whole years
// of all 57 standard depths
var DefaultChunkSizes = ChunkSizes{Month: 12, Depth: 57, Lat: 120, Lon: 240}

// DefaultRechunkTarget is the chunk byte budget for dimensions left with
// unequal chunks by clipping
const DefaultRechunkTarget = "200MB"

func (c ChunkSizes) validate() error {
	for name, n := range map[string]int{"month": c.Month, "depth": c.Depth, "lat": c.Lat, "lon": c.Lon} {
		if n < 1 {
			return fmt.Errorf("invalid %s chunk size %d", name, n)
		}
	}
	return nil
}

type settings struct {
	chunks        ChunkSizes
	rechunkTarget grid.Chunk
	compressor    *zarr.CompressionMeta
	log           logrus.FieldLogger
	metrics       *telemetry.Metrics
}

// Option configures an operation
type Option func(*settings) error

func newSettings(opts []Option) (*settings, error) {
	target, _ := grid.ParseChunk(DefaultRechunkTarget)
	s := &settings{
		chunks:        DefaultChunkSizes,
		rechunkTarget: target,
		compressor:    zarr.DefaultCompressor(),
		log:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WithChunkSizes replaces DefaultChunkSizes
func WithChunkSizes(c ChunkSizes) Option {
	return func(s *settings) error {
		if err := c.validate(); err != nil {
			return err
		}
		s.chunks = c
		return nil
	}
}

// WithRechunkTarget sets the chunking applied to dimensions with unequal
// chunks before an array store export, eg. grid.ParseChunk("200MB")
func WithRechunkTarget(c grid.Chunk) Option {
	return func(s *settings) error {
		s.rechunkTarget = c
		return nil
	}
}

// WithCompressor sets the codec of written chunks. nil writes them raw.
func WithCompressor(c *zarr.CompressionMeta) Option {
	return func(s *settings) error {
		s.compressor = c
		return nil
	}
}

// WithLogger sets the logger, logrus.StandardLogger() by default
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *settings) error {
		if l == nil {
			return fmt.Errorf("nil logger")
		}
		s.log = l
		return nil
	}
}

// WithMetrics counts the work done into m
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *settings) error {
		s.metrics = m
		return nil
	}
}
