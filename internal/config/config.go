// Package config loads batch job files for the ard command.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	ard "github.com/fishmip/ard-go"
	"github.com/fishmip/ard-go/grid"
	"github.com/fishmip/ard-go/zarr"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	SupportedSchema = "v1"
	// EnvPrefix starts environment overrides. Nested keys are separated by
	// "__", so ARD__CHUNKS__LAT sets chunks.lat.
	EnvPrefix = "ARD__"
)

type Chunks struct {
	Month int `koanf:"month"`
	Depth int `koanf:"depth"`
	Lat   int `koanf:"lat"`
	Lon   int `koanf:"lon"`
}

type Compressor struct {
	ID    string `koanf:"id"` // none|zstd|zlib|gzip|lz4
	Level int    `koanf:"level"`
}

// ConsolidateJob merges the files matching Files into one store at Out
type ConsolidateJob struct {
	// Files are paths or glob patterns
	Files    []string `koanf:"files"`
	Variable string   `koanf:"variable"`
	Out      string   `koanf:"out"`
}

// MaskJob extracts the cells of Store selected by Mask and exports those
// within Boundary to Out
type MaskJob struct {
	Store string `koanf:"store"`
	// Mask is a Zarr store or a netCDF file holding a 0/1 lat/lon grid
	Mask         string `koanf:"mask"`
	MaskVariable string `koanf:"mask_variable"`
	// Boundary is a polygon shapefile
	Boundary string `koanf:"boundary"`
	// Out ends in zarr or parquet
	Out string `koanf:"out"`
}

type Config struct {
	SchemaVersion string `koanf:"schema_version"`
	LogLevel      string `koanf:"log_level"`
	LogJSON       bool   `koanf:"log_json"`
	// MetricsFile receives job counters in the Prometheus text format
	MetricsFile   string     `koanf:"metrics_file"`
	Chunks        Chunks     `koanf:"chunks"`
	RechunkTarget string     `koanf:"rechunk_target"`
	Compressor    Compressor `koanf:"compressor"`

	Consolidate []ConsolidateJob `koanf:"consolidate"`
	Mask        []MaskJob        `koanf:"mask"`
}

// Default is the configuration used without a job file
func Default() Config {
	var c Config
	applyDefaults(&c)
	return c
}

// Load merges the YAML job file at path, when given, with ARD__ environment
// variables. Relative paths in jobs are resolved against the job file's
// directory.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	if sv := k.String("schema_version"); sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("schema_version %q not supported (want %q)", sv, SupportedSchema)
	}

	err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if path != "" {
		cfg.resolve(filepath.Dir(path))
	}
	return cfg, cfg.Validate()
}

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	d := ard.DefaultChunkSizes
	if c.Chunks.Month == 0 {
		c.Chunks.Month = d.Month
	}
	if c.Chunks.Depth == 0 {
		c.Chunks.Depth = d.Depth
	}
	if c.Chunks.Lat == 0 {
		c.Chunks.Lat = d.Lat
	}
	if c.Chunks.Lon == 0 {
		c.Chunks.Lon = d.Lon
	}
	if c.RechunkTarget == "" {
		c.RechunkTarget = ard.DefaultRechunkTarget
	}
	if c.Compressor.ID == "" {
		c.Compressor.ID = zarr.CodecZstd
	}
	if c.Compressor.ID == zarr.CodecZstd && c.Compressor.Level == 0 {
		c.Compressor.Level = 1
	}
	for i := range c.Mask {
		if c.Mask[i].MaskVariable == "" {
			c.Mask[i].MaskVariable = "mask"
		}
	}
}

// resolve makes local job paths relative to dir absolute
func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || zarr.IsURL(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if c.MetricsFile != "" {
		c.MetricsFile = abs(c.MetricsFile)
	}
	for i := range c.Consolidate {
		j := &c.Consolidate[i]
		for n := range j.Files {
			j.Files[n] = abs(j.Files[n])
		}
		j.Out = abs(j.Out)
	}
	for i := range c.Mask {
		j := &c.Mask[i]
		j.Store = abs(j.Store)
		j.Mask = abs(j.Mask)
		j.Boundary = abs(j.Boundary)
		j.Out = abs(j.Out)
	}
}

// Validate checks settings and jobs
func (c Config) Validate() error {
	for name, n := range map[string]int{"month": c.Chunks.Month, "depth": c.Chunks.Depth, "lat": c.Chunks.Lat, "lon": c.Chunks.Lon} {
		if n < 1 {
			return fmt.Errorf("chunks.%s: invalid size %d", name, n)
		}
	}
	if _, err := c.Options(); err != nil {
		return err
	}
	for i, j := range c.Consolidate {
		if len(j.Files) == 0 || j.Variable == "" || j.Out == "" {
			return fmt.Errorf("consolidate job %d: files, variable and out are required", i)
		}
	}
	for i, j := range c.Mask {
		if j.Store == "" || j.Mask == "" || j.Boundary == "" || j.Out == "" {
			return fmt.Errorf("mask job %d: store, mask, boundary and out are required", i)
		}
		if _, err := ard.ParseTarget(j.Out); err != nil {
			return fmt.Errorf("mask job %d: %w", i, err)
		}
	}
	return nil
}

// Options converts the chunking and compression settings to operation
// options
func (c Config) Options() ([]ard.Option, error) {
	target, err := grid.ParseChunk(c.RechunkTarget)
	if err != nil {
		return nil, fmt.Errorf("rechunk_target: %w", err)
	}
	comp, err := zarr.ParseCompressor(c.Compressor.ID, c.Compressor.Level)
	if err != nil {
		return nil, fmt.Errorf("compressor: %w", err)
	}
	return []ard.Option{
		ard.WithChunkSizes(ard.ChunkSizes{
			Month: c.Chunks.Month,
			Depth: c.Chunks.Depth,
			Lat:   c.Chunks.Lat,
			Lon:   c.Chunks.Lon,
		}),
		ard.WithRechunkTarget(target),
		ard.WithCompressor(comp),
	}, nil
}
