package ard

import (
	"errors"

	"github.com/fishmip/ard-go/netcdf"
)

var (
	// ErrNoInputFiles is returned by Consolidate when given no files
	ErrNoInputFiles = errors.New("no input files")
	// ErrVariableNotFound is returned when an input file lacks the requested
	// variable
	ErrVariableNotFound = netcdf.ErrVariableNotFound
	// ErrMalformedTimeUnits is returned when a time axis' units attribute is
	// missing or does not read "<unit> since <reference date>"
	ErrMalformedTimeUnits = errors.New("malformed time units")
	// ErrUnsupportedTimeSteps is returned for time axes that are neither a
	// single snapshot nor twelve months
	ErrUnsupportedTimeSteps = errors.New("unsupported number of time steps")
	// ErrUnknownTarget is returned for output paths that are neither Zarr
	// stores nor Parquet files
	ErrUnknownTarget = errors.New("unknown output target")
)
