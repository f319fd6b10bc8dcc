package domain

import "errors"

var (
	ErrInvalidName      = errors.New("invalid canonical raster name")
	ErrMissingMember    = errors.New("no .asc file found in archive")
	ErrAmbiguousArchive = errors.New("archive contains more than one .asc file")
	ErrMissingCRS       = errors.New("input CRS is undefined")
	ErrNoRasters        = errors.New("no raster files found")
	ErrListing          = errors.New("catalog listing failed")
)
