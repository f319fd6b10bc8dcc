package domain

import (
	"path"
	"strings"
)

// AssetState tracks how far a raster has been processed.
type AssetState int

const (
	StateRemote AssetState = iota
	StateArchived
	StateDecompressed
	StateGeoreferenced
)

func (s AssetState) String() string {
	switch s {
	case StateRemote:
		return "remote"
	case StateArchived:
		return "archived"
	case StateDecompressed:
		return "decompressed"
	case StateGeoreferenced:
		return "georeferenced"
	default:
		return "unknown"
	}
}

// RemoteRef is one downloadable file in the DWD catalog.
type RemoteRef struct {
	Variable string
	URL      string
}

// FileName is the last path element of the reference URL.
func (r RemoteRef) FileName() string {
	u := r.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return path.Base(u)
}

// RasterAsset is one variable for one year on local disk.
type RasterAsset struct {
	Path  string
	State AssetState
}

// Stem is the canonical "<variable>_<year>" name of the asset.
func (a RasterAsset) Stem() string {
	return CanonicalStem(a.Path)
}
