package raster

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// sniffLen is the number of leading bytes filetype needs to identify a container.
const sniffLen = 262

// Normalizer turns downloaded DWD archives into canonically named .asc grids.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize decompresses path next to itself as "<variable>_<year>.asc".
// The container format is detected from the file content; DWD publishes some
// ZIP archives under a ".asc.gz" name. Files that already are .asc or GeoTIFF
// rasters are returned unchanged.
func (n *Normalizer) Normalize(path string) (domain.RasterAsset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc":
		return domain.RasterAsset{Path: path, State: domain.StateDecompressed}, nil
	case ".tif", ".tiff":
		return domain.RasterAsset{Path: path, State: domain.StateGeoreferenced}, nil
	}

	kind, err := sniff(path)
	if err != nil {
		return domain.RasterAsset{}, err
	}

	dst := filepath.Join(filepath.Dir(path), domain.CanonicalName(path))

	switch kind {
	case "tif":
		n.logger.Debug("raster already georeferenced", "path", path)
		return domain.RasterAsset{Path: path, State: domain.StateGeoreferenced}, nil
	case "zip":
		err = extractSingleGrid(path, dst)
	default:
		// Anything else is treated as gzip; a wrong guess surfaces as a gzip header error.
		err = gunzip(path, dst)
	}
	if err != nil {
		return domain.RasterAsset{}, fmt.Errorf("normalize %s: %w", filepath.Base(path), err)
	}

	n.logger.Debug("raster decompressed", "source", path, "path", dst, "format", kind)
	return domain.RasterAsset{Path: dst, State: domain.StateDecompressed}, nil
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	nr, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read archive header: %w", err)
	}

	kind, err := filetype.Match(head[:nr])
	if err != nil || kind == filetype.Unknown {
		return "", nil
	}
	return kind.Extension, nil
}

// extractSingleGrid copies the only .asc member of a ZIP archive to dst.
func extractSingleGrid(path, dst string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	var member *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".asc") {
			continue
		}
		if member != nil {
			return fmt.Errorf("%w: %s and %s", domain.ErrAmbiguousArchive, member.Name, f.Name)
		}
		member = f
	}
	if member == nil {
		return domain.ErrMissingMember
	}

	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("open member %s: %w", member.Name, err)
	}
	defer rc.Close()

	return writeAtomic(dst, rc)
}

func gunzip(path, dst string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()

	return writeAtomic(dst, zr)
}

// writeAtomic streams r into a temporary sibling of dst and renames it into
// place, so an interrupted run never leaves a truncated grid under the final name.
func writeAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("decompress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
