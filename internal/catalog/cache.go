package catalog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// localSuffixes are the file kinds that can stand in for a remote raster archive.
var localSuffixes = []string{".asc.gz", ".zip", ".asc", ".tif"}

// AlreadyMaterialized reports whether every ref has a local counterpart in dir,
// comparing canonical "<variable>_<year>" stems. An empty dir is never materialized.
func AlreadyMaterialized(refs []domain.RemoteRef, dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	local := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() || !hasSuffix(e.Name(), localSuffixes) {
			continue
		}
		local[domain.CanonicalStem(e.Name())] = struct{}{}
	}
	if len(local) == 0 {
		return false
	}

	for _, ref := range refs {
		if _, ok := local[domain.CanonicalStem(ref.FileName())]; !ok {
			return false
		}
	}
	return true
}

var errFound = errors.New("found")

// LocalRastersReady reports whether dir, or any directory below it, holds at
// least one raster or raster archive.
func LocalRastersReady(dir string) bool {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && hasSuffix(d.Name(), localSuffixes) && !strings.HasPrefix(d.Name(), ".") {
			return errFound
		}
		return nil
	})
	return errors.Is(err, errFound)
}
