package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Kind tags the supported input variants.
type Kind int

const (
	KindZip Kind = iota + 1
	KindShapefile
	KindGeoPackage
	KindGeoJSON
	KindDrawn
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindShapefile:
		return "shp"
	case KindGeoPackage:
		return "gpkg"
	case KindGeoJSON:
		return "geojson"
	case KindDrawn:
		return "drawn"
	default:
		return "unknown"
	}
}

var uploadKinds = map[string]Kind{
	".zip":     KindZip,
	".shp":     KindShapefile,
	".gpkg":    KindGeoPackage,
	".geojson": KindGeoJSON,
}

// archiveExtensions may appear inside an uploaded ZIP bundle.
var archiveExtensions = map[string]bool{
	".shp": true, ".shx": true, ".dbf": true, ".prj": true, ".cpg": true,
}

// Input is one analysis request payload.
type Input interface {
	Kind() Kind
	Lang() string
}

// Upload is a file posted as multipart form data.
type Upload struct {
	Filename string
	Body     io.Reader
	Language string
	kind     Kind
}

// NewUpload classifies a posted file by its extension.
func NewUpload(filename string, body io.Reader, lang string) (*Upload, error) {
	name := filepath.Base(filename)
	kind, ok := uploadKinds[strings.ToLower(filepath.Ext(name))]
	if !ok || name == "." || name == string(filepath.Separator) {
		return nil, validation("file_type", "Unsupported file type.", nil)
	}
	return &Upload{Filename: name, Body: body, Language: lang, kind: kind}, nil
}

func (u *Upload) Kind() Kind   { return u.kind }
func (u *Upload) Lang() string { return u.Language }

// Drawn is a polygon drawn in the web client, posted as GeoJSON.
type Drawn struct {
	GeoJSON  json.RawMessage
	Language string
}

func (d *Drawn) Kind() Kind   { return KindDrawn }
func (d *Drawn) Lang() string { return d.Language }

// writeCapped streams r into path, failing with 413 once more than limit
// bytes arrive. The partial file is left for the run cleanup.
func writeCapped(r io.Reader, path string, limit int64) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, internal("Unable to store upload.", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return n, tooLarge(fmt.Sprintf("Upload too large. Max %dMB.", limit/(1024*1024)))
	}
	if err != nil {
		return n, internal("Unable to store upload.", err)
	}
	if n > limit {
		return n, tooLarge(fmt.Sprintf("Upload too large. Max %dMB.", limit/(1024*1024)))
	}
	if err := f.Close(); err != nil {
		return n, internal("Unable to store upload.", err)
	}
	return n, nil
}

// zipLimits bounds what an uploaded archive may expand to.
type zipLimits struct {
	maxFiles int
	maxBytes int64
}

// extractZip validates every entry of the archive before writing any of
// them into dest.
func extractZip(archive, dest string, limits zipLimits) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return validation("invalid_zip", "Invalid zip file.", err)
	}
	defer zr.Close()

	if len(zr.File) > limits.maxFiles {
		return exhausted(http.StatusRequestEntityTooLarge, "zip_entries", "Zip file contains too many entries.")
	}
	var total uint64
	for _, f := range zr.File {
		total += f.UncompressedSize64
	}
	if total > uint64(limits.maxBytes) {
		return exhausted(http.StatusRequestEntityTooLarge, "zip_size", "Zip file is too large to extract.")
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return internal("Unable to extract upload.", err)
	}
	for _, f := range zr.File {
		if !withinDir(root, f.Name) {
			return validation("zip_traversal", "Invalid zip contents.", nil)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(f.Name)); ext != "" && !archiveExtensions[ext] {
			return validation("zip_file_type", "Zip contains unsupported file types.", nil)
		}
	}

	for _, f := range zr.File {
		if err := extractEntry(f, root, limits.maxBytes); err != nil {
			return err
		}
	}
	return nil
}

// withinDir reports whether name, joined to root, stays inside root.
func withinDir(root, name string) bool {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return false
	}
	target := filepath.Join(root, name)
	return target == root || strings.HasPrefix(target, root+string(filepath.Separator))
}

func extractEntry(f *zip.File, root string, limit int64) error {
	target := filepath.Join(root, f.Name)
	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return internal("Unable to extract upload.", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return internal("Unable to extract upload.", err)
	}

	rc, err := f.Open()
	if err != nil {
		return validation("invalid_zip", "Invalid zip file.", err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return internal("Unable to extract upload.", err)
	}
	defer out.Close()

	// Declared sizes can lie; cap the bytes actually inflated too.
	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if err != nil {
		return validation("invalid_zip", "Invalid zip file.", err)
	}
	if n > limit {
		return exhausted(http.StatusRequestEntityTooLarge, "zip_size", "Zip file is too large to extract.")
	}
	return out.Close()
}

// findShapefile returns the first .shp below dir in lexical order.
func findShapefile(dir string) (string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", internal("Unable to read upload.", err)
	}
	if len(found) == 0 {
		return "", validation("no_shapefile", "No .shp file found in upload.", nil)
	}
	sort.Strings(found)
	return found[0], nil
}

// checkCompanions requires the .shx, .dbf and .prj files next to shp.
func checkCompanions(shp string) error {
	base := strings.TrimSuffix(shp, filepath.Ext(shp))
	var missing []string
	for _, ext := range []string{".shx", ".dbf"} {
		if !fileExists(base, ext) {
			missing = append(missing, ext)
		}
	}
	if len(missing) > 0 {
		return validation("shapefile_parts",
			"Missing shapefile components: "+strings.Join(missing, ", ")+
				". Please upload a .zip containing .shp, .shx, .dbf, and .prj.", nil)
	}
	if !fileExists(base, ".prj") {
		return validation("missing_crs", "Missing .prj CRS file. Please include the .prj file in your upload.", nil)
	}
	return nil
}

// fileExists matches the extension case-insensitively, as shapefile
// bundles often mix .SHP and .shp.
func fileExists(base, ext string) bool {
	for _, e := range []string{ext, strings.ToUpper(ext)} {
		if _, err := os.Stat(base + e); err == nil {
			return true
		}
	}
	return false
}

// writeDrawn stores a drawn GeoJSON payload after a syntax check.
func writeDrawn(raw json.RawMessage, path string) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return validation("invalid_geojson", "Invalid GeoJSON.", errors.New("payload is not valid JSON"))
	}
	if err := os.WriteFile(path, trimmed, 0o644); err != nil {
		return internal("Unable to store upload.", err)
	}
	return nil
}
