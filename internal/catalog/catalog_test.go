package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(baseURL string) *Fetcher {
	f := NewFetcher(baseURL+"/", 2, discardLogger())
	f.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	f.pacer = rate.NewLimiter(rate.Inf, 1)
	return f
}

func listingPage(files ...string) string {
	page := `<html><head><title>Index</title></head><body><h1>Index</h1><pre><a href="../">../</a>` + "\n"
	for _, f := range files {
		page += fmt.Sprintf(`<a href="%s">%s</a>   01-Jan-2024 00:00   12345`+"\n", f, f)
	}
	return page + "</pre></body></html>"
}

type counter struct{ hits atomic.Int32 }

func TestListAssets_FiltersByCaseInsensitiveSuffixInCatalogOrder(t *testing.T) {
	var ua atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/frost_days/", func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.UserAgent())
		fmt.Fprint(w, listingPage("grids_germany_annual_frost_days_1951.asc.gz", "DESCRIPTION.pdf", "grids_germany_annual_frost_days_1952.ZIP"))
	})
	mux.HandleFunc("/air_temperature_max/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listingPage("grids_germany_annual_air_temp_max_188117.asc.gz"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	vars := []domain.Variable{{Folder: "frost_days"}, {Folder: "air_temperature_max"}}
	refs, err := newTestFetcher(srv.URL).ListAssets(context.Background(), vars, domain.RasterSuffixes)
	require.NoError(t, err)

	assert.Equal(t, []domain.RemoteRef{
		{Variable: "frost_days", URL: srv.URL + "/frost_days/grids_germany_annual_frost_days_1951.asc.gz"},
		{Variable: "frost_days", URL: srv.URL + "/frost_days/grids_germany_annual_frost_days_1952.ZIP"},
		{Variable: "air_temperature_max", URL: srv.URL + "/air_temperature_max/grids_germany_annual_air_temp_max_188117.asc.gz"},
	}, refs)
	assert.Equal(t, "ZonalClimateAnalyzer/1.0", ua.Load())
}

func TestListAssets_Documents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listingPage("a_1990.asc.gz", "BESCHREIBUNG_gridsgermany_annual_frost_days_de.pdf"))
	}))
	defer srv.Close()

	refs, err := newTestFetcher(srv.URL).ListAssets(context.Background(), []domain.Variable{{Folder: "frost_days"}}, domain.DocumentSuffixes)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "BESCHREIBUNG_gridsgermany_annual_frost_days_de.pdf", refs[0].FileName())
}

func TestListAssets_AnyFolderFailureFailsListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/frost_days/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listingPage("grids_germany_annual_frost_days_1951.asc.gz"))
	})
	mux.HandleFunc("/hot_days/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	vars := []domain.Variable{{Folder: "frost_days"}, {Folder: "hot_days"}}
	refs, err := newTestFetcher(srv.URL).ListAssets(context.Background(), vars, domain.RasterSuffixes)

	require.ErrorIs(t, err, domain.ErrListing)
	assert.Nil(t, refs, "no partial catalogs")
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestListAssets_RetriesTransientStatus(t *testing.T) {
	var c counter
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if c.hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, listingPage("x_2000.zip"))
	}))
	defer srv.Close()

	refs, err := newTestFetcher(srv.URL).ListAssets(context.Background(), []domain.Variable{{Folder: "ice_days"}}, domain.RasterSuffixes)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Equal(t, int32(2), c.hits.Load())
}

func TestListAssets_DoesNotRetryClientErrors(t *testing.T) {
	var c counter
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		c.hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL).ListAssets(context.Background(), []domain.Variable{{Folder: "ice_days"}}, domain.RasterSuffixes)
	require.Error(t, err)
	assert.Equal(t, int32(1), c.hits.Load())
}

type countingProgress struct{ n atomic.Int32 }

func (p *countingProgress) Add(n int) error {
	p.n.Add(int32(n))
	return nil
}

func TestDownload_BestEffort(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/frost_days/ok_1990.asc.gz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "payload")
	})
	mux.HandleFunc("/frost_days/missing_1991.asc.gz", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "rasters")
	refs := []domain.RemoteRef{
		{Variable: "frost_days", URL: srv.URL + "/frost_days/ok_1990.asc.gz"},
		{Variable: "frost_days", URL: srv.URL + "/frost_days/missing_1991.asc.gz"},
	}
	progress := &countingProgress{}

	res, err := newTestFetcher(srv.URL).Download(context.Background(), refs, dir, progress)
	require.NoError(t, err)

	assert.Equal(t, DownloadResult{Downloaded: 1, Failed: 1}, res)
	assert.Equal(t, int32(2), progress.n.Load())
	got, err := os.ReadFile(filepath.Join(dir, "ok_1990.asc.gz"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	assert.NoFileExists(t, filepath.Join(dir, "missing_1991.asc.gz"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
}

func refsFor(names ...string) []domain.RemoteRef {
	refs := make([]domain.RemoteRef, len(names))
	for i, n := range names {
		refs[i] = domain.RemoteRef{URL: "https://example.test/x/" + n}
	}
	return refs
}

func TestAlreadyMaterialized(t *testing.T) {
	refs := refsFor(
		"grids_germany_annual_air_temp_max_188117.asc.gz",
		"grids_germany_annual_frost_days_1951.zip",
	)

	t.Run("missing dir", func(t *testing.T) {
		assert.False(t, AlreadyMaterialized(refs, filepath.Join(t.TempDir(), "nope")))
	})
	t.Run("empty dir", func(t *testing.T) {
		assert.False(t, AlreadyMaterialized(refs, t.TempDir()))
	})
	t.Run("partial prior run", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "grids_germany_annual_air_temp_max_188117.asc.gz")
		assert.False(t, AlreadyMaterialized(refs, dir))
	})
	t.Run("all present in mixed forms", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "grids_germany_annual_air_temp_max_188117.asc.gz", "frost_days_1951.tif", "unrelated.txt")
		assert.True(t, AlreadyMaterialized(refs, dir))
	})
	t.Run("superset", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "air_temp_max_1881.asc", "frost_days_1951.asc", "frost_days_1952.asc")
		assert.True(t, AlreadyMaterialized(refs, dir))
	})
}

func TestLocalRastersReady(t *testing.T) {
	assert.False(t, LocalRastersReady(filepath.Join(t.TempDir(), "nope")))

	dir := t.TempDir()
	touch(t, dir, "notes.txt")
	assert.False(t, LocalRastersReady(dir))

	sub := filepath.Join(dir, "frost_days")
	require.NoError(t, os.Mkdir(sub, 0o755))
	touch(t, sub, "grids_germany_annual_frost_days_1951.asc.gz")
	assert.True(t, LocalRastersReady(dir))
}

func TestGet_PacesRequests(t *testing.T) {
	var c counter
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		c.hits.Add(1)
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	f.pacer = rate.NewLimiter(rate.Every(time.Hour), 1)

	resp, err := f.get(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.get(ctx, srv.URL+"/b")
	require.Error(t, err, "the next slot is an hour away")
	assert.Equal(t, int32(1), c.hits.Load())
}
