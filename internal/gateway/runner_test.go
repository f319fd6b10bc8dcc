package gateway

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAnalyzer installs a shell script standing in for the pipeline CLI.
func writeAnalyzer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zca")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestProcessRunner_PassesArguments(t *testing.T) {
	dir := t.TempDir()
	bin := writeAnalyzer(t, `echo "$@ $ZCA_LANG $ZCA_SKIP_DWD_DOWNLOAD" > args.txt`)
	t.Setenv("ZCA_SKIP_DWD_DOWNLOAD", "")

	r := NewProcessRunner(bin, dir, time.Minute, discardLogger())
	err := r.Run(context.Background(), Job{Shapefile: "/runs/abc/upload/drawn.shp", Lang: "en", SkipDownload: true})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "analyze /runs/abc/upload/drawn.shp --lang en --skip-download en 1", strings.TrimSpace(string(data)))
}

func TestProcessRunner_FailureCarriesOutputTail(t *testing.T) {
	bin := writeAnalyzer(t, `printf '%0.sx' $(seq 1 1500) >&2; echo END >&2; exit 3`)

	err := NewProcessRunner(bin, t.TempDir(), time.Minute, discardLogger()).
		Run(context.Background(), Job{Shapefile: "a.shp", Lang: "de"})
	gwErr := requireGatewayError(t, err, http.StatusInternalServerError, "")
	assert.True(t, strings.HasPrefix(gwErr.Message, "Analyzer failed. "))
	assert.True(t, strings.HasSuffix(gwErr.Message, "END"))
	assert.Len(t, strings.TrimPrefix(gwErr.Message, "Analyzer failed. "), analyzerTailSize)
}

func TestProcessRunner_Timeout(t *testing.T) {
	bin := writeAnalyzer(t, "exec sleep 5")

	err := NewProcessRunner(bin, t.TempDir(), 50*time.Millisecond, discardLogger()).
		Run(context.Background(), Job{Shapefile: "a.shp", Lang: "de"})
	requireGatewayError(t, err, http.StatusInternalServerError, "Analyzer timed out.")
}
