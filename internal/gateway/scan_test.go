package gateway

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingBinary(string) (string, error) { return "", errors.New("not found") }

func TestClamScanner_OptionalWhenMissing(t *testing.T) {
	s := NewClamScanner(false, discardLogger())
	s.lookPath = missingBinary

	assert.NoError(t, s.Scan(context.Background(), t.TempDir()))
}

func TestClamScanner_RequiredWhenMissing(t *testing.T) {
	s := NewClamScanner(true, discardLogger())
	s.lookPath = missingBinary

	err := s.Scan(context.Background(), t.TempDir())
	requireGatewayError(t, err, http.StatusInternalServerError, "clamscan is not installed on the server.")
}

// fakeClamscan installs a shell script standing in for clamscan that exits
// with code.
func fakeClamscan(t *testing.T, code int, output string) func(string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clamscan")
	script := "#!/bin/sh\necho '" + output + "' >&2\nexit " + string(rune('0'+code)) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return func(string) (string, error) { return path, nil }
}

func TestClamScanner_ExitCodes(t *testing.T) {
	s := NewClamScanner(true, discardLogger())

	s.lookPath = fakeClamscan(t, 0, "")
	assert.NoError(t, s.Scan(context.Background(), t.TempDir()))

	s.lookPath = fakeClamscan(t, 1, "Eicar-Signature FOUND")
	err := s.Scan(context.Background(), t.TempDir())
	requireGatewayError(t, err, http.StatusBadRequest, "Upload failed malware scan.")

	s.lookPath = fakeClamscan(t, 2, "database missing")
	err = s.Scan(context.Background(), t.TempDir())
	requireGatewayError(t, err, http.StatusInternalServerError, "clamscan failed. database missing")
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("  abc \n", 10))
	assert.Equal(t, "def", tail("abcdef", 3))
	assert.Equal(t, "ü", tail(strings.Repeat("ü", 5), 1))
}
