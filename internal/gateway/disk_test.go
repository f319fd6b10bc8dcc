package gateway

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureDisk(t *testing.T) {
	free := func(n uint64) DiskUsage {
		return func(string) (uint64, error) { return n, nil }
	}

	assert.NoError(t, ensureDisk(free(3<<30), "/out", 2<<30))
	assert.NoError(t, ensureDisk(free(0), "/out", 0), "zero floor disables the check")

	err := ensureDisk(free(1<<30), "/out", 2<<30)
	requireGatewayError(t, err, http.StatusInsufficientStorage, "Server disk space is too low.")

	err = ensureDisk(func(string) (uint64, error) { return 0, errors.New("statfs") }, "/out", 1)
	requireGatewayError(t, err, http.StatusInternalServerError, "Unable to check free disk space.")
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	assert.NoError(t, err)
	assert.Positive(t, free)
}
