package gateway

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	scanTimeout  = 15 * time.Minute
	scanTailSize = 400
)

// Scanner checks a file or directory for malware.
type Scanner interface {
	Scan(ctx context.Context, path string) error
}

// ClamScanner runs the clamscan command line scanner.
type ClamScanner struct {
	binary   string
	required bool
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

// NewClamScanner creates a scanner. When required is false and clamscan is
// not installed, scans are skipped with a warning.
func NewClamScanner(required bool, logger *slog.Logger) *ClamScanner {
	return &ClamScanner{binary: "clamscan", required: required, logger: logger, lookPath: exec.LookPath}
}

// Scan rejects infected uploads with 400 and scanner failures with 500.
func (c *ClamScanner) Scan(ctx context.Context, path string) error {
	bin, err := c.lookPath(c.binary)
	if err != nil {
		if c.required {
			return internal("clamscan is not installed on the server.", err)
		}
		c.logger.Warn("clamscan not found; skipping malware scan")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--no-summary", "-r", path)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err = cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return validation("malware", "Upload failed malware scan.", err)
	}
	out := stderr.String()
	if strings.TrimSpace(out) == "" {
		out = stdout.String()
	}
	return internal("clamscan failed. "+tail(out, scanTailSize), err)
}

// tail returns the last n characters of s, trimmed.
func tail(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > n {
		r = r[len(r)-n:]
	}
	return string(r)
}
