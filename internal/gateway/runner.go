package gateway

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
)

const analyzerTailSize = 1200

// Runner executes the analysis pipeline for one canonical shapefile.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Job is one pipeline invocation.
type Job struct {
	Shapefile    string
	Lang         string
	SkipDownload bool
}

// ProcessRunner runs the pipeline CLI as a child process so a crash or leak
// in the geospatial stack never takes the server down.
type ProcessRunner struct {
	bin     string
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewProcessRunner creates a runner that invokes bin from the working
// directory dir.
func NewProcessRunner(bin, dir string, timeout time.Duration, logger *slog.Logger) *ProcessRunner {
	return &ProcessRunner{bin: bin, dir: dir, timeout: timeout, logger: logger}
}

// Run executes `<bin> analyze <shapefile> --lang <lang>`.
func (p *ProcessRunner) Run(ctx context.Context, job Job) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	args := []string{"analyze", job.Shapefile, "--lang", job.Lang}
	if job.SkipDownload {
		args = append(args, "--skip-download")
	}
	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Dir = p.dir
	// Children of the analyzer may hold its pipes open after a kill.
	cmd.WaitDelay = 10 * time.Second
	cmd.Env = append(os.Environ(), "ZCA_LANG="+job.Lang)
	if job.SkipDownload && os.Getenv("ZCA_SKIP_DWD_DOWNLOAD") == "" {
		cmd.Env = append(cmd.Env, "ZCA_SKIP_DWD_DOWNLOAD=1")
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	p.logger.Info("starting analyzer", "shapefile", job.Shapefile, "lang", job.Lang, "skip_download", job.SkipDownload)
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Status: http.StatusInternalServerError, Message: "Analyzer timed out.", Reason: "timeout", Err: err}
	}

	out := stderr.String()
	if strings.TrimSpace(out) == "" {
		out = stdout.String()
	}
	return internal("Analyzer failed. "+tail(out, analyzerTailSize), err)
}
