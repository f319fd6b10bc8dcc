package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// Progress receives one increment per finished file. *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(n int) error
}

// DownloadResult counts the outcome of a Download call.
type DownloadResult struct {
	Downloaded int
	Failed     int
}

// Download saves every ref into dir under its remote file name. Downloads are
// best effort: a failing file is logged and skipped. progress may be nil.
func (f *Fetcher) Download(ctx context.Context, refs []domain.RemoteRef, dir string, progress Progress) (DownloadResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("create download dir: %w", err)
	}

	var (
		mu  sync.Mutex
		res DownloadResult
	)
	wp := workerpool.New(f.workers)
	for _, ref := range refs {
		wp.Submit(func() {
			err := f.downloadOne(ctx, ref, dir)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				f.logger.Warn("download failed", "url", ref.URL, "status", statusOf(err), "error", err)
			} else {
				res.Downloaded++
			}
			if progress != nil {
				progress.Add(1) //nolint:errcheck // progress output is cosmetic
			}
		})
	}
	wp.StopWait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	f.logger.Info("download finished", "dir", dir, "downloaded", res.Downloaded, "failed", res.Failed)
	return res, nil
}

func (f *Fetcher) downloadOne(ctx context.Context, ref domain.RemoteRef, dir string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	name := ref.FileName()
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("unusable file name in %s", ref.URL)
	}

	resp, err := f.get(ctx, ref.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dst := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return os.Rename(tmp.Name(), dst)
}
