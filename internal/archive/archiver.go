// Package archive persists raw posting HTML and bundles it into a zip
// at the end of a run.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobharvest/internal/jobs"
	"jobharvest/internal/progress"
)

// fileNameSep separates the job ID from the escaped title. Double
// underscore cannot appear in an escaped title, so splitting on its
// first occurrence is unambiguous.
const fileNameSep = "__"

// FileName encodes an identity into an archive file name that can be
// decoded back losslessly.
func FileName(id jobs.Identity) string {
	return id.JobID + fileNameSep + url.PathEscape(id.Title) + ".html"
}

// ParseFileName recovers the identity from an archive file name.
func ParseFileName(name string) (jobs.Identity, error) {
	base := strings.TrimSuffix(name, ".html")
	if base == name {
		return jobs.Identity{}, fmt.Errorf("archive name %q: missing .html suffix", name)
	}
	jobID, escaped, ok := strings.Cut(base, fileNameSep)
	if !ok || jobID == "" {
		return jobs.Identity{}, fmt.Errorf("archive name %q: missing identity separator", name)
	}
	title, err := url.PathUnescape(escaped)
	if err != nil {
		return jobs.Identity{}, fmt.Errorf("archive name %q: %w", name, err)
	}
	return jobs.Identity{JobID: jobID, Title: title}, nil
}

type page struct {
	id   jobs.Identity
	body []byte
}

// Archiver writes raw HTML through its own small worker pool so slow
// disks never stall extraction. Submissions past the file limit are
// dropped, not errors.
type Archiver struct {
	dir    string
	limit  int
	ch     chan page
	logger *zap.Logger

	g *errgroup.Group

	mu      sync.Mutex
	written int
	entries []jobs.ArchiveEntry
}

// New creates the archive directory and the submission channel.
func New(dir string, limit, workers int, logger *zap.Logger) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}
	a := &Archiver{
		dir:    dir,
		limit:  limit,
		ch:     make(chan page, workers*2),
		logger: logger,
	}
	a.g = &errgroup.Group{}
	for i := 0; i < workers; i++ {
		a.g.Go(a.work)
	}
	return a, nil
}

// Submit hands one fetched page to the archive pool. Returns once the
// page is queued or the context ends.
func (a *Archiver) Submit(ctx context.Context, id jobs.Identity, body []byte) error {
	select {
	case a.ch <- page{id: id, body: body}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Archiver) work() error {
	for p := range a.ch {
		a.mu.Lock()
		if a.limit > 0 && a.written >= a.limit {
			a.mu.Unlock()
			a.logger.Debug("archive file limit reached, page dropped",
				zap.String("job_id", p.id.JobID))
			continue
		}
		a.written++
		a.mu.Unlock()

		name := FileName(p.id)
		path := filepath.Join(a.dir, name)
		if err := os.WriteFile(path, p.body, 0o640); err != nil {
			a.mu.Lock()
			a.written--
			a.mu.Unlock()
			a.logger.Warn("archive write failed",
				zap.String("job_id", p.id.JobID), zap.Error(err))
			continue
		}
		a.mu.Lock()
		a.entries = append(a.entries, jobs.ArchiveEntry{
			Identity: p.id,
			Path:     path,
			Size:     int64(len(p.body)),
		})
		a.mu.Unlock()
		progress.PagesArchived.Inc()
	}
	return nil
}

// Drain stops accepting pages and waits for in-flight writes. Call
// exactly once, after the extraction pool has finished.
func (a *Archiver) Drain() error {
	close(a.ch)
	return a.g.Wait()
}

// Entries returns what was archived so far, in write completion order.
func (a *Archiver) Entries() []jobs.ArchiveEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]jobs.ArchiveEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Bundle zips every archived file into zipPath. Call after Drain.
func (a *Archiver) Bundle(zipPath string) error {
	entries := a.Entries()
	if len(entries) == 0 {
		a.logger.Info("nothing archived, skipping bundle")
		return nil
	}

	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	zw := zip.NewWriter(f)

	for _, e := range entries {
		if err := addToZip(zw, e.Path); err != nil {
			_ = zw.Close()
			_ = f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize bundle: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}
	a.logger.Info("archive bundled",
		zap.String("path", zipPath), zap.Int("files", len(entries)))
	return nil
}

func addToZip(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archived page: %w", err)
	}
	defer src.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("add %s to bundle: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("copy %s into bundle: %w", filepath.Base(path), err)
	}
	return nil
}
