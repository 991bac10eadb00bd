// Package source downloads and extracts module sources, running each
// source's after hook, and reports whether anything changed.
package source

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/kikai-build/kikai/internal/archive"
	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/fetch"
	"github.com/kikai-build/kikai/internal/manifest"
	"github.com/kikai-build/kikai/internal/runner"
	"github.com/kikai-build/kikai/internal/status"
	"github.com/kikai-build/kikai/internal/utils"
)

const stage = "source"

// Fetcher downloads a URL to a file
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, progress fetch.ProgressFunc) (fetch.Result, error)
}

// Extractor unpacks an archive into a directory
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string, stripParents int, progress archive.ProgressFunc) error
}

// Pipeline processes module sources against the cache
type Pipeline struct {
	Store      cache.Store
	StorageDir string
	Fetcher    Fetcher
	Extractor  Extractor
	Runner     runner.Runner
	Printer    *status.Printer
}

// New creates a Pipeline using the default fetcher and extractor
func New(store cache.Store, storageDir string, r runner.Runner, printer *status.Printer) *Pipeline {
	if printer == nil {
		printer = status.Discard()
	}

	return &Pipeline{
		Store:      store,
		StorageDir: storageDir,
		Fetcher:    fetch.New(),
		Extractor:  archive.New(),
		Runner:     r,
		Printer:    printer,
	}
}

// ModuleID derives the cache identity of a module from its name
func ModuleID(name string) string {
	return cache.Hash(name)
}

// DownloadID derives the identity of a source. Any change to the URL, the
// hook or the strip setting yields a new download.
func DownloadID(src manifest.SourceSpec) string {
	return cache.Hash(src.URL, src.After, strconv.Itoa(src.StripParents))
}

// DownloadPath returns where a source archive is stored
func (p *Pipeline) DownloadPath(moduleID string, src manifest.SourceSpec) string {
	return utils.JoinPath(p.StorageDir, cache.DownloadsDir, moduleID, DownloadID(src))
}

// ExtractedDir returns the tree all sources of a module are extracted into
func (p *Pipeline) ExtractedDir(moduleID string) string {
	return utils.JoinPath(p.StorageDir, cache.ExtractedDir, moduleID)
}

// ProcessModule processes every source of mod in order into the module's
// extraction directory. updated is true if any source was re-extracted.
//
// Sources are overlaid, so once one source is re-extracted every later
// source is re-extracted on top of it.
func (p *Pipeline) ProcessModule(ctx context.Context, mod *manifest.ModuleSpec) (string, bool, error) {
	moduleID := ModuleID(mod.Name)
	extracted := p.ExtractedDir(moduleID)

	force := !utils.Exists(extracted)
	updated := false

	if err := os.MkdirAll(extracted, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create %s: %w", extracted, err)
	}

	for i, src := range mod.Sources {
		changed, err := p.process(ctx, moduleID, src, extracted, force)
		if err != nil {
			return "", false, fmt.Errorf("source %d (%s): %w", i, src.URL, err)
		}

		updated = updated || changed
		force = force || changed
	}

	return extracted, updated, nil
}

// Revision identifies the extracted contents of a module: the recorded
// checksum of every source in manifest order. It is empty for a module
// without sources.
func (p *Pipeline) Revision(mod *manifest.ModuleSpec) (string, error) {
	if len(mod.Sources) == 0 {
		return "", nil
	}

	moduleID := ModuleID(mod.Name)
	parts := make([]string, 0, 2*len(mod.Sources))

	for _, src := range mod.Sources {
		downloadID := DownloadID(src)

		value, found, err := p.Store.Get(cache.Key(cache.ScopeExtracted, moduleID, downloadID))
		if err != nil {
			return "", fmt.Errorf("failed to read cache: %w", err)
		}
		if !found {
			return "", fmt.Errorf("source %s has not been extracted", src.URL)
		}

		parts = append(parts, downloadID, value)
	}

	return cache.Hash(parts...), nil
}

// process brings one source up to date in extracted and reports whether it
// was re-extracted
func (p *Pipeline) process(ctx context.Context, moduleID string, src manifest.SourceSpec, extracted string, force bool) (bool, error) {
	downloadID := DownloadID(src)
	download := p.DownloadPath(moduleID, src)

	downloadKey := cache.Key(cache.ScopeDownload, moduleID, downloadID)
	downloaded, found, err := p.Store.Get(downloadKey)
	if err != nil {
		return false, fmt.Errorf("failed to read cache: %w", err)
	}

	updateDownload := !found || !utils.Exists(download)
	announced := false

	if updateDownload {
		p.Printer.Status(stage, "Processing: %s", src.URL)
		announced = true

		update, finish := p.Printer.Bar(stage, "download")
		res, err := p.Fetcher.Fetch(ctx, src.URL, download, fetch.ProgressFunc(update))
		finish()
		if err != nil {
			return false, err
		}

		downloaded = cache.FormatSized(res.Checksum, res.Size)
		if err := p.Store.Set(downloadKey, downloaded); err != nil {
			return false, fmt.Errorf("failed to write cache: %w", err)
		}

		p.Printer.Debugf("downloaded %s (%d bytes, sha256 %s)", src.URL, res.Size, res.Checksum)
	}

	extractedKey := cache.Key(cache.ScopeExtracted, moduleID, downloadID)
	value, found, err := p.Store.Get(extractedKey)
	if err != nil {
		return false, fmt.Errorf("failed to read cache: %w", err)
	}

	updateExtracted := force || updateDownload || !found || value != downloaded || !utils.Exists(extracted)
	if !updateExtracted {
		p.Printer.Debugf("source up to date: %s", src.URL)
		return false, nil
	}

	if !announced {
		p.Printer.Status(stage, "Processing: %s", src.URL)
	}

	// a failure below must leave the source stale
	if err := p.Store.Delete(extractedKey); err != nil {
		return false, fmt.Errorf("failed to write cache: %w", err)
	}

	update, finish := p.Printer.Bar(stage, "extract")
	err = p.Extractor.Extract(ctx, download, extracted, src.StripParents, archive.ProgressFunc(update))
	finish()
	if err != nil {
		return false, err
	}

	if src.After != "" {
		if err := p.Runner.Run(ctx, runner.Shell(src.After, extracted, nil)); err != nil {
			return false, fmt.Errorf("after hook failed: %w", err)
		}
	}

	if err := p.Store.Set(extractedKey, downloaded); err != nil {
		return false, fmt.Errorf("failed to write cache: %w", err)
	}

	return true, nil
}
