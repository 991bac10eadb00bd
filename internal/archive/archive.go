// Package archive unpacks downloaded source archives. The compression is
// detected from the file contents since downloads are stored without an
// extension.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
)

// Format is a detected archive container or compression
type Format string

const (
	FormatTar   Format = "tar"
	FormatGzip  Format = "gzip"
	FormatBzip2 Format = "bzip2"
	FormatXz    Format = "xz"
	FormatZstd  Format = "zstd"
	FormatZip   Format = "zip"
)

// magicPeekBytes covers the longest signature in magics
const magicPeekBytes = 6

var magics = []struct {
	format Format
	magic  []byte
}{
	{FormatGzip, []byte{0x1f, 0x8b}},
	{FormatBzip2, []byte("BZh")},
	{FormatXz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{FormatZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{FormatZip, []byte("PK\x03\x04")},
	{FormatZip, []byte("PK\x05\x06")},
}

// ErrUnsafePath is returned for entries that would land outside the
// destination directory
var ErrUnsafePath = errors.New("archive entry escapes the destination directory")

// ProgressFunc receives the compressed bytes consumed and the archive size
type ProgressFunc func(done, total int64)

// Extractor unpacks archives into a directory
type Extractor struct{}

// New creates an Extractor
func New() *Extractor {
	return &Extractor{}
}

// Detect returns the format of the archive at path
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, magicPeekBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}

	return detect(head[:n]), nil
}

func detect(head []byte) Format {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.format
		}
	}

	return FormatTar
}

// Extract unpacks archivePath into destDir, rewriting entry names with
// StripPath. Existing files are overwritten so several archives can be
// overlaid into the same directory.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string, stripParents int, progress ProgressFunc) error {
	destDir, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	format, err := Detect(archivePath)
	if err != nil {
		return fmt.Errorf("failed to read archive %s: %w", archivePath, err)
	}

	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return err
	}

	w := &writer{dest: destDir, root: root, strip: stripParents}

	if format == FormatZip {
		err = w.zip(ctx, archivePath, progress)
	} else {
		err = w.tar(ctx, archivePath, format, progress)
	}

	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", archivePath, err)
	}

	return w.finish()
}

type dirTimes struct {
	path  string
	mode  os.FileMode
	mtime time.Time
}

type writer struct {
	dest  string
	root  string // dest with symlinks resolved
	strip int

	// directory metadata is applied last since writing children changes it
	dirs []dirTimes
}

func (w *writer) tar(ctx context.Context, archivePath string, format Format, progress ProgressFunc) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	counted := &countingReader{r: f, total: info.Size(), progress: progress}

	var r io.Reader = bufio.NewReader(counted)
	switch format {
	case FormatGzip:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatBzip2:
		r = bzip2.NewReader(r)
	case FormatXz:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xzr
	case FormatZstd:
		zst, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zst.Close()
		r = zst
	}

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar header: %w", err)
		}

		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name, ok := StripPath(hdr.Name, w.strip)
		if !ok {
			continue
		}

		target, err := w.target(name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = w.dir(target, os.FileMode(hdr.Mode).Perm(), hdr.ModTime)
		case tar.TypeReg:
			err = w.file(target, tr, os.FileMode(hdr.Mode).Perm(), hdr.ModTime)
		case tar.TypeSymlink:
			err = w.symlink(target, hdr.Linkname, hdr.ModTime)
		case tar.TypeLink:
			err = w.hardlink(target, hdr.Linkname)
		default:
			continue
		}

		if err != nil {
			return err
		}
	}
}

func (w *writer) zip(ctx context.Context, archivePath string, progress ProgressFunc) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()

	var total, done int64
	for _, f := range zr.File {
		total += int64(f.CompressedSize64)
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		done += int64(f.CompressedSize64)
		if progress != nil {
			progress(done, total)
		}

		name, ok := StripPath(f.Name, w.strip)
		if !ok {
			continue
		}

		target, err := w.target(name)
		if err != nil {
			return err
		}

		mode := f.Mode()

		switch {
		case mode.IsDir():
			err = w.dir(target, mode.Perm(), f.Modified)
		case mode&os.ModeSymlink != 0:
			err = w.zipSymlink(target, f)
		default:
			err = w.zipFile(target, f)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (w *writer) zipFile(target string, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}

	return w.file(target, rc, perm, f.Modified)
}

func (w *writer) zipSymlink(target string, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	link, err := io.ReadAll(rc)
	if err != nil {
		return err
	}

	return w.symlink(target, string(link), f.Modified)
}

// target maps a stripped entry name into the destination directory. Both
// the name and any symlinks already extracted along its parent chain must
// stay inside the destination.
func (w *writer) target(name string) (string, error) {
	target := filepath.Join(w.dest, filepath.FromSlash(name))

	if !within(w.dest, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	parent, err := w.resolveParent(target)
	if err != nil || !within(w.root, parent) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	return target, nil
}

// resolveParent resolves symlinks in the deepest existing ancestor of target
func (w *writer) resolveParent(target string) (string, error) {
	dir := filepath.Dir(target)
	for dir != w.dest {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return filepath.EvalSymlinks(dir)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// removeNonDir removes a non-directory at path so it can be replaced
func removeNonDir(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.IsDir() {
		return nil
	}

	return os.Remove(path)
}

func (w *writer) parent(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent dir for %s: %w", target, err)
	}

	return nil
}

func (w *writer) dir(target string, mode os.FileMode, mtime time.Time) error {
	if err := removeNonDir(target); err != nil {
		return err
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", target, err)
	}

	w.dirs = append(w.dirs, dirTimes{path: target, mode: mode, mtime: mtime})
	return nil
}

func (w *writer) file(target string, r io.Reader, mode os.FileMode, mtime time.Time) error {
	if err := w.parent(target); err != nil {
		return err
	}

	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	} else if err := removeNonDir(target); err != nil {
		return err
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}

	if err := out.Close(); err != nil {
		return err
	}

	// umask may have narrowed the mode
	if err := os.Chmod(target, mode); err != nil {
		return err
	}

	if !mtime.IsZero() {
		if err := os.Chtimes(target, mtime, mtime); err != nil {
			return fmt.Errorf("failed to set times for file %s: %w", target, err)
		}
	}

	return nil
}

func (w *writer) symlink(target, link string, mtime time.Time) error {
	if err := w.parent(target); err != nil {
		return err
	}

	if err := removeNonDir(target); err != nil {
		return err
	}

	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("failed to create symlink %s -> %s: %w", target, link, err)
	}

	if !mtime.IsZero() {
		tv := unix.NsecToTimeval(mtime.UnixNano())
		// not every filesystem supports symlink times
		_ = unix.Lutimes(target, []unix.Timeval{tv, tv})
	}

	return nil
}

func (w *writer) hardlink(target, linkname string) error {
	stripped, ok := StripPath(linkname, w.strip)
	if !ok {
		return nil
	}

	source, err := w.target(stripped)
	if err != nil {
		return err
	}

	if err := w.parent(target); err != nil {
		return err
	}

	if err := removeNonDir(target); err != nil {
		return err
	}

	if err := os.Link(source, target); err != nil {
		return fmt.Errorf("failed to create hard link %s -> %s: %w", target, source, err)
	}

	return nil
}

func (w *writer) finish() error {
	for i := len(w.dirs) - 1; i >= 0; i-- {
		d := w.dirs[i]

		// keep directories writable so a later overlay can replace their contents
		if err := os.Chmod(d.path, d.mode|0o700); err != nil {
			return err
		}

		if !d.mtime.IsZero() {
			if err := os.Chtimes(d.path, d.mtime, d.mtime); err != nil {
				return fmt.Errorf("failed to set times for dir %s: %w", d.path, err)
			}
		}
	}

	return nil
}

type countingReader struct {
	r        io.Reader
	done     int64
	total    int64
	progress ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.done += int64(n)

	if n > 0 && c.progress != nil {
		c.progress(c.done, c.total)
	}

	return n, err
}
