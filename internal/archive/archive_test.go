package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type entry struct {
	name     string
	body     string
	typeflag byte
	linkname string
	mode     int64
}

var zlibEntries = []entry{
	{name: "zlib-1.3/", typeflag: tar.TypeDir, mode: 0o755},
	{name: "zlib-1.3/configure", body: "#!/bin/sh\n", typeflag: tar.TypeReg, mode: 0o755},
	{name: "zlib-1.3/src/", typeflag: tar.TypeDir, mode: 0o755},
	{name: "zlib-1.3/src/zlib.c", body: "int main() {}\n", typeflag: tar.TypeReg, mode: 0o644},
	{name: "zlib-1.3/src/current", typeflag: tar.TypeSymlink, linkname: "zlib.c"},
	{name: "zlib-1.3/src/copy.c", typeflag: tar.TypeLink, linkname: "zlib-1.3/src/zlib.c"},
}

var mtime = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

func tarBytes(t *testing.T, entries []entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
			Mode:     e.mode,
			Size:     int64(len(e.body)),
			ModTime:  mtime,
		}
		require.NoError(t, tw.WriteHeader(hdr))

		if e.body != "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func compress(t *testing.T, format Format, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error

	switch format {
	case FormatTar:
		return data
	case FormatGzip:
		w = pgzip.NewWriter(&buf)
	case FormatXz:
		w, err = xz.NewWriter(&buf)
	case FormatZstd:
		w, err = zstd.NewWriter(&buf)
	default:
		t.Fatalf("unsupported format %s", format)
	}
	require.NoError(t, err)

	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func writeArchive(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "download")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestExtract_Formats(t *testing.T) {
	for _, format := range []Format{FormatTar, FormatGzip, FormatXz, FormatZstd} {
		t.Run(string(format), func(t *testing.T) {
			path := writeArchive(t, compress(t, format, tarBytes(t, zlibEntries)))

			detected, err := Detect(path)
			require.NoError(t, err)
			assert.Equal(t, format, detected)

			dest := t.TempDir()
			require.NoError(t, New().Extract(context.Background(), path, dest, 1, nil))

			assert.Equal(t, "#!/bin/sh\n", readFile(t, filepath.Join(dest, "configure")))
			assert.Equal(t, "int main() {}\n", readFile(t, filepath.Join(dest, "src", "zlib.c")))
			assert.Equal(t, "int main() {}\n", readFile(t, filepath.Join(dest, "src", "copy.c")))

			link, err := os.Readlink(filepath.Join(dest, "src", "current"))
			require.NoError(t, err)
			assert.Equal(t, "zlib.c", link)

			info, err := os.Stat(filepath.Join(dest, "configure"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
			assert.True(t, info.ModTime().Equal(mtime))
		})
	}
}

func TestExtract_Strip(t *testing.T) {
	data := tarBytes(t, []entry{
		{name: "a/b/c/file.txt", body: "x", typeflag: tar.TypeReg, mode: 0o644},
	})

	tests := []struct {
		name  string
		strip int
		want  string
	}{
		{name: "basename", strip: -1, want: "file.txt"},
		{name: "keep", strip: 0, want: "a/b/c/file.txt"},
		{name: "strip one", strip: 1, want: "b/c/file.txt"},
		{name: "strip everything", strip: 4, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeArchive(t, data)
			dest := t.TempDir()

			require.NoError(t, New().Extract(context.Background(), path, dest, tt.strip, nil))

			var files []string
			err := filepath.Walk(dest, func(p string, info os.FileInfo, err error) error {
				if err == nil && info.Mode().IsRegular() {
					rel, _ := filepath.Rel(dest, p)
					files = append(files, filepath.ToSlash(rel))
				}
				return err
			})
			require.NoError(t, err)

			if tt.want == "" {
				assert.Empty(t, files)
			} else {
				assert.Equal(t, []string{tt.want}, files)
			}
		})
	}
}

func TestExtract_Zip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create("pkg-2.0/README")
	require.NoError(t, err)
	_, err = fw.Write([]byte("readme"))
	require.NoError(t, err)

	_, err = zw.Create("pkg-2.0/docs/")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := writeArchive(t, buf.Bytes())

	detected, err := Detect(path)
	require.NoError(t, err)
	assert.Equal(t, FormatZip, detected)

	dest := t.TempDir()
	var done, total int64
	require.NoError(t, New().Extract(context.Background(), path, dest, 1, func(d, tot int64) {
		done, total = d, tot
	}))

	assert.Equal(t, "readme", readFile(t, filepath.Join(dest, "README")))
	assert.DirExists(t, filepath.Join(dest, "docs"))
	assert.Equal(t, total, done)
}

func TestExtract_Overlay(t *testing.T) {
	dest := t.TempDir()

	first := writeArchive(t, tarBytes(t, []entry{
		{name: "src/a.c", body: "old", typeflag: tar.TypeReg, mode: 0o444},
		{name: "src/keep.c", body: "keep", typeflag: tar.TypeReg, mode: 0o644},
	}))
	second := writeArchive(t, tarBytes(t, []entry{
		{name: "patched/a.c", body: "new", typeflag: tar.TypeReg, mode: 0o644},
	}))

	require.NoError(t, New().Extract(context.Background(), first, dest, 0, nil))
	require.NoError(t, New().Extract(context.Background(), second, filepath.Join(dest, "src"), 1, nil))

	assert.Equal(t, "new", readFile(t, filepath.Join(dest, "src", "a.c")))
	assert.Equal(t, "keep", readFile(t, filepath.Join(dest, "src", "keep.c")))

	// extracting the same archive twice must succeed
	require.NoError(t, New().Extract(context.Background(), first, dest, 0, nil))
	assert.Equal(t, "old", readFile(t, filepath.Join(dest, "src", "a.c")))
}

func TestExtract_PathTraversal(t *testing.T) {
	path := writeArchive(t, tarBytes(t, []entry{
		{name: "../evil.txt", body: "x", typeflag: tar.TypeReg, mode: 0o644},
	}))

	dest := filepath.Join(t.TempDir(), "out")
	err := New().Extract(context.Background(), path, dest, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
}

func TestExtract_SymlinkEscape(t *testing.T) {
	outside := t.TempDir()

	tests := []struct {
		name    string
		entries []entry
	}{
		{
			name: "absolute link",
			entries: []entry{
				{name: "pkg/link", typeflag: tar.TypeSymlink, linkname: outside},
				{name: "pkg/link/pwned", body: "x", typeflag: tar.TypeReg, mode: 0o644},
			},
		},
		{
			name: "relative link",
			entries: []entry{
				{name: "pkg/up", typeflag: tar.TypeSymlink, linkname: "../../" + filepath.Base(outside)},
				{name: "pkg/up/pwned", body: "x", typeflag: tar.TypeReg, mode: 0o644},
			},
		},
		{
			name: "nested directory below link",
			entries: []entry{
				{name: "pkg/link", typeflag: tar.TypeSymlink, linkname: outside},
				{name: "pkg/link/sub/pwned", body: "x", typeflag: tar.TypeReg, mode: 0o644},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeArchive(t, tarBytes(t, tt.entries))
			dest := filepath.Join(filepath.Dir(outside), "dest-"+strings.ReplaceAll(tt.name, " ", "-"))
			t.Cleanup(func() { os.RemoveAll(dest) })

			err := New().Extract(context.Background(), path, dest, 0, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsafePath)
			assert.NoFileExists(t, filepath.Join(outside, "pwned"))
			assert.NoDirExists(t, filepath.Join(outside, "sub"))
		})
	}
}

func TestExtract_SymlinkInsideTree(t *testing.T) {
	path := writeArchive(t, tarBytes(t, []entry{
		{name: "pkg/real/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "pkg/alias", typeflag: tar.TypeSymlink, linkname: "real"},
		{name: "pkg/alias/file.txt", body: "ok", typeflag: tar.TypeReg, mode: 0o644},
	}))

	dest := t.TempDir()
	require.NoError(t, New().Extract(context.Background(), path, dest, 0, nil))
	assert.Equal(t, "ok", readFile(t, filepath.Join(dest, "pkg", "real", "file.txt")))
}

func TestExtract_Progress(t *testing.T) {
	data := compress(t, FormatGzip, tarBytes(t, zlibEntries))
	path := writeArchive(t, data)

	var done, total int64
	require.NoError(t, New().Extract(context.Background(), path, t.TempDir(), 1, func(d, tot int64) {
		done, total = d, tot
	}))

	assert.Equal(t, int64(len(data)), total)
	assert.Greater(t, done, int64(0))
	assert.LessOrEqual(t, done, total)
}

func TestExtract_Cancelled(t *testing.T) {
	path := writeArchive(t, tarBytes(t, zlibEntries))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Extract(ctx, path, t.TempDir(), 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want Format
	}{
		{name: "gzip", head: []byte{0x1f, 0x8b, 0x08}, want: FormatGzip},
		{name: "bzip2", head: []byte("BZh91AY"), want: FormatBzip2},
		{name: "xz", head: []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, want: FormatXz},
		{name: "zstd", head: []byte{0x28, 0xb5, 0x2f, 0xfd}, want: FormatZstd},
		{name: "zip", head: []byte("PK\x03\x04"), want: FormatZip},
		{name: "anything else is tar", head: []byte("zlib-1.3/"), want: FormatTar},
		{name: "short file", head: []byte{0x1f}, want: FormatTar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detect(tt.head))
		})
	}
}
