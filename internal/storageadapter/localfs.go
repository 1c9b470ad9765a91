package storageadapter

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"shogunrelay/internal/errs"
)

// LocalFs is the Adapter variant backed by a rooted directory on the local
// filesystem: plain os.MkdirAll/os.WriteFile/os.Remove calls, generalized
// into a full list/read/write/delete/move/stats contract and made atomic
// via a temp-file-then-rename write path.
type LocalFs struct {
	root    string
	fanOut  int
}

// NewLocalFs roots an adapter at dir, creating it if necessary.
func NewLocalFs(dir string) (*LocalFs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Backend, "localfs-mkroot", "create drive root", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "localfs-abs", "resolve drive root", err)
	}
	return &LocalFs{root: abs, fanOut: 8}, nil
}

func (l *LocalFs) absPath(rel string) (string, error) {
	cleaned, err := cleanRelativePath(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

func (l *LocalFs) List(_ context.Context, dir string) ([]DriveEntry, error) {
	abs, err := l.absPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, "not-found", "directory does not exist")
		}
		return nil, errs.Wrap(errs.Backend, "localfs-list", "read directory", err)
	}

	out := make([]DriveEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		kind := KindFile
		if e.IsDir() {
			kind = KindDir
		}
		out = append(out, DriveEntry{
			Name:       e.Name(),
			Path:       filepath.ToSlash(filepath.Join(dir, e.Name())),
			Kind:       kind,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *LocalFs) Read(_ context.Context, p string) (*ReadResult, error) {
	abs, err := l.absPath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, "not-found", "file does not exist")
		}
		return nil, errs.Wrap(errs.Backend, "localfs-read", "open file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.Backend, "localfs-read", "stat file", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(abs))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &ReadResult{Stream: f, SizeBytes: info.Size(), ContentType: ct}, nil
}

// Write stages the stream at a sibling temp path and renames it into place,
// so readers never observe a partially written file (spec §4.1).
func (l *LocalFs) Write(_ context.Context, p string, r io.Reader, _ int64, _ string) (*WriteResult, error) {
	abs, err := l.absPath(p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, errs.Wrap(errs.Backend, "localfs-write", "create parent directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".tmp-*")
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "localfs-write", "create temp file", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return nil, errs.Wrap(errs.Backend, "localfs-write", "stream copy", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return nil, errs.Wrap(errs.Backend, "localfs-write", "close temp file", closeErr)
	}

	if err := os.Rename(tmpPath, abs); err != nil {
		os.Remove(tmpPath)
		return nil, errs.Wrap(errs.Backend, "localfs-write", "rename into place", err)
	}
	return &WriteResult{SizeBytes: n}, nil
}

func (l *LocalFs) Delete(_ context.Context, p string, recursive bool) error {
	abs, err := l.absPath(p)
	if err != nil {
		return err
	}
	if recursive {
		if err := os.RemoveAll(abs); err != nil {
			return errs.Wrap(errs.Backend, "localfs-delete", "recursive delete", err)
		}
		return nil
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return errs.New(errs.NotFound, "not-found", "path does not exist")
		}
		return errs.Wrap(errs.Backend, "localfs-delete", "delete", err)
	}
	return nil
}

func (l *LocalFs) Move(_ context.Context, src, dst string) error {
	absSrc, err := l.absPath(src)
	if err != nil {
		return err
	}
	absDst, err := l.absPath(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absDst), 0o755); err != nil {
		return errs.Wrap(errs.Backend, "localfs-move", "create destination parent", err)
	}
	if err := os.Rename(absSrc, absDst); err != nil {
		return errs.Wrap(errs.Backend, "localfs-move", "rename", err)
	}
	return nil
}

func (l *LocalFs) Mkdir(_ context.Context, p string) error {
	abs, err := l.absPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return errs.Wrap(errs.Backend, "localfs-mkdir", "mkdir", err)
	}
	return nil
}

// Stats walks the subtree rooted at path with a bounded fan-out of
// concurrent directory reads (golang.org/x/sync/errgroup).
func (l *LocalFs) Stats(ctx context.Context, p string) (*Stats, error) {
	abs, err := l.absPath(p)
	if err != nil {
		return nil, err
	}

	var (
		totalBytes, fileCount, dirCount int64
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(l.fanOut)

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				atomic.AddInt64(&dirCount, 1)
				d := filepath.Join(dir, e.Name())
				g.Go(func() error { return walk(d) })
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			atomic.AddInt64(&fileCount, 1)
			atomic.AddInt64(&totalBytes, info.Size())
		}
		return nil
	}

	if err := walk(abs); err != nil {
		return nil, errs.Wrap(errs.Backend, "localfs-stats", "walk tree", err)
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(errs.Backend, "localfs-stats", "walk tree", err)
	}

	return &Stats{TotalBytes: totalBytes, FileCount: fileCount, DirCount: dirCount}, nil
}
