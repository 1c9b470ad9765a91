package storageadapter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shogunrelay/internal/errs"
)

func TestLocalFsWriteReadRoundTrip(t *testing.T) {
	fs, err := NewLocalFs(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Write(ctx, "a/b/hello.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)

	rr, err := fs.Read(ctx, "a/b/hello.txt")
	require.NoError(t, err)
	defer rr.Stream.Close()
	require.EqualValues(t, 5, rr.SizeBytes)
}

func TestLocalFsListIsSorted(t *testing.T) {
	fs, err := NewLocalFs(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"zeta.txt", "alpha.txt", "mid.txt"} {
		_, err := fs.Write(ctx, name, strings.NewReader("x"), 1, "")
		require.NoError(t, err)
	}

	entries, err := fs.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "alpha.txt", entries[0].Name)
	require.Equal(t, "mid.txt", entries[1].Name)
	require.Equal(t, "zeta.txt", entries[2].Name)
}

func TestLocalFsRejectsPathEscape(t *testing.T) {
	fs, err := NewLocalFs(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Write(ctx, "../escape.txt", strings.NewReader("x"), 1, "")
	require.Error(t, err)
	e, ok := errs.Of(err)
	require.True(t, ok)
	require.Equal(t, "path-escape", e.Reason)

	_, err = fs.Read(ctx, "/etc/passwd")
	require.Error(t, err)
}

func TestLocalFsMoveAndDelete(t *testing.T) {
	fs, err := NewLocalFs(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Write(ctx, "src.txt", strings.NewReader("data"), 4, "")
	require.NoError(t, err)
	require.NoError(t, fs.Move(ctx, "src.txt", "dst.txt"))

	_, err = fs.Read(ctx, "src.txt")
	require.Error(t, err)

	rr, err := fs.Read(ctx, "dst.txt")
	require.NoError(t, err)
	rr.Stream.Close()

	require.NoError(t, fs.Delete(ctx, "dst.txt", false))
	_, err = fs.Read(ctx, "dst.txt")
	require.Error(t, err)
}

func TestLocalFsStats(t *testing.T) {
	fs, err := NewLocalFs(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Write(ctx, "dir1/a.txt", strings.NewReader("12345"), 5, "")
	require.NoError(t, err)
	_, err = fs.Write(ctx, "dir1/dir2/b.txt", strings.NewReader("1234567890"), 10, "")
	require.NoError(t, err)

	stats, err := fs.Stats(ctx, "")
	require.NoError(t, err)
	require.EqualValues(t, 15, stats.TotalBytes)
	require.EqualValues(t, 2, stats.FileCount)
	require.GreaterOrEqual(t, stats.DirCount, int64(1))
}
