// Package storageadapter implements the backend-agnostic file-tree contract
// (spec §4.1): a rooted tree of list/read/write/delete/move/stats
// operations over either a local filesystem or an S3-compatible bucket.
package storageadapter

import (
	"context"
	"io"
	"time"
)

// Kind distinguishes a DriveEntry's type.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// DriveEntry is a single listing row.
type DriveEntry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Kind        Kind      `json:"kind"`
	SizeBytes   int64     `json:"sizeBytes"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// WriteResult reports the size actually written.
type WriteResult struct {
	SizeBytes int64
}

// ReadResult carries the content stream plus its metadata; callers must
// Close the stream.
type ReadResult struct {
	Stream      io.ReadCloser
	SizeBytes   int64
	ContentType string
}

// Stats summarizes the whole tree (or a subtree).
type Stats struct {
	TotalBytes int64
	FileCount  int64
	DirCount   int64
}

// Adapter is the capability interface every backend variant implements.
// Selection between LocalFs and S3Compatible happens once, at construction
// time, per spec §9 ("no runtime reflection... variant picked at
// construction").
type Adapter interface {
	List(ctx context.Context, path string) ([]DriveEntry, error)
	Read(ctx context.Context, path string) (*ReadResult, error)
	Write(ctx context.Context, path string, r io.Reader, size int64, contentType string) (*WriteResult, error)
	Delete(ctx context.Context, path string, recursive bool) error
	Move(ctx context.Context, src, dst string) error
	Mkdir(ctx context.Context, path string) error
	Stats(ctx context.Context, path string) (*Stats, error)
}
