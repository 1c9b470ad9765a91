package storageadapter

import (
	"bytes"
	"context"
	"io"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"shogunrelay/internal/errs"
)

// S3Compatible is the Adapter variant backed by an S3-compatible bucket
// (AWS S3, or any endpoint speaking the same API, e.g. a self-hosted
// object store). Writes go through s3manager for single/multipart upload
// selection and return once the upload call succeeds; no follow-up
// head-object or copy call is made.
type S3Compatible struct {
	bucket   string
	prefix   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3Compatible builds an adapter rooted at bucket/prefix, using region
// and an optional custom endpoint (for S3-compatible, non-AWS stores).
func NewS3Compatible(bucket, region, endpoint, prefix string) (*S3Compatible, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "s3-session", "create aws session", err)
	}
	return &S3Compatible{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (a *S3Compatible) key(rel string) (string, error) {
	cleaned, err := cleanRelativePath(rel)
	if err != nil {
		return "", err
	}
	if a.prefix == "" {
		return cleaned, nil
	}
	return a.prefix + "/" + cleaned, nil
}

func (a *S3Compatible) List(ctx context.Context, dir string) ([]DriveEntry, error) {
	prefix, err := a.key(dir)
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	out, err := a.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "s3-list", "list objects", err)
	}

	var entries []DriveEntry
	for _, p := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(p.Prefix), prefix), "/")
		entries = append(entries, DriveEntry{Name: name, Path: path.Join(dir, name), Kind: KindDir})
	}
	for _, obj := range out.Contents {
		name := strings.TrimPrefix(aws.StringValue(obj.Key), prefix)
		if name == "" {
			continue
		}
		entries = append(entries, DriveEntry{
			Name:       name,
			Path:       path.Join(dir, name),
			Kind:       KindFile,
			SizeBytes:  aws.Int64Value(obj.Size),
			ModifiedAt: aws.TimeValue(obj.LastModified),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (a *S3Compatible) Read(ctx context.Context, p string) (*ReadResult, error) {
	key, err := a.key(p)
	if err != nil {
		return nil, err
	}
	out, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errs.New(errs.NotFound, "not-found", "object does not exist")
		}
		return nil, errs.Wrap(errs.Backend, "s3-read", "get object", err)
	}
	ct := aws.StringValue(out.ContentType)
	if ct == "" {
		ct = mime.TypeByExtension(path.Ext(key))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &ReadResult{Stream: out.Body, SizeBytes: aws.Int64Value(out.ContentLength), ContentType: ct}, nil
}

func (a *S3Compatible) Write(ctx context.Context, p string, r io.Reader, _ int64, contentType string) (*WriteResult, error) {
	key, err := a.key(p)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// s3manager buffers/splits automatically; the caller's stream need not
	// be seekable or pre-sized, matching the adapter contract's plain
	// io.Reader input.
	counter := &countingReader{r: r}
	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        counter,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "s3-write", "put object", err)
	}
	return &WriteResult{SizeBytes: counter.n}, nil
}

func (a *S3Compatible) Delete(ctx context.Context, p string, recursive bool) error {
	key, err := a.key(p)
	if err != nil {
		return err
	}
	if !recursive {
		_, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return errs.Wrap(errs.Backend, "s3-delete", "delete object", err)
		}
		return nil
	}

	prefix := key
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	out, err := a.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return errs.Wrap(errs.Backend, "s3-delete", "list for recursive delete", err)
	}
	for _, obj := range out.Contents {
		if _, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    obj.Key,
		}); err != nil {
			return errs.Wrap(errs.Backend, "s3-delete", "recursive delete object", err)
		}
	}
	return nil
}

// Move copies then deletes, since cross-prefix renames are not atomic on S3
// (spec §4.1: "for cross-prefix moves, copy-then-delete").
func (a *S3Compatible) Move(ctx context.Context, src, dst string) error {
	srcKey, err := a.key(src)
	if err != nil {
		return err
	}
	dstKey, err := a.key(dst)
	if err != nil {
		return err
	}
	_, err = a.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(a.bucket + "/" + srcKey),
	})
	if err != nil {
		return errs.Wrap(errs.Backend, "s3-move", "copy object", err)
	}
	_, err = a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(srcKey),
	})
	if err != nil {
		return errs.Wrap(errs.Backend, "s3-move", "delete source object", err)
	}
	return nil
}

// Mkdir is a no-op marker object: S3 has no real directories, so a
// zero-byte object with a trailing slash key stands in for one, letting
// List's CommonPrefixes logic surface it even when empty.
func (a *S3Compatible) Mkdir(ctx context.Context, p string) error {
	key, err := a.key(p)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return errs.Wrap(errs.Backend, "s3-mkdir", "put marker object", err)
	}
	return nil
}

func (a *S3Compatible) Stats(ctx context.Context, p string) (*Stats, error) {
	prefix, err := a.key(p)
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var stats Stats
	err = a.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			if strings.HasSuffix(aws.StringValue(obj.Key), "/") {
				stats.DirCount++
				continue
			}
			stats.FileCount++
			stats.TotalBytes += aws.Int64Value(obj.Size)
		}
		return true
	})
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "s3-stats", "list objects", err)
	}
	return &stats, nil
}

func isS3NotFound(err error) bool {
	return strings.Contains(err.Error(), s3.ErrCodeNoSuchKey) || strings.Contains(err.Error(), "NotFound")
}

// countingReader wraps an io.Reader to track bytes actually read, since
// s3manager does not otherwise report the final object size back to us.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
