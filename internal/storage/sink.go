// Package storage persists the most recent notebook snapshot.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/proteus/backend/internal/util"
)

const snapshotContentType = "text/markdown; charset=utf-8"

// SnapshotSink overwrites the stored notebook snapshot with data.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, data []byte) error
	String() string
}

// FileSink keeps the snapshot in a local file.
type FileSink struct {
	Path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

// WriteSnapshot replaces the file via a temporary file in the same directory
// so readers never see a partial snapshot.
func (f *FileSink) WriteSnapshot(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (f *FileSink) String() string {
	return "file://" + f.Path
}

// NewSnapshotSink picks the S3 sink when AWS_BUCKET is set and the file sink
// at SNAPSHOT_PATH otherwise.
func NewSnapshotSink(ctx context.Context) (SnapshotSink, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	if bucket == "" {
		return NewFileSink(util.GetEnvString("SNAPSHOT_PATH", "log.md")), nil
	}
	client, err := NewS3Client(ctx)
	if err != nil {
		return nil, err
	}
	return NewS3Sink(client, bucket, util.GetEnvString("SNAPSHOT_KEY", "notebook/log.md")), nil
}
