package attachment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskSink writes uploads below a local directory served under publicBase.
type DiskSink struct {
	dir        string
	publicBase string
}

// NewDiskSink constructs a DiskSink.
func NewDiskSink(dir, publicBase string) *DiskSink {
	if publicBase == "" {
		publicBase = "/uploads"
	}
	return &DiskSink{dir: dir, publicBase: strings.TrimRight(publicBase, "/")}
}

// Name implements Sink.
func (s *DiskSink) Name() string { return "disk" }

// Dir returns the root directory.
func (s *DiskSink) Dir() string { return s.dir }

// Save implements Sink.
func (s *DiskSink) Save(ctx context.Context, folder string, up Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := objectKey(folder, up)
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("attachment: mkdir: %w", err)
	}
	if err := os.WriteFile(target, up.Body, 0o644); err != nil {
		return "", fmt.Errorf("attachment: write %s: %w", key, err)
	}
	return s.publicBase + "/" + key, nil
}
