package signing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
)

// FilesystemArtifacts stores rendered document bytes write-once on disk. A
// signed artifact is immutable; overwriting an existing one is a conflict.
type FilesystemArtifacts struct {
	dir string
}

func NewFilesystemArtifacts(dir string) (*FilesystemArtifacts, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FilesystemArtifacts{dir: dir}, nil
}

func (f *FilesystemArtifacts) Save(_ context.Context, docID domain.DocumentID, data []byte) (string, error) {
	path := filepath.Join(f.dir, docID.String()+".txt")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o440)
	if err != nil {
		if os.IsExist(err) {
			return "", sentinel.ErrConflict
		}
		return "", fmt.Errorf("create artifact: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return "file://" + path, nil
}

func (f *FilesystemArtifacts) Load(_ context.Context, uri string) ([]byte, error) {
	path := strings.TrimPrefix(uri, "file://")
	if filepath.Dir(path) != filepath.Clean(f.dir) {
		return nil, sentinel.ErrNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}
