package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileManager stores uploaded audio under <base>/files, one file per
// recording, named by a fresh UUID plus the upload's extension.
type FileManager struct {
	baseDir  string
	filesDir string
}

func NewFileManager(baseDir string) (*FileManager, error) {
	fm := &FileManager{
		baseDir:  baseDir,
		filesDir: filepath.Join(baseDir, "files"),
	}

	for _, dir := range []string{fm.baseDir, fm.filesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	return fm, nil
}

// Save writes content to a new file and returns its storage path (relative,
// the key used for later reads/deletes) and the public URL it is served at.
func (fm *FileManager) Save(content []byte, fileName string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".webm"
	}

	name := uuid.NewString() + ext
	fullPath := filepath.Join(fm.filesDir, name)

	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return "", "", fmt.Errorf("write audio file: %w", err)
	}

	return name, "/files/" + name, nil
}

func (fm *FileManager) Read(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(fm.filesDir, filePath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("audio file %s: %w", filePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return content, nil
}

func (fm *FileManager) Delete(filePath string) error {
	err := os.Remove(filepath.Join(fm.filesDir, filePath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove audio file: %w", err)
	}
	return nil
}

// FilesDir returns the directory served under /files.
func (fm *FileManager) FilesDir() string {
	return fm.filesDir
}
