// Package upload stages inbound multipart files on local disk before they are
// copied to remote storage.
package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// MaxFileBytes is the per-file size limit for staged uploads.
const MaxFileBytes = 9 << 20

var (
	// ErrFileTooLarge is returned when an incoming file exceeds MaxFileBytes.
	ErrFileTooLarge = errors.New("file exceeds the 9 MiB size limit")
	// ErrUnsupportedType is returned for mime types outside the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type, only JPEG, PNG, GIF and PDF are allowed")
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"application/pdf": true,
}

// File is a staged upload. It lives in the temp directory until Reclaim is
// called, after its content has been copied elsewhere or the pipeline aborts.
type File struct {
	FieldName    string
	Path         string
	OriginalName string
	MimeType     string
	Size         int64
}

// TempStore writes incoming file streams to a fixed local directory with
// collision-resistant names.
type TempStore struct {
	dir string
}

// NewTempStore creates the staging directory if missing.
func NewTempStore(dir string) (*TempStore, error) {
	if dir == "" {
		return nil, errors.New("staging directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &TempStore{dir: dir}, nil
}

// Save persists one multipart part to disk. The generated name is
// {field}-{unixMillis}-{random}{originalExt} so concurrent uploads for the
// same field cannot collide. Files with a mime type outside the allow-list
// are refused before any bytes are written.
func (s *TempStore) Save(field, originalName, mimeType string, r io.Reader) (File, error) {
	if !allowedMimeTypes[mimeType] {
		return File{}, ErrUnsupportedType
	}
	name := fmt.Sprintf("%s-%d-%d%s", field, time.Now().UnixMilli(), rand.Intn(1_000_000_000), filepath.Ext(originalName))
	target := filepath.Join(s.dir, name)

	out, err := os.Create(target)
	if err != nil {
		return File{}, fmt.Errorf("create staged file: %w", err)
	}
	written, err := io.Copy(out, io.LimitReader(r, MaxFileBytes+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.Reclaim(target)
		return File{}, fmt.Errorf("write staged file: %w", err)
	}
	if written > MaxFileBytes {
		s.Reclaim(target)
		return File{}, ErrFileTooLarge
	}
	return File{
		FieldName:    field,
		Path:         target,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         written,
	}, nil
}

// Reclaim deletes a staged file. It is idempotent and best-effort; an already
// missing file is not an error, anything else is logged and swallowed.
func (s *TempStore) Reclaim(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("reclaim staged file", "path", path, "err", err)
	}
}

// ReclaimAll releases every staged file in the map.
func (s *TempStore) ReclaimAll(files map[string][]File) {
	for _, group := range files {
		for _, f := range group {
			s.Reclaim(f.Path)
		}
	}
}
