package upload

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*TempStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewTempStore(dir)
	if err != nil {
		t.Fatalf("new temp store: %v", err)
	}
	return s, dir
}

func TestSaveGeneratesCollisionResistantName(t *testing.T) {
	s, dir := newTestStore(t)
	f, err := s.Save("coverImage", "My Cover.jpg", "image/jpeg", strings.NewReader("fake-jpeg"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	pattern := regexp.MustCompile(`^coverImage-\d+-\d+\.jpg$`)
	if !pattern.MatchString(filepath.Base(f.Path)) {
		t.Fatalf("staged name %q does not match {field}-{millis}-{random}{ext}", filepath.Base(f.Path))
	}
	if f.OriginalName != "My Cover.jpg" || f.MimeType != "image/jpeg" || f.Size != int64(len("fake-jpeg")) {
		t.Fatalf("unexpected file metadata: %+v", f)
	}
	if filepath.Dir(f.Path) != dir {
		t.Fatalf("staged outside the staging dir: %s", f.Path)
	}
	if _, err := os.Stat(f.Path); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
}

func TestSaveRejectsMimeOutsideAllowList(t *testing.T) {
	s, dir := newTestStore(t)
	_, err := s.Save("file", "payload.exe", "application/octet-stream", strings.NewReader("x"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("rejected file must not be written, found %d entries", len(entries))
	}
}

func TestSaveEnforcesSizeLimit(t *testing.T) {
	s, dir := newTestStore(t)
	oversized := bytes.NewReader(make([]byte, MaxFileBytes+1))
	_, err := s.Save("file", "big.pdf", "application/pdf", oversized)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("oversized file must be removed, found %d entries", len(entries))
	}
}

func TestReclaimIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	f, err := s.Save("file", "book.pdf", "application/pdf", strings.NewReader("pdf"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Reclaim(f.Path)
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Fatalf("file still present after reclaim")
	}
	// A second reclaim of the same path must be a no-op.
	s.Reclaim(f.Path)
	s.Reclaim("")
}

func TestReclaimAllEmptiesTheStagingDir(t *testing.T) {
	s, dir := newTestStore(t)
	files := make(map[string][]File)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		f, err := s.Save("file", name, "application/pdf", strings.NewReader("pdf"))
		if err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		files["file"] = append(files["file"], f)
	}
	s.ReclaimAll(files)
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("staging dir not empty after ReclaimAll: %d entries", len(entries))
	}
}
