package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"bookvault/internal/upload"
	"bookvault/pkg/auth"
	"bookvault/pkg/domain"
	"bookvault/pkg/storage"
	"bookvault/pkg/store"
)

// fakeAssetStore records uploads and deletes by object key so tests can assert
// on ordering and on the upload/delete key round trip.
type fakeAssetStore struct {
	mu         sync.Mutex
	uploads    []string
	deletes    []string
	events     []string
	failFolder string
}

func (f *fakeAssetStore) Upload(ctx context.Context, localPath, mimeType, folder string, category domain.AssetCategory) (domain.AssetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if folder == f.failFolder {
		return domain.AssetRef{}, errors.New("remote upload failed")
	}
	publicID := storage.PublicIDFromPath(localPath)
	format := storage.FormatFromMime(mimeType)
	key := storage.ObjectKey(folder, publicID, format, category)
	f.uploads = append(f.uploads, key)
	f.events = append(f.events, "upload "+key)
	return domain.AssetRef{
		URL:      "http://assets.local/bookvault/" + folder + "/" + publicID + "." + format,
		Category: category,
	}, nil
}

func (f *fakeAssetStore) Delete(ctx context.Context, ref domain.AssetRef) error {
	key, err := storage.DeleteKeyFromURL(ref.URL, ref.Category)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	f.events = append(f.events, "delete "+key)
	return nil
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *fakeAssetStore, *upload.TempStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	assets := &fakeAssetStore{}
	temp, err := upload.NewTempStore(t.TempDir())
	if err != nil {
		t.Fatalf("new temp store: %v", err)
	}
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	a, err := New(Config{Store: mem, Assets: assets, Temp: temp, Tokens: tokens})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem, assets, temp
}

func stage(t *testing.T, temp *upload.TempStore, field, name, mime, content string) upload.File {
	t.Helper()
	f, err := temp.Save(field, name, mime, strings.NewReader(content))
	if err != nil {
		t.Fatalf("stage %s: %v", field, err)
	}
	return f
}

func bookFiles(t *testing.T, temp *upload.TempStore) map[string][]upload.File {
	t.Helper()
	return map[string][]upload.File{
		"coverImage": {stage(t, temp, "coverImage", "cover.jpg", "image/jpeg", "jpeg bytes")},
		"file":       {stage(t, temp, "file", "book.pdf", "application/pdf", "not a real pdf")},
	}
}

func assertReclaimed(t *testing.T, files map[string][]upload.File) {
	t.Helper()
	for field, group := range files {
		for _, f := range group {
			if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
				t.Fatalf("staged file for %s still present at %s", field, f.Path)
			}
		}
	}
}

func TestCreateBookPersistsRecord(t *testing.T) {
	a, mem, assets, temp := newTestApp(t)
	files := bookFiles(t, temp)

	book, err := a.CreateBook(context.Background(), "user-1", map[string]any{
		"title": "Dune",
		"genre": "SciFi",
	}, files)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if book.ID == "" || book.Author != "user-1" {
		t.Fatalf("unexpected book identity: %+v", book)
	}
	if book.CoverImage.IsZero() || book.File.IsZero() {
		t.Fatalf("asset refs not populated: %+v", book)
	}
	if book.File.Category != domain.CategoryRaw || book.CoverImage.Category != domain.CategoryImage {
		t.Fatalf("wrong asset categories: %+v", book)
	}
	got, ok, err := mem.GetBook(book.ID)
	if err != nil || !ok {
		t.Fatalf("book not persisted: ok=%v err=%v", ok, err)
	}
	if got.Title != "Dune" || got.Genre != "SciFi" {
		t.Fatalf("persisted fields = %q/%q", got.Title, got.Genre)
	}
	if len(assets.uploads) != 2 {
		t.Fatalf("uploads = %v, want cover and file", assets.uploads)
	}
	assertReclaimed(t, files)
}

func TestCreateBookValidationFailureSkipsUpload(t *testing.T) {
	a, mem, assets, temp := newTestApp(t)
	files := bookFiles(t, temp)

	_, err := a.CreateBook(context.Background(), "user-1", map[string]any{
		"title": "D",
		"genre": "SciFi",
	}, files)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, ok := verr.Fields["title"]; !ok {
		t.Fatalf("expected title violation, got %v", verr.Fields)
	}
	if len(assets.uploads) != 0 {
		t.Fatalf("no uploads expected, got %v", assets.uploads)
	}
	books, _ := mem.ListBooks()
	if len(books) != 0 {
		t.Fatalf("no record expected, got %d", len(books))
	}
	assertReclaimed(t, files)
}

func TestCreateBookMissingFileFailsValidation(t *testing.T) {
	a, _, assets, temp := newTestApp(t)
	files := map[string][]upload.File{
		"coverImage": {stage(t, temp, "coverImage", "cover.jpg", "image/jpeg", "jpeg bytes")},
	}

	_, err := a.CreateBook(context.Background(), "user-1", map[string]any{
		"title": "Dune",
		"genre": "SciFi",
	}, files)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if got := verr.Fields["file"]; len(got) != 1 || got[0] != "file is required" {
		t.Fatalf("file violations = %v", got)
	}
	if len(assets.uploads) != 0 {
		t.Fatalf("no uploads expected, got %v", assets.uploads)
	}
	assertReclaimed(t, files)
}

func TestCreateBookSecondUploadFailureDiscardsFirst(t *testing.T) {
	a, mem, assets, temp := newTestApp(t)
	assets.failFolder = "book-pdfs"
	files := bookFiles(t, temp)

	_, err := a.CreateBook(context.Background(), "user-1", map[string]any{
		"title": "Dune",
		"genre": "SciFi",
	}, files)
	if err == nil {
		t.Fatalf("expected upload error")
	}
	if len(assets.uploads) != 1 {
		t.Fatalf("uploads = %v, want only the cover", assets.uploads)
	}
	if len(assets.deletes) != 1 || assets.deletes[0] != assets.uploads[0] {
		t.Fatalf("deletes = %v, want compensating delete of %v", assets.deletes, assets.uploads)
	}
	books, _ := mem.ListBooks()
	if len(books) != 0 {
		t.Fatalf("no record expected, got %d", len(books))
	}
	assertReclaimed(t, files)
}

func TestUpdateBookByOtherUserForbidden(t *testing.T) {
	a, mem, _, temp := newTestApp(t)
	book, err := a.CreateBook(context.Background(), "owner", map[string]any{
		"title": "Dune",
		"genre": "SciFi",
	}, bookFiles(t, temp))
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	_, err = a.UpdateBook(context.Background(), "intruder", book.ID, map[string]any{"title": "Stolen"}, nil)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	got, _, _ := mem.GetBook(book.ID)
	if got.Title != "Dune" {
		t.Fatalf("record changed despite forbidden update: %q", got.Title)
	}
}

func TestUpdateBookReplacesCoverAfterUpload(t *testing.T) {
	a, mem, assets, temp := newTestApp(t)
	book, err := a.CreateBook(context.Background(), "owner", map[string]any{
		"title": "Dune",
		"genre": "SciFi",
	}, bookFiles(t, temp))
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	oldURL := book.CoverImage.URL

	files := map[string][]upload.File{
		"coverImage": {stage(t, temp, "coverImage", "new.png", "image/png", "png bytes")},
	}
	updated, err := a.UpdateBook(context.Background(), "owner", book.ID, map[string]any{"title": "Dune Messiah"}, files)
	if err != nil {
		t.Fatalf("update book: %v", err)
	}
	if updated.CoverImage.URL == oldURL {
		t.Fatalf("cover ref not replaced")
	}
	if updated.File.URL != book.File.URL {
		t.Fatalf("book file ref changed without a replacement upload")
	}

	// The replacement upload must land before the old asset is deleted.
	oldKey, err := storage.DeleteKeyFromURL(oldURL, domain.CategoryImage)
	if err != nil {
		t.Fatalf("derive old key: %v", err)
	}
	uploadIdx, deleteIdx := -1, -1
	for i, ev := range assets.events {
		if strings.HasPrefix(ev, "upload book-covers/") && ev != "upload "+oldKey {
			uploadIdx = i
		}
		if ev == "delete "+oldKey {
			deleteIdx = i
		}
	}
	if uploadIdx == -1 || deleteIdx == -1 || uploadIdx > deleteIdx {
		t.Fatalf("event order = %v, want replacement upload before old delete", assets.events)
	}
	got, _, _ := mem.GetBook(book.ID)
	if got.Title != "Dune Messiah" {
		t.Fatalf("title = %q", got.Title)
	}
	assertReclaimed(t, files)
}

func TestUpdateBookConcurrentLastWriteWins(t *testing.T) {
	a, mem, _, temp := newTestApp(t)
	book, err := a.CreateBook(context.Background(), "owner", map[string]any{
		"title": "Dune",
		"genre": "SciFi",
	}, bookFiles(t, temp))
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	titles := []string{"Dune Messiah", "Children of Dune"}
	errs := make([]error, len(titles))
	var wg sync.WaitGroup
	for i, title := range titles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = a.UpdateBook(context.Background(), "owner", book.ID, map[string]any{"title": title}, nil)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	got, ok, err := mem.GetBook(book.ID)
	if err != nil || !ok {
		t.Fatalf("fetch book: ok=%v err=%v", ok, err)
	}
	if got.Title != titles[0] && got.Title != titles[1] {
		t.Fatalf("final title = %q, want one of %v", got.Title, titles)
	}
}

func TestUpdateBookUnknownID(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	_, err := a.UpdateBook(context.Background(), "owner", "missing", map[string]any{"title": "New"}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteBookRemovesAssetsAndRecord(t *testing.T) {
	a, mem, assets, temp := newTestApp(t)
	book, err := a.CreateBook(context.Background(), "owner", map[string]any{
		"title": "Dune",
		"genre": "SciFi",
	}, bookFiles(t, temp))
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	if err := a.DeleteBook(context.Background(), "owner", book.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	if _, ok, _ := mem.GetBook(book.ID); ok {
		t.Fatalf("record still present after delete")
	}
	if len(assets.deletes) != 2 {
		t.Fatalf("deletes = %v, want both assets", assets.deletes)
	}
	for _, key := range assets.uploads {
		found := false
		for _, del := range assets.deletes {
			if del == key {
				found = true
			}
		}
		if !found {
			t.Fatalf("uploaded key %q never deleted (deletes %v)", key, assets.deletes)
		}
	}
}

func TestDeleteBookMissing(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	if err := a.DeleteBook(context.Background(), "owner", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteBookByOtherUserForbidden(t *testing.T) {
	a, mem, assets, temp := newTestApp(t)
	book, err := a.CreateBook(context.Background(), "owner", map[string]any{
		"title": "Dune",
		"genre": "SciFi",
	}, bookFiles(t, temp))
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	if err := a.DeleteBook(context.Background(), "intruder", book.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, ok, _ := mem.GetBook(book.ID); !ok {
		t.Fatalf("record deleted despite forbidden request")
	}
	if len(assets.deletes) != 0 {
		t.Fatalf("deletes = %v, want none", assets.deletes)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	ctx := context.Background()

	user, token, err := a.Register(ctx, "frank", "Frank@Example.com", "longenough")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token == "" || user.ID == "" {
		t.Fatalf("missing token or id: token=%q user=%+v", token, user)
	}
	if user.Email != "frank@example.com" {
		t.Fatalf("email not normalised: %q", user.Email)
	}

	if _, _, err := a.Register(ctx, "other", "frank@example.com", "longenough"); !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("duplicate register err = %v", err)
	}

	got, token, err := a.Login(ctx, "frank@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID || token == "" {
		t.Fatalf("login identity mismatch: %+v", got)
	}

	if _, _, err := a.Login(ctx, "frank@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, _, err := a.Login(ctx, "nobody@example.com", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	_, _, err := a.Register(context.Background(), "fr", "not-an-email", "short")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	for _, field := range []string{"username", "email", "password"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("missing %s violation in %v", field, verr.Fields)
		}
	}
}
