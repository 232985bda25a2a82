// Package app orchestrates the request-validation and file-upload pipeline:
// validate body, validate files, upload staged files to remote storage,
// persist the record, reclaim local staging on every exit path.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bookvault/internal/upload"
	"bookvault/internal/util"
	"bookvault/internal/validate"
	"bookvault/pkg/auth"
	"bookvault/pkg/domain"
	"bookvault/pkg/storage"
	"bookvault/pkg/store"
)

const (
	coverFolder = "book-covers"
	fileFolder  = "book-pdfs"
)

var bookCreateRules = validate.RuleSet{
	"title": {"required", "string", "min:2", "max:120"},
	"genre": {"required", "string", "min:2", "max:60"},
}

// Update accepts any subset of fields, so nothing is required.
var bookUpdateRules = validate.RuleSet{
	"title": {"string", "min:2", "max:120"},
	"genre": {"string", "min:2", "max:60"},
}

var bookCreateFileRules = map[string][]string{
	"coverImage": {"required", "image", "mimes:jpg,jpeg,png,gif"},
	"file":       {"required", "file", "mimes:pdf"},
}

var bookUpdateFileRules = map[string][]string{
	"coverImage": {"image", "mimes:jpg,jpeg,png,gif"},
	"file":       {"file", "mimes:pdf"},
}

var registerRules = validate.RuleSet{
	"username": {"required", "string", "min:3", "max:30"},
	"email":    {"required", "email"},
	"password": {"required", "string", "min:8", "max:30"},
}

var loginRules = validate.RuleSet{
	"email":    {"required", "email"},
	"password": {"required", "string"},
}

// Config wires the collaborators of the core service.
type Config struct {
	Store  store.Store
	Assets storage.AssetStore
	Temp   *upload.TempStore
	Tokens *auth.TokenManager
}

// App is the core application service.
type App struct {
	store  store.Store
	assets storage.AssetStore
	temp   *upload.TempStore
	tokens *auth.TokenManager
}

// New constructs the application service.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Assets == nil {
		return nil, errors.New("asset store is required")
	}
	if cfg.Temp == nil {
		return nil, errors.New("temp store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token manager is required")
	}
	return &App{
		store:  cfg.Store,
		assets: cfg.Assets,
		temp:   cfg.Temp,
		tokens: cfg.Tokens,
	}, nil
}

// Register creates a user and issues an access token.
func (a *App) Register(ctx context.Context, username, email, password string) (domain.User, string, error) {
	if err := a.checkFields(map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}, registerRules); err != nil {
		return domain.User{}, "", err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Username:     strings.TrimSpace(username),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues an access token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	if err := a.checkFields(map[string]any{
		"email":    email,
		"password": password,
	}, loginRules); err != nil {
		return domain.User{}, "", err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// CreateBook runs the full pipeline for a new record. Staged files are
// reclaimed on every exit path. A failure after the cover upload triggers a
// best-effort delete of the partial remote upload; there is no transaction
// spanning the object store and the database.
func (a *App) CreateBook(ctx context.Context, author string, fields map[string]any, files map[string][]upload.File) (domain.Book, error) {
	defer a.temp.ReclaimAll(files)

	if err := a.checkFields(fields, bookCreateRules); err != nil {
		return domain.Book{}, err
	}
	if outcome := validate.Files(files, bookCreateFileRules); !outcome.OK() {
		return domain.Book{}, &ValidationError{Fields: outcome.Errors}
	}
	cover := files["coverImage"][0]
	bookFile := files["file"][0]

	coverRef, err := a.assets.Upload(ctx, cover.Path, cover.MimeType, coverFolder, domain.CategoryImage)
	if err != nil {
		return domain.Book{}, fmt.Errorf("upload cover image: %w", err)
	}
	fileRef, err := a.assets.Upload(ctx, bookFile.Path, bookFile.MimeType, fileFolder, domain.CategoryRaw)
	if err != nil {
		a.discardAsset(ctx, coverRef)
		return domain.Book{}, fmt.Errorf("upload book file: %w", err)
	}

	now := time.Now().UTC()
	book := domain.Book{
		ID:         util.NewID(),
		Title:      stringField(fields, "title"),
		Genre:      stringField(fields, "genre"),
		Author:     author,
		CoverImage: coverRef,
		File:       fileRef,
		Pages:      a.probePages(ctx, bookFile),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.SaveBook(book); err != nil {
		a.discardAsset(ctx, coverRef)
		a.discardAsset(ctx, fileRef)
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// UpdateBook replaces the supplied fields and files of an existing record.
// Replacement assets are uploaded before the old ones are deleted, so the
// record never points at a missing remote object.
func (a *App) UpdateBook(ctx context.Context, author, id string, fields map[string]any, files map[string][]upload.File) (domain.Book, error) {
	defer a.temp.ReclaimAll(files)

	if err := a.checkFields(fields, bookUpdateRules); err != nil {
		return domain.Book{}, err
	}
	if outcome := validate.Files(files, bookUpdateFileRules); !outcome.OK() {
		return domain.Book{}, &ValidationError{Fields: outcome.Errors}
	}

	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	if book.Author != author {
		return domain.Book{}, ErrForbidden
	}

	if title := stringField(fields, "title"); title != "" {
		book.Title = title
	}
	if genre := stringField(fields, "genre"); genre != "" {
		book.Genre = genre
	}
	if group := files["coverImage"]; len(group) > 0 {
		newRef, err := a.assets.Upload(ctx, group[0].Path, group[0].MimeType, coverFolder, domain.CategoryImage)
		if err != nil {
			return domain.Book{}, fmt.Errorf("upload cover image: %w", err)
		}
		old := book.CoverImage
		book.CoverImage = newRef
		a.discardAsset(ctx, old)
	}
	if group := files["file"]; len(group) > 0 {
		newRef, err := a.assets.Upload(ctx, group[0].Path, group[0].MimeType, fileFolder, domain.CategoryRaw)
		if err != nil {
			return domain.Book{}, fmt.Errorf("upload book file: %w", err)
		}
		old := book.File
		book.File = newRef
		book.Pages = a.probePages(ctx, group[0])
		a.discardAsset(ctx, old)
	}

	book.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes the record and both remote assets. Asset deletes are
// best-effort and independent of each other; only a persistence failure
// aborts the operation.
func (a *App) DeleteBook(ctx context.Context, author, id string) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if book.Author != author {
		return ErrForbidden
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range []domain.AssetRef{book.CoverImage, book.File} {
		if ref.IsZero() {
			continue
		}
		g.Go(func() error {
			a.discardAsset(gctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// ListBooks returns every book in the catalog.
func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return a.store.ListBooks()
}

// ListBooksByAuthor returns the books created by one author.
func (a *App) ListBooksByAuthor(ctx context.Context, author string) ([]domain.Book, error) {
	return a.store.ListBooksByAuthor(author)
}

// GetBook retrieves one book by id.
func (a *App) GetBook(ctx context.Context, id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	return book, nil
}

func (a *App) checkFields(fields map[string]any, rules validate.RuleSet) error {
	outcome, err := validate.Fields(fields, rules)
	if err != nil {
		return fmt.Errorf("evaluate rules: %w", err)
	}
	if !outcome.OK() {
		return &ValidationError{Fields: outcome.Errors}
	}
	return nil
}

// discardAsset deletes a remote asset, logging instead of failing.
func (a *App) discardAsset(ctx context.Context, ref domain.AssetRef) {
	if ref.IsZero() {
		return
	}
	if err := a.assets.Delete(ctx, ref); err != nil {
		util.LoggerFromContext(ctx).Warn("delete remote asset", "url", ref.URL, "err", err)
	}
}

func (a *App) probePages(ctx context.Context, f upload.File) int {
	if f.MimeType != "application/pdf" {
		return 0
	}
	pages, err := pdfPageCount(f.Path)
	if err != nil {
		util.LoggerFromContext(ctx).Debug("probe pdf pages", "file", f.OriginalName, "err", err)
		return 0
	}
	return pages
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}
