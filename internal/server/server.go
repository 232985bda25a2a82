// Package server exposes the HTTP surface of the catalog.
package server

import (
	"errors"
	"net/http"
	"strings"

	"bookvault/internal/app"
	"bookvault/internal/ratelimit"
	"bookvault/internal/upload"
	"bookvault/internal/util"
	"bookvault/pkg/auth"
	"bookvault/pkg/domain"
)

const defaultMaxRequestBytes = 32 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App             *app.App
	Tokens          *auth.TokenManager
	Temp            *upload.TempStore
	Limiter         *ratelimit.FixedWindowLimiter // optional, nil disables limiting
	Env             string
	MaxRequestBytes int64
}

// Server exposes HTTP endpoints for users and books.
type Server struct {
	app             *app.App
	tokens          *auth.TokenManager
	temp            *upload.TempStore
	limiter         *ratelimit.FixedWindowLimiter
	mux             *http.ServeMux
	development     bool
	maxRequestBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token manager is required")
	}
	if cfg.Temp == nil {
		return nil, errors.New("temp store is required")
	}
	maxRequestBytes := cfg.MaxRequestBytes
	if maxRequestBytes <= 0 {
		maxRequestBytes = defaultMaxRequestBytes
	}
	s := &Server{
		app:             cfg.App,
		tokens:          cfg.Tokens,
		temp:            cfg.Temp,
		limiter:         cfg.Limiter,
		mux:             http.NewServeMux(),
		development:     strings.EqualFold(strings.TrimSpace(cfg.Env), "development"),
		maxRequestBytes: maxRequestBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// users
	s.mux.Handle("/api/users/register", s.withLimit("register", http.HandlerFunc(s.handleRegister)))
	s.mux.Handle("/api/users/login", s.withLimit("login", http.HandlerFunc(s.handleLogin)))

	// books
	s.mux.HandleFunc("/api/books", s.handleListBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookSubtree)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBookSubtree dispatches /api/books/{...} by hand: "create" and
// "update/{id}" are the mutation routes, a bare trailing segment is a book id.
func (s *Server) handleBookSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/books/")
	switch {
	case path == "":
		s.handleListBooks(w, r)
	case path == "create":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.withLimit("books", s.withUser(s.handleCreateBook)).ServeHTTP(w, r)
	case strings.HasPrefix(path, "update/"):
		id := strings.TrimPrefix(path, "update/")
		if id == "" || strings.Contains(id, "/") {
			s.notFound(w)
			return
		}
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		s.withLimit("books", s.withUser(func(w http.ResponseWriter, r *http.Request, identity string) {
			s.handleUpdateBook(w, r, identity, id)
		})).ServeHTTP(w, r)
	case strings.Contains(path, "/"):
		s.notFound(w)
	default:
		s.handleBookByID(w, r, path)
	}
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(r.Context(), id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		s.withUser(func(w http.ResponseWriter, r *http.Request, identity string) {
			if err := s.app.DeleteBook(r.Context(), identity, id); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

// handleListBooks lists the catalog, optionally filtered by author identity
// via the "author" query parameter.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var (
		books []domain.Book
		err   error
	)
	if author := strings.TrimSpace(r.URL.Query().Get("author")); author != "" {
		books, err = s.app.ListBooksByAuthor(r.Context(), author)
	} else {
		books, err = s.app.ListBooks(r.Context())
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, identity string) {
	fields, files, ok := s.readMultipart(w, r)
	if !ok {
		return
	}
	book, err := s.app.CreateBook(r.Context(), identity, fields, files)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, identity, id string) {
	fields, files, ok := s.readMultipart(w, r)
	if !ok {
		return
	}
	book, err := s.app.UpdateBook(r.Context(), identity, id, fields, files)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// readMultipart parses the request form and stages every uploaded file. On a
// staging rejection (size, mime type) the already staged files are reclaimed
// and a 400 is written.
func (s *Server) readMultipart(w http.ResponseWriter, r *http.Request) (map[string]any, map[string][]upload.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	if err := r.ParseMultipartForm(s.maxRequestBytes); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid form data", err)
		return nil, nil, false
	}

	fields := make(map[string]any)
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	files := make(map[string][]upload.File)
	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			part, err := header.Open()
			if err != nil {
				s.temp.ReclaimAll(files)
				s.writeError(w, r, http.StatusBadRequest, "invalid form data", err)
				return nil, nil, false
			}
			staged, err := s.temp.Save(field, header.Filename, header.Header.Get("Content-Type"), part)
			part.Close()
			if err != nil {
				s.temp.ReclaimAll(files)
				if errors.Is(err, upload.ErrFileTooLarge) || errors.Is(err, upload.ErrUnsupportedType) {
					s.writeError(w, r, http.StatusBadRequest, err.Error(), nil)
				} else {
					s.writeError(w, r, http.StatusInternalServerError, genericErrorMessage, err)
				}
				return nil, nil, false
			}
			files[field] = append(files[field], staged)
		}
	}
	return fields, files, true
}
