package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bookvault/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &BookModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveBook inserts a new book record.
func (s *GormStore) SaveBook(b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// GetBook retrieves a book by ID.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	book, err := bookFromModel(model)
	if err != nil {
		return domain.Book{}, false, err
	}
	return book, true, nil
}

// ListBooks returns all books ordered by creation time.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	return s.listBooks()
}

// ListBooksByAuthor returns books filtered by author identity.
func (s *GormStore) ListBooksByAuthor(author string) ([]domain.Book, error) {
	return s.listBooks("author = ?", author)
}

func (s *GormStore) listBooks(conds ...any) ([]domain.Book, error) {
	var models []BookModel
	query := s.db.Order("created_at asc")
	if len(conds) > 0 {
		query = query.Where(conds[0], conds[1:]...)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		book, err := bookFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, book)
	}
	return res, nil
}

// UpdateBook replaces the mutable fields of an existing record. The author
// column is immutable after creation and is not part of the update set.
func (s *GormStore) UpdateBook(b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	return s.db.Model(&BookModel{}).Where("id = ?", b.ID).Updates(map[string]any{
		"title":       model.Title,
		"genre":       model.Genre,
		"cover_image": model.CoverImage,
		"file":        model.File,
		"pages":       model.Pages,
		"updated_at":  model.UpdatedAt,
	}).Error
}

// DeleteBook removes a book record.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Delete(&BookModel{}, "id = ?", id).Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) (BookModel, error) {
	cover, err := assetToJSON(b.CoverImage)
	if err != nil {
		return BookModel{}, fmt.Errorf("encode cover reference: %w", err)
	}
	file, err := assetToJSON(b.File)
	if err != nil {
		return BookModel{}, fmt.Errorf("encode file reference: %w", err)
	}
	return BookModel{
		ID:         b.ID,
		Title:      b.Title,
		Genre:      b.Genre,
		Author:     b.Author,
		CoverImage: cover,
		File:       file,
		Pages:      b.Pages,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}, nil
}

func bookFromModel(m BookModel) (domain.Book, error) {
	cover, err := assetFromJSON(m.CoverImage)
	if err != nil {
		return domain.Book{}, fmt.Errorf("decode cover reference: %w", err)
	}
	file, err := assetFromJSON(m.File)
	if err != nil {
		return domain.Book{}, fmt.Errorf("decode file reference: %w", err)
	}
	return domain.Book{
		ID:         m.ID,
		Title:      m.Title,
		Genre:      m.Genre,
		Author:     m.Author,
		CoverImage: cover,
		File:       file,
		Pages:      m.Pages,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

func assetToJSON(ref domain.AssetRef) (datatypes.JSON, error) {
	raw, err := json.Marshal(ref)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func assetFromJSON(raw datatypes.JSON) (domain.AssetRef, error) {
	if len(raw) == 0 {
		return domain.AssetRef{}, nil
	}
	var ref domain.AssetRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return domain.AssetRef{}, err
	}
	return ref, nil
}
