package store

import "bookvault/pkg/domain"

// Store defines persistence operations for users and book records.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	ListBooksByAuthor(author string) ([]domain.Book, error)
	UpdateBook(domain.Book) error
	DeleteBook(id string) error
}
