package store

import (
	"testing"
	"time"

	"bookvault/pkg/domain"
)

func TestMemoryStoreUsers(t *testing.T) {
	m := NewMemoryStore()
	user := domain.User{ID: "u1", Username: "reader", Email: "reader@example.com"}
	if err := m.SaveUser(user); err != nil {
		t.Fatalf("save user: %v", err)
	}
	has, err := m.HasUserEmail("reader@example.com")
	if err != nil || !has {
		t.Fatalf("HasUserEmail = %v, %v", has, err)
	}
	got, ok, err := m.GetUserByEmail("reader@example.com")
	if err != nil || !ok || got.ID != "u1" {
		t.Fatalf("GetUserByEmail = %+v, %v, %v", got, ok, err)
	}
	if _, ok, _ := m.GetUserByID("missing"); ok {
		t.Fatalf("unknown id should not resolve")
	}
}

func TestMemoryStoreBookLifecycle(t *testing.T) {
	m := NewMemoryStore()
	for _, id := range []string{"b1", "b2", "b3"} {
		if err := m.SaveBook(domain.Book{ID: id, Title: "t-" + id, Author: "u1"}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	books, err := m.ListBooks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 3 || books[0].ID != "b1" || books[2].ID != "b3" {
		t.Fatalf("unexpected list order: %+v", books)
	}

	mine, err := m.ListBooksByAuthor("u1")
	if err != nil || len(mine) != 3 {
		t.Fatalf("ListBooksByAuthor = %d books, %v", len(mine), err)
	}

	if err := m.DeleteBook("b2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := m.GetBook("b2"); ok {
		t.Fatalf("b2 still present after delete")
	}
	books, _ = m.ListBooks()
	if len(books) != 2 {
		t.Fatalf("expected 2 books after delete, got %d", len(books))
	}
}

func TestMemoryStoreUpdateKeepsAuthor(t *testing.T) {
	m := NewMemoryStore()
	_ = m.SaveBook(domain.Book{ID: "b1", Title: "old", Author: "u1", CreatedAt: time.Now()})

	updated := domain.Book{ID: "b1", Title: "new", Author: "someone-else"}
	if err := m.UpdateBook(updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok, _ := m.GetBook("b1")
	if !ok || got.Title != "new" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.Author != "u1" {
		t.Fatalf("author must be immutable, got %q", got.Author)
	}
}
