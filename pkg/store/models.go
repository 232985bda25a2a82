package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Asset references are stored as JSONB so
// the delete key can be re-derived without schema changes.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Username     string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID         string         `gorm:"primaryKey"`
	Title      string         `gorm:"not null"`
	Genre      string         `gorm:"not null"`
	Author     string         `gorm:"not null;index"`
	CoverImage datatypes.JSON `gorm:"type:jsonb"`
	File       datatypes.JSON `gorm:"type:jsonb"`
	Pages      int
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}
