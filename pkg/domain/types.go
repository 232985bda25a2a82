package domain

import "time"

// AssetCategory selects the remote storage convention for an asset.
// Raw assets keep their extension in the object identifier, images do not.
type AssetCategory string

const (
	CategoryImage AssetCategory = "image"
	CategoryRaw   AssetCategory = "raw"
	CategoryAuto  AssetCategory = "auto"
)

// AssetRef is a stable public reference to a remotely stored asset.
// The URL together with the category is enough to derive the delete key.
type AssetRef struct {
	URL      string        `json:"url"`
	Category AssetCategory `json:"category"`
}

// IsZero reports whether the reference points at nothing.
func (r AssetRef) IsZero() bool {
	return r.URL == ""
}

type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Genre      string    `json:"genre"`
	Author     string    `json:"author"`
	CoverImage AssetRef  `json:"coverImage"`
	File       AssetRef  `json:"file"`
	Pages      int       `json:"pages,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
