package entity

import (
	"time"

	"github.com/google/uuid"
)

// Document represents an uploaded budget document for data transfer
// between layers. Immutable after upload except for Archived.
type Document struct {
	ID         uuid.UUID `json:"id"`
	Year       int       `json:"year"`
	Filename   string    `json:"filename"`
	StorageRef string    `json:"storage_ref"`
	Archived   bool      `json:"archived"`
	UploadedAt time.Time `json:"uploaded_at"`
}
