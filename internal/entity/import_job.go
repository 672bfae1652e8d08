package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/constants"
)

// ImportJob tracks one ingestion run for a document. At most one
// non-terminal (PENDING/RUNNING) job may exist per document at a time.
type ImportJob struct {
	ID           uuid.UUID           `json:"id"`
	DocumentID   uuid.UUID           `json:"document_id"`
	Status       constants.JobStatus `json:"status"`
	Progress     int                 `json:"progress"` // 0-100, monotonically non-decreasing
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
