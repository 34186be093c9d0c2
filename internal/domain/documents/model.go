package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const defaultContentType = "application/octet-stream"

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrNoFile          = errors.New("no file uploaded")
)

// PatientFile describes an uploaded document. The bytes live in the blob
// store under BlobID.
type PatientFile struct {
	ID           uuid.UUID `db:"id" json:"_id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient"`
	BlobID       string    `db:"blob_id" json:"filename"`
	OriginalName string    `db:"original_name" json:"originalName"`
	ContentType  string    `db:"content_type" json:"mimetype"`
	Size         int64     `db:"size" json:"size"`
	Hash         string    `db:"hash" json:"hash"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
