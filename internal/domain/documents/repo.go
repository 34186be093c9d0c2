package documents

import (
	"context"

	"github.com/google/uuid"
)

type FileRepository interface {
	PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error)
	Create(ctx context.Context, f *PatientFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientFile, error)
	// ListByPatient returns the newest files first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientFile, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
