package documents

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/blobstore"
)

type Service struct {
	files  FileRepository
	blobs  blobstore.BlobStore
	logger zerolog.Logger
}

func NewService(files FileRepository, blobs blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{files: files, blobs: blobs, logger: logger}
}

// Upload stores the content and records it against the patient. The blob
// is removed again when the record cannot be written.
func (s *Service) Upload(ctx context.Context, patientID uuid.UUID, fileName, contentType string, content io.Reader) (*PatientFile, error) {
	ok, err := s.files.PatientExists(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPatientNotFound
	}

	stored, err := s.blobs.Put(ctx, fileName, content)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = defaultContentType
	}
	f := &PatientFile{
		PatientID:    patientID,
		BlobID:       stored.ID,
		OriginalName: fileName,
		ContentType:  contentType,
		Size:         stored.Size,
		Hash:         stored.Hash,
	}
	if err := s.files.Create(ctx, f); err != nil {
		if delErr := s.blobs.Delete(ctx, stored.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("blob_id", stored.ID).Msg("removing orphaned blob")
		}
		return nil, err
	}

	s.logger.Info().Str("file_id", f.ID.String()).Str("patient_id", patientID.String()).
		Int64("size", f.Size).Msg("patient file uploaded")
	return f, nil
}

func (s *Service) List(ctx context.Context, patientID uuid.UUID) ([]*PatientFile, error) {
	return s.files.ListByPatient(ctx, patientID)
}

// Open returns the record and a reader over its content. The caller closes
// the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*PatientFile, io.ReadCloser, error) {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, f.BlobID)
	if err != nil {
		return nil, nil, fmt.Errorf("open blob %s: %w", f.BlobID, err)
	}
	return f, rc, nil
}

// Delete removes the record, then the blob. A blob that cannot be removed
// is logged and left behind.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, f.BlobID); err != nil {
		s.logger.Warn().Err(err).Str("blob_id", f.BlobID).Msg("removing blob")
	}
	return nil
}
