package documents

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type fileRepoPG struct{ pool *pgxpool.Pool }

func NewFileRepoPG(pool *pgxpool.Pool) FileRepository {
	return &fileRepoPG{pool: pool}
}

func (r *fileRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const fileCols = `id, patient_id, blob_id, original_name, content_type, size, hash, created_at`

func scanFile(row pgx.Row) (*PatientFile, error) {
	var f PatientFile
	err := row.Scan(&f.ID, &f.PatientID, &f.BlobID, &f.OriginalName, &f.ContentType, &f.Size, &f.Hash, &f.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepoPG) PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'patient')`, patientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient: %w", err)
	}
	return exists, nil
}

func (r *fileRepoPG) Create(ctx context.Context, f *PatientFile) error {
	f.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_file (id, patient_id, blob_id, original_name, content_type, size, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		f.ID, f.PatientID, f.BlobID, f.OriginalName, f.ContentType, f.Size, f.Hash,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient file: %w", err)
	}
	return nil
}

func (r *fileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientFile, error) {
	return scanFile(r.conn(ctx).QueryRow(ctx, `SELECT `+fileCols+` FROM patient_file WHERE id = $1`, id))
}

func (r *fileRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientFile, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+fileCols+` FROM patient_file WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient files: %w", err)
	}
	defer rows.Close()

	var out []*PatientFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *fileRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_file WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}
