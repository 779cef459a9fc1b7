package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AdrienChampion/sat-micro-rust/internal/storage"
)

type RetrievalRepository struct {
	db *sql.DB
}

func NewRetrievalRepository(dbConn *sql.DB) *RetrievalRepository {
	return &RetrievalRepository{db: dbConn}
}

func (r *RetrievalRepository) TrackRetrieval(ctx context.Context, rec storage.RetrievalRecord) error {
	if rec.RetrievedAt.IsZero() {
		rec.RetrievedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO retrievals (run_id, uri, file_path, size, status, error, retrieved_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.URI, rec.FilePath, rec.Size, rec.Status, rec.Error, rec.RetrievedAt.UTC().Format(time.RFC3339),
	)

	return err
}

// GetRetrievals returns the most recent records first.
func (r *RetrievalRepository) GetRetrievals(ctx context.Context, limit int) ([]storage.RetrievalRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, uri, file_path, size, status, error, retrieved_at
		FROM retrievals
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetRetrievalsByStatus returns the most recent records with the given status.
func (r *RetrievalRepository) GetRetrievalsByStatus(ctx context.Context, status string, limit int) ([]storage.RetrievalRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, uri, file_path, size, status, error, retrieved_at
		FROM retrievals
		WHERE status = ?
		ORDER BY id DESC
		LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]storage.RetrievalRecord, error) {
	var records []storage.RetrievalRecord

	for rows.Next() {
		var (
			record      storage.RetrievalRecord
			filePath    sql.NullString
			errMsg      sql.NullString
			retrievedAt string
		)

		if err := rows.Scan(&record.RunID, &record.URI, &filePath, &record.Size, &record.Status, &errMsg, &retrievedAt); err != nil {
			return nil, err
		}

		record.FilePath = filePath.String
		record.Error = errMsg.String

		t, err := time.Parse(time.RFC3339, retrievedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse retrieved_at %q: %w", retrievedAt, err)
		}

		record.RetrievedAt = t

		records = append(records, record)
	}

	return records, rows.Err()
}
