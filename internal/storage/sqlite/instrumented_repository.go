package sqlite

import (
	"context"
	"database/sql"

	"github.com/AdrienChampion/sat-micro-rust/internal/storage"
	"github.com/AdrienChampion/sat-micro-rust/internal/telemetry"
)

// InstrumentedRetrievalRepository wraps RetrievalRepository with telemetry.
type InstrumentedRetrievalRepository struct {
	repo      *RetrievalRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedRetrievalRepository creates a new instrumented retrieval repository.
func NewInstrumentedRetrievalRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedRetrievalRepository {
	return &InstrumentedRetrievalRepository{
		repo:      NewRetrievalRepository(dbConn),
		telemetry: tel,
	}
}

// TrackRetrieval records a retrieval outcome with telemetry.
func (r *InstrumentedRetrievalRepository) TrackRetrieval(ctx context.Context, rec storage.RetrievalRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_retrieval", func(ctx context.Context) error {
		return r.repo.TrackRetrieval(ctx, rec)
	})
}

// GetRetrievals retrieves recent records with telemetry.
func (r *InstrumentedRetrievalRepository) GetRetrievals(ctx context.Context, limit int) ([]storage.RetrievalRecord, error) {
	var result []storage.RetrievalRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_retrievals", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetRetrievals(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetRetrievalsByStatus retrieves recent records with a status, with telemetry.
func (r *InstrumentedRetrievalRepository) GetRetrievalsByStatus(ctx context.Context, status string, limit int) ([]storage.RetrievalRecord, error) {
	var result []storage.RetrievalRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_retrievals_by_status", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetRetrievalsByStatus(ctx, status, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

var _ storage.RetrievalRepository = (*InstrumentedRetrievalRepository)(nil)
