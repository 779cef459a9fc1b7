package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"
)

const (
	StatusRetrieved = "retrieved"
	StatusFailed    = "failed"
)

// RetrievalRecord is one journal entry: the outcome of fetching one URI
// during one run.
type RetrievalRecord struct {
	RunID       string
	URI         string
	FilePath    string
	Size        int64
	Status      string
	Error       string
	RetrievedAt time.Time
}

type RetrievalWriteRepository interface {
	TrackRetrieval(ctx context.Context, rec RetrievalRecord) error
}

type RetrievalReadRepository interface {
	GetRetrievals(ctx context.Context, limit int) ([]RetrievalRecord, error)
	GetRetrievalsByStatus(ctx context.Context, status string, limit int) ([]RetrievalRecord, error)
}

type RetrievalRepository interface {
	RetrievalWriteRepository
	RetrievalReadRepository
}

// GenerateRunID returns a unique string for this process (hostname+pid+random).
func GenerateRunID() string {
	host, _ := os.Hostname()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + hex.EncodeToString(rnd)
}
