package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrInvalidKey = errors.New("invalid idempotency key")
	ErrInFlight   = errors.New("request with this idempotency key is in flight")
)

// Admission is the outcome of the gate check. Winner means the caller owns
// the key and must call Complete once it has a response. Otherwise Response
// carries the stored outcome of the first request.
type Admission struct {
	Winner   bool
	Response *StoredResponse
}

type StoredResponse struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

type Gate interface {
	Admit(ctx context.Context, key string) (*Admission, error)
	Complete(ctx context.Context, key string, statusCode int, body []byte) error
	// Release drops an incomplete claim after a processing failure so a
	// retry of the same key can win the gate again.
	Release(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type Repository interface {
	// Claim inserts a pending record and reports whether this caller won the
	// key. A concurrent claim with the same key loses the insert race.
	Claim(ctx context.Context, db *gorm.DB, record *Record) (bool, error)
	Find(ctx context.Context, db *gorm.DB, key string) (*Record, error)
	Complete(ctx context.Context, db *gorm.DB, key string, statusCode int, body []byte, completedAt time.Time) error
	DeleteIncomplete(ctx context.Context, db *gorm.DB, key string) error
	DeleteExpiredBefore(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
