package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (
			id, reference, pledge_id, amount, currency, status, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.Reference,
		txn.PledgeID,
		txn.Amount,
		txn.Currency,
		txn.Status,
		txn.Version,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Transaction, error) {
	return r.findByReference(ctx, db, reference, false)
}

func (r *repo) FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string) (*domain.Transaction, error) {
	return r.findByReference(ctx, db, reference, true)
}

func (r *repo) findByReference(ctx context.Context, db *gorm.DB, reference string, forUpdate bool) (*domain.Transaction, error) {
	query := `SELECT id, reference, pledge_id, amount, currency, status, version,
			created_at, updated_at
		 FROM payment_transactions
		 WHERE reference = ?
		 LIMIT 1`
	if forUpdate && db.Dialector.Name() == "postgres" {
		query += `
		 FOR UPDATE`
	}

	var item domain.Transaction
	err := db.WithContext(ctx).Raw(query, reference).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, fromVersion int, status domain.Status, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		status,
		updatedAt,
		id,
		fromVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertTransition(ctx context.Context, db *gorm.DB, transition *domain.StateTransition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_state_transitions (
			id, transaction_id, from_status, to_status, event_id,
			event_timestamp, received_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		transition.ID,
		transition.TransactionID,
		transition.FromStatus,
		transition.ToStatus,
		transition.EventID,
		transition.EventTimestamp,
		transition.ReceivedAt,
		transition.Version,
	).Error
}

func (r *repo) ListTransitions(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]domain.StateTransition, error) {
	var items []domain.StateTransition
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_id, from_status, to_status, event_id,
			event_timestamp, received_at, version
		 FROM payment_state_transitions
		 WHERE transaction_id = ?
		 ORDER BY version ASC`,
		transactionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
