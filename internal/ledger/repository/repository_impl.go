package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/renderway/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, customer_id, delta, kind, external_id, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (customer_id, kind, external_id) DO NOTHING`,
		entry.ID,
		entry.CustomerID,
		entry.Delta,
		string(entry.Kind),
		entry.ExternalID,
		entry.Reason,
		entry.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SumBalance(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE customer_id = ?`,
		customerID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repo) FindByDedupe(ctx context.Context, db *gorm.DB, customerID snowflake.ID, kind domain.Kind, externalID string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, delta, kind, external_id, reason, created_at
		 FROM ledger_entries
		 WHERE customer_id = ? AND kind = ? AND external_id = ?`,
		customerID,
		string(kind),
		externalID,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, customerID snowflake.ID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
