// Package repository stores lead outcomes in PostgreSQL.
package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/ports"
)

// OutcomesRepository reads and writes the lead_outcomes table.
type OutcomesRepository struct {
	pool *pgxpool.Pool
}

var _ ports.OutcomeStore = (*OutcomesRepository)(nil)

func NewOutcomesRepository(pool *pgxpool.Pool) *OutcomesRepository {
	return &OutcomesRepository{pool: pool}
}

// Load returns every outcome ordered by observation time, then id.
func (r *OutcomesRepository) Load(ctx context.Context) ([]domain.Outcome, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT lead_ref, name, company, industry, size, last_contact,
		       budget, previous_purchases, interactions, converted, observed_at
		FROM lead_outcomes
		ORDER BY observed_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Outcome, 0)
	for rows.Next() {
		var (
			o         domain.Outcome
			leadRef   *string
			purchases *int32
			inter     *int32
		)
		if err := rows.Scan(
			&leadRef, &o.Lead.Name, &o.Lead.Company, &o.Lead.Industry, &o.Lead.Size, &o.Lead.LastContact,
			&o.Lead.Budget, &purchases, &inter, &o.Converted, &o.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if leadRef != nil {
			o.Lead.ID = *leadRef
		}
		o.Lead.PreviousPurchases = intPtr(purchases)
		o.Lead.Interactions = intPtr(inter)
		o.ObservedAt = o.ObservedAt.UTC()
		items = append(items, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}

// Record inserts outcomes in one batch.
func (r *OutcomesRepository) Record(ctx context.Context, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, o := range outcomes {
		observed := o.ObservedAt
		if observed.IsZero() {
			observed = time.Now()
		}
		purchases, err := int32Ptr(o.Lead.PreviousPurchases)
		if err != nil {
			return fmt.Errorf("outcome %d previous purchases: %w", i, err)
		}
		interactions, err := int32Ptr(o.Lead.Interactions)
		if err != nil {
			return fmt.Errorf("outcome %d interactions: %w", i, err)
		}
		batch.Queue(`
			INSERT INTO lead_outcomes (
				id, lead_ref, name, company, industry, size, last_contact,
				budget, previous_purchases, interactions, converted, observed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			uuid.New(), nullableString(o.Lead.ID), o.Lead.Name, o.Lead.Company, o.Lead.Industry, o.Lead.Size,
			o.Lead.LastContact, o.Lead.Budget, purchases, interactions,
			o.Converted, observed.UTC(),
		)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outcome insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert outcomes: %w", err)
	}
	return tx.Commit(ctx)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

// int32Ptr narrows a count to the INTEGER column, refusing values that would wrap.
func int32Ptr(v *int) (*int32, error) {
	if v == nil {
		return nil, nil
	}
	if *v < math.MinInt32 || *v > math.MaxInt32 {
		return nil, fmt.Errorf("value %d does not fit a 32-bit column", *v)
	}
	i := int32(*v)
	return &i, nil
}
