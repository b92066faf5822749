package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, client_id, order_id, certificate_type, side,
	amount_eur, filled_quantity, weighted_avg_price,
	total_cost_gross, total_cost_net, platform_fee,
	success, message, submitted_at`

// Create appends one execution record to the audit log.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	const query = `
		INSERT INTO executions (
			id, client_id, order_id, certificate_type, side,
			amount_eur, filled_quantity, weighted_avg_price,
			total_cost_gross, total_cost_net, platform_fee,
			success, message, submitted_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.ClientID, rec.OrderID, string(rec.CertificateType), string(rec.Side),
		rec.AmountEUR, rec.FilledQuantity, rec.WeightedAvgPrice,
		rec.TotalCostGross, rec.TotalCostNet, rec.PlatformFee,
		rec.Success, rec.Message, rec.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns execution records newest-first with pagination and
// optional time filtering.
func (s *ExecutionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionRecord, error) {
	query := `SELECT ` + executionSelectCols + ` FROM executions`
	var args []any
	var conds []string
	argIdx := 1

	if opts.Since != nil {
		conds = append(conds, fmt.Sprintf("submitted_at >= $%d", argIdx))
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		conds = append(conds, fmt.Sprintf("submitted_at <= $%d", argIdx))
		args = append(args, *opts.Until)
		argIdx++
	}
	if len(conds) > 0 {
		query += " WHERE " + joinAnd(conds)
	}

	query += " ORDER BY submitted_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	records, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan executions: %w", err)
	}
	return records, nil
}

func scanExecutionRows(rows pgx.Rows) ([]domain.ExecutionRecord, error) {
	var records []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var ct, side string
		if err := rows.Scan(
			&rec.ID, &rec.ClientID, &rec.OrderID, &ct, &side,
			&rec.AmountEUR, &rec.FilledQuantity, &rec.WeightedAvgPrice,
			&rec.TotalCostGross, &rec.TotalCostNet, &rec.PlatformFee,
			&rec.Success, &rec.Message, &rec.SubmittedAt,
		); err != nil {
			return nil, err
		}
		rec.CertificateType = domain.CertificateType(ct)
		rec.Side = domain.OrderSide(side)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func joinAnd(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
