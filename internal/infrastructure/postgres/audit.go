// Package postgres provides PostgreSQL infrastructure components.
// Persists a per-calculation audit trail so dispense decisions can be
// reconstructed after the fact.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrAuditNotFound indicates no audit record exists for the calculation
var ErrAuditNotFound = errors.New("audit record not found")

// AuditRecord captures one completed calculation: what came in, what
// went out, and every warning raised along the way.
type AuditRecord struct {
	ID            int64           `json:"id"`
	CalculationID string          `json:"calculation_id"`
	PatientID     string          `json:"patient_id,omitempty"`
	DrugName      string          `json:"drug_name,omitempty"`
	NDC           string          `json:"ndc,omitempty"`
	SIGText       string          `json:"sig_text"`
	DaysSupply    int             `json:"days_supply"`
	TotalQuantity float64         `json:"total_quantity"`
	Request       json.RawMessage `json:"request,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	WarningCount  int             `json:"warning_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditStore writes and reads calculation audit records
type AuditStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAuditStore creates an audit store backed by the given pool
func NewAuditStore(pool *pgxpool.Pool, logger *zap.Logger) *AuditStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuditStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("audit-store"),
	}
}

// Record persists one calculation. Audit writes are best-effort from
// the caller's point of view; an error here must not fail the
// calculation itself.
func (s *AuditStore) Record(ctx context.Context, rec *AuditRecord) error {
	ctx, span := s.tracer.Start(ctx, "audit_record",
		trace.WithAttributes(
			attribute.String("calculation_id", rec.CalculationID),
			attribute.String("ndc", rec.NDC),
		))
	defer span.End()

	query := `
		INSERT INTO calculation_audit
			(calculation_id, patient_id, drug_name, ndc, sig_text,
			 days_supply, total_quantity, request, result, warning_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := s.pool.QueryRow(ctx, query,
		rec.CalculationID,
		rec.PatientID,
		rec.DrugName,
		rec.NDC,
		rec.SIGText,
		rec.DaysSupply,
		rec.TotalQuantity,
		rec.Request,
		rec.Result,
		rec.WarningCount,
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	s.logger.Debug("audit record written",
		zap.Int64("id", rec.ID),
		zap.String("calculation_id", rec.CalculationID))

	return nil
}

// GetByCalculationID fetches the audit record for a single calculation
func (s *AuditStore) GetByCalculationID(ctx context.Context, calculationID string) (*AuditRecord, error) {
	ctx, span := s.tracer.Start(ctx, "audit_get",
		trace.WithAttributes(attribute.String("calculation_id", calculationID)))
	defer span.End()

	query := `
		SELECT id, calculation_id, patient_id, drug_name, ndc, sig_text,
		       days_supply, total_quantity, request, result, warning_count, created_at
		FROM calculation_audit
		WHERE calculation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	rec := &AuditRecord{}
	err := s.pool.QueryRow(ctx, query, calculationID).Scan(
		&rec.ID, &rec.CalculationID, &rec.PatientID, &rec.DrugName,
		&rec.NDC, &rec.SIGText, &rec.DaysSupply, &rec.TotalQuantity,
		&rec.Request, &rec.Result, &rec.WarningCount, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuditNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch audit record: %w", err)
	}

	return rec, nil
}

// Recent returns the most recent audit records, newest first
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]*AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, span := s.tracer.Start(ctx, "audit_recent",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	query := `
		SELECT id, calculation_id, patient_id, drug_name, ndc, sig_text,
		       days_supply, total_quantity, request, result, warning_count, created_at
		FROM calculation_audit
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []*AuditRecord
	for rows.Next() {
		rec := &AuditRecord{}
		err := rows.Scan(
			&rec.ID, &rec.CalculationID, &rec.PatientID, &rec.DrugName,
			&rec.NDC, &rec.SIGText, &rec.DaysSupply, &rec.TotalQuantity,
			&rec.Request, &rec.Result, &rec.WarningCount, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Cleanup removes audit records older than the retention window
func (s *AuditStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM calculation_audit
		WHERE created_at < NOW() - $1::interval
	`

	result, err := s.pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}

	return result.RowsAffected(), nil
}
