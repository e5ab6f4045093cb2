// Package postgres provides PostgreSQL database adapters.
//
// It implements repository interfaces for data persistence.
// The package provides type-safe database operations with
// connection pooling and transaction support.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// SignalRepo persists and loads signals using a minimal pgx pool.
// Signals are created by the upstream collector; the core only reads
// them and appends the decision envelope.
type SignalRepo struct{ Pool PgxPool }

// NewSignalRepo constructs a SignalRepo with the given pool.
func NewSignalRepo(p PgxPool) *SignalRepo { return &SignalRepo{Pool: p} }

// Get loads a signal by thread id.
func (r *SignalRepo) Get(ctx domain.Context, threadID string) (domain.Signal, error) {
	tracer := otel.Tracer("repo.signals")
	ctx, span := tracer.Start(ctx, "signals.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "signals"),
	)
	q := `SELECT thread_id, thread_name, messages, parsed, created_at, ai_processed, ai_processed_at, ai_result FROM signals WHERE thread_id=$1`
	row := r.Pool.QueryRow(ctx, q, threadID)
	var (
		s         domain.Signal
		messages  []byte
		parsed    []byte
		aiResult  []byte
	)
	if err := row.Scan(&s.ThreadID, &s.ThreadName, &messages, &parsed, &s.CreatedAt, &s.AIProcessed, &s.AIProcessedAt, &aiResult); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Signal{}, fmt.Errorf("op=signal.get: %w", domain.ErrNotFound)
		}
		return domain.Signal{}, fmt.Errorf("op=signal.get: %w", err)
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &s.Messages); err != nil {
			return domain.Signal{}, fmt.Errorf("op=signal.get: messages: %w", err)
		}
	}
	if len(parsed) > 0 {
		if err := json.Unmarshal(parsed, &s.Parsed); err != nil {
			return domain.Signal{}, fmt.Errorf("op=signal.get: parsed: %w", err)
		}
	}
	if len(aiResult) > 0 {
		var env domain.DecisionEnvelope
		if err := json.Unmarshal(aiResult, &env); err == nil {
			s.AIResult = &env
		}
	}
	return s, nil
}

// SaveResult upserts the decision envelope by thread id. Replaying the
// same envelope leaves the record unchanged, so retries are safe.
func (r *SignalRepo) SaveResult(ctx domain.Context, threadID string, env domain.DecisionEnvelope) error {
	tracer := otel.Tracer("repo.signals")
	ctx, span := tracer.Start(ctx, "signals.SaveResult")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "signals"),
	)
	blob, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("op=signal.save_result: %w", err)
	}
	// ai_processed_at mirrors the envelope timestamp so replaying the
	// same envelope is a true no-op.
	processedAt := env.Timestamp
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	q := `INSERT INTO signals (thread_id, thread_name, created_at, ai_processed, ai_processed_at, ai_result)
	VALUES ($1, '', $2, TRUE, $2, $3)
	ON CONFLICT (thread_id)
	DO UPDATE SET ai_processed=TRUE, ai_processed_at=EXCLUDED.ai_processed_at, ai_result=EXCLUDED.ai_result`
	if _, err := r.Pool.Exec(ctx, q, threadID, processedAt, blob); err != nil {
		return fmt.Errorf("op=signal.save_result: %w", domainWriteError(err))
	}
	return nil
}

func domainWriteError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreWrite, err)
}
