package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// PromptRepo loads the active system prompt and user template. Callers
// fall back to embedded defaults when the store is empty.
type PromptRepo struct{ Pool PgxPool }

// NewPromptRepo constructs a PromptRepo with the given pool.
func NewPromptRepo(p PgxPool) *PromptRepo { return &PromptRepo{Pool: p} }

// GetActive loads the single active prompt of the given kind.
func (r *PromptRepo) GetActive(ctx domain.Context, kind domain.PromptKind) (domain.Prompt, error) {
	tracer := otel.Tracer("repo.prompts")
	ctx, span := tracer.Start(ctx, "prompts.GetActive")
	defer span.End()
	q := `SELECT id, type, content, is_active, updated_at FROM prompts WHERE type=$1 AND is_active ORDER BY updated_at DESC LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, kind)
	var p domain.Prompt
	if err := row.Scan(&p.ID, &p.Kind, &p.Content, &p.IsActive, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prompt{}, fmt.Errorf("op=prompt.get_active: %w", domain.ErrNotFound)
		}
		return domain.Prompt{}, fmt.Errorf("op=prompt.get_active: %w", err)
	}
	return p, nil
}

// Upsert stores a prompt. Activating a prompt deactivates any other
// prompt of the same kind in the same transaction.
func (r *PromptRepo) Upsert(ctx domain.Context, p domain.Prompt) error {
	tracer := otel.Tracer("repo.prompts")
	ctx, span := tracer.Start(ctx, "prompts.Upsert")
	defer span.End()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=prompt.upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.IsActive {
		if _, err := tx.Exec(ctx, `UPDATE prompts SET is_active=FALSE WHERE type=$1 AND id<>$2`, p.Kind, p.ID); err != nil {
			return fmt.Errorf("op=prompt.upsert: deactivate: %w", err)
		}
	}
	q := `INSERT INTO prompts (id, type, content, is_active, updated_at)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (id)
	DO UPDATE SET content=EXCLUDED.content, is_active=EXCLUDED.is_active, updated_at=EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, q, p.ID, p.Kind, p.Content, p.IsActive, p.UpdatedAt); err != nil {
		return fmt.Errorf("op=prompt.upsert: %w", domainWriteError(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=prompt.upsert: %w", err)
	}
	return nil
}
