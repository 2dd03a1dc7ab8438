package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhive/tutorhive/internal/audit/domain"
	sharedPersistence "github.com/tutorhive/tutorhive/internal/shared/infrastructure/persistence"
)

// PostgresEntryRepository persists audit entries in PostgreSQL.
type PostgresEntryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEntryRepository creates a new PostgresEntryRepository.
func NewPostgresEntryRepository(pool *pgxpool.Pool) *PostgresEntryRepository {
	return &PostgresEntryRepository{pool: pool}
}

// Append inserts an entry. The audit log has no update path.
func (r *PostgresEntryRepository) Append(ctx context.Context, entry domain.Entry) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	oldValues, err := marshalValues(entry.OldValues)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := marshalValues(entry.NewValues)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}

	var actor *uuid.UUID
	if entry.Actor != uuid.Nil {
		actor = &entry.Actor
	}

	query := `
		INSERT INTO audit_log (actor, action_type, entity_type, entity_id, old_values, new_values, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = exec.Exec(ctx, query,
		actor, entry.ActionType, entry.EntityType, entry.EntityID,
		oldValues, newValues, entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// FindByPeriod returns entries with occurred_at in [from, to), oldest first.
func (r *PostgresEntryRepository) FindByPeriod(ctx context.Context, from, to time.Time) ([]domain.Entry, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		SELECT id, actor, action_type, entity_type, entity_id, old_values, new_values, occurred_at
		FROM audit_log
		WHERE occurred_at >= $1 AND occurred_at < $2
		ORDER BY occurred_at ASC, id ASC`

	rows, err := exec.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var (
			entry     domain.Entry
			actor     *uuid.UUID
			oldValues []byte
			newValues []byte
		)
		if err := rows.Scan(
			&entry.ID, &actor, &entry.ActionType, &entry.EntityType,
			&entry.EntityID, &oldValues, &newValues, &entry.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if actor != nil {
			entry.Actor = *actor
		}
		if entry.OldValues, err = unmarshalValues(oldValues); err != nil {
			return nil, fmt.Errorf("decode old values: %w", err)
		}
		if entry.NewValues, err = unmarshalValues(newValues); err != nil {
			return nil, fmt.Errorf("decode new values: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

func marshalValues(values map[string]any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

func unmarshalValues(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}
