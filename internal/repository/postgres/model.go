package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/attribution-engine/internal/domain"
)

// ModelRepo persists attribution models so the registry survives restarts.
// The registry remains the runtime source of truth; writes here are
// write-through from registry mutations.
type ModelRepo struct{ db *sql.DB }

// NewModelRepo creates a Postgres-backed model repository.
func NewModelRepo(db *sql.DB) *ModelRepo { return &ModelRepo{db: db} }

// SaveModel upserts one model row. Config and performance are stored as
// JSONB since they vary by model type.
func (r *ModelRepo) SaveModel(ctx context.Context, m *domain.AttributionModel) error {
	configJSON, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("marshal model config: %w", err)
	}
	perfJSON, err := json.Marshal(m.Performance)
	if err != nil {
		return fmt.Errorf("marshal model performance: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attribution_models (id, name, type, config, performance, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			config = EXCLUDED.config,
			performance = EXCLUDED.performance,
			is_default = EXCLUDED.is_default,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`, m.ID, m.Name, string(m.Type), configJSON, perfJSON, m.IsDefault, m.IsActive, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save model %s: %w", m.ID, err)
	}
	return nil
}

// LoadModels returns every persisted model.
func (r *ModelRepo) LoadModels(ctx context.Context) ([]domain.AttributionModel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, config, performance, is_default, is_active, created_at, updated_at
		FROM attribution_models
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	defer rows.Close()

	var models []domain.AttributionModel
	for rows.Next() {
		var m domain.AttributionModel
		var typ string
		var configJSON, perfJSON []byte
		if err := rows.Scan(&m.ID, &m.Name, &typ, &configJSON, &perfJSON,
			&m.IsDefault, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		m.Type = domain.ModelType(typ)
		if err := json.Unmarshal(configJSON, &m.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config for model %s: %w", m.ID, err)
		}
		if err := json.Unmarshal(perfJSON, &m.Performance); err != nil {
			return nil, fmt.Errorf("unmarshal performance for model %s: %w", m.ID, err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}
