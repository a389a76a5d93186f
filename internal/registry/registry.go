// Package registry holds attribution model definitions and enforces the
// single-default invariant. It is the only stateful, multi-writer surface
// in the engine: calculators read model snapshots concurrently while
// administrative writes (register, set-default) go through a single mutex.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/attribution-engine/internal/domain"
)

var (
	// ErrNotFound is returned when a model ID is not registered.
	ErrNotFound = errors.New("model not found")
	// ErrDuplicateName is returned when registering a model whose name is taken.
	ErrDuplicateName = errors.New("model name already registered")
)

// Repository persists registry state across restarts. The registry itself is
// the source of truth at runtime; persistence is write-through.
type Repository interface {
	SaveModel(ctx context.Context, m *domain.AttributionModel) error
	LoadModels(ctx context.Context) ([]domain.AttributionModel, error)
}

// Registry is a single-writer/many-reader model store. Reads return
// immutable snapshots: a computation uses the configuration as it was at
// read time, never one mutated mid-computation.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*domain.AttributionModel
	byName map[string]string // name -> id

	repo Repository // optional
}

// New creates an empty registry. If repo is non-nil, previously persisted
// models are loaded; load failures are logged and the registry starts empty.
func New(repo Repository) *Registry {
	r := &Registry{
		models: make(map[string]*domain.AttributionModel),
		byName: make(map[string]string),
		repo:   repo,
	}
	if repo != nil {
		models, err := repo.LoadModels(context.Background())
		if err != nil {
			log.Printf("Registry: failed to load persisted models: %v", err)
			return r
		}
		for i := range models {
			m := models[i]
			r.models[m.ID] = &m
			r.byName[m.Name] = m.ID
		}
	}
	return r
}

// Register validates and stores a new model, returning its ID. The first
// model registered becomes the default automatically so the single-default
// invariant holds from the first write onward.
func (r *Registry) Register(ctx context.Context, m domain.AttributionModel) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[m.Name]; taken {
		return "", fmt.Errorf("register %q: %w", m.Name, ErrDuplicateName)
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.IsActive = true
	m.IsDefault = len(r.models) == 0

	r.models[m.ID] = &m
	r.byName[m.Name] = m.ID

	if r.repo != nil {
		if err := r.repo.SaveModel(ctx, &m); err != nil {
			log.Printf("Registry: persist model %s: %v", m.ID, err)
		}
	}
	return m.ID, nil
}

// SetDefault atomically flips the default flag to the given model,
// deactivating the previous default in the same critical section.
func (r *Registry) SetDefault(ctx context.Context, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := r.models[modelID]
	if !ok {
		return fmt.Errorf("set default %s: %w", modelID, ErrNotFound)
	}

	for _, m := range r.models {
		if m.IsDefault && m.ID != modelID {
			prev := *m
			prev.IsDefault = false
			prev.UpdatedAt = time.Now().UTC()
			r.models[prev.ID] = &prev
			if r.repo != nil {
				if err := r.repo.SaveModel(ctx, &prev); err != nil {
					log.Printf("Registry: persist model %s: %v", prev.ID, err)
				}
			}
		}
	}

	updated := *next
	updated.IsDefault = true
	updated.IsActive = true
	updated.UpdatedAt = time.Now().UTC()
	r.models[modelID] = &updated
	if r.repo != nil {
		if err := r.repo.SaveModel(ctx, &updated); err != nil {
			log.Printf("Registry: persist model %s: %v", modelID, err)
		}
	}
	return nil
}

// Get returns a snapshot of the model with the given ID.
func (r *Registry) Get(modelID string) (*domain.AttributionModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[modelID]
	if !ok {
		return nil, fmt.Errorf("get model %s: %w", modelID, ErrNotFound)
	}
	return snapshot(m), nil
}

// Default returns a snapshot of the current default model.
func (r *Registry) Default() (*domain.AttributionModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.models {
		if m.IsDefault {
			return snapshot(m), nil
		}
	}
	return nil, fmt.Errorf("default model: %w", ErrNotFound)
}

// ListActive returns snapshots of all active models.
func (r *Registry) ListActive() []domain.AttributionModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AttributionModel, 0, len(r.models))
	for _, m := range r.models {
		if m.IsActive {
			out = append(out, *snapshot(m))
		}
	}
	return out
}

// List returns snapshots of every registered model, active or not.
func (r *Registry) List() []domain.AttributionModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AttributionModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, *snapshot(m))
	}
	return out
}

// Resolve returns the requested model, falling back to the default when the
// ID is empty or unknown. Unknown IDs are logged, never silently dropped:
// the conversion value must still be distributed under some model.
func (r *Registry) Resolve(modelID string) (*domain.AttributionModel, error) {
	if modelID == "" {
		return r.Default()
	}
	m, err := r.Get(modelID)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, ErrNotFound) {
		log.Printf("Registry: unknown model %s, falling back to default", modelID)
		return r.Default()
	}
	return nil, err
}

// snapshot deep-copies a model so callers can never observe later edits.
func snapshot(m *domain.AttributionModel) *domain.AttributionModel {
	cp := *m
	if m.Config.PositionWeights != nil {
		pw := *m.Config.PositionWeights
		cp.Config.PositionWeights = &pw
	}
	return &cp
}
