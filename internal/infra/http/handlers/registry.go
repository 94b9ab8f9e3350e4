package handlers

import (
	"sync"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
)

// BlueprintRegistry is a process-wide, in-memory store of registered
// blueprints keyed by ID. It satisfies runtime.BlueprintRegistry
// structurally so the Runtime can resolve a subflow's nested blueprint or a
// scheduler's resume target without importing this package.
type BlueprintRegistry struct {
	mu         sync.RWMutex
	blueprints map[string]*blueprint.Blueprint
}

// NewBlueprintRegistry constructs an empty registry.
func NewBlueprintRegistry() *BlueprintRegistry {
	return &BlueprintRegistry{blueprints: make(map[string]*blueprint.Blueprint)}
}

// Register stores bp under its own ID, replacing any existing blueprint
// with the same ID.
func (r *BlueprintRegistry) Register(bp *blueprint.Blueprint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blueprints[bp.ID()] = bp
}

// Get implements runtime.BlueprintRegistry.
func (r *BlueprintRegistry) Get(blueprintID string) (*blueprint.Blueprint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.blueprints[blueprintID]
	return bp, ok
}

// List returns every registered blueprint ID.
func (r *BlueprintRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.blueprints))
	for id := range r.blueprints {
		ids = append(ids, id)
	}
	return ids
}
