package http

import (
	"fmt"
	"sync"

	"rulelens/ml"
)

// ModelEntry is one published model plus its registry version.
type ModelEntry struct {
	Model   *ml.RuleListModel
	Version int
}

// Registry holds the live models. Training builds a complete model first and
// publishes it in one swap, so readers always see either the old list or the
// new one, never a half-built one.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelEntry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]ModelEntry)}
}

// Get looks a model up by name.
func (r *Registry) Get(name string) (ModelEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.models[name]
	if !ok {
		return ModelEntry{}, fmt.Errorf("model %q not loaded", name)
	}
	return entry, nil
}

// Publish atomically replaces the model stored under name.
func (r *Registry) Publish(name string, model *ml.RuleListModel, version int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = ModelEntry{Model: model, Version: version}
}

// Names lists the loaded model names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}
