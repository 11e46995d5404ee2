package ml

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
)

// Registry caches one immutable Model per model type. A load replaces the
// cached pointer; callers that already hold the previous pointer keep using
// it, so an in-flight prediction is never torn by a swap.
type Registry struct {
	dir    string
	mu     sync.RWMutex
	models map[string]*Model
}

func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:    dir,
		models: make(map[string]*Model),
	}
}

func (r *Registry) artifactPath(modelType string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_model.json", modelType))
}

// Get returns the cached model for modelType, loading it on first use.
// Loading can be slow, so the write lock is held across it: concurrent
// requests for a missing model wait for one load instead of racing.
func (r *Registry) Get(modelType string) (*Model, error) {
	r.mu.RLock()
	model, ok := r.models[modelType]
	r.mu.RUnlock()
	if ok {
		return model, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if model, ok := r.models[modelType]; ok {
		return model, nil
	}

	model, err := LoadModel(r.artifactPath(modelType))
	if err != nil {
		return nil, err
	}

	log.Printf("Loaded model %q from %s", modelType, r.artifactPath(modelType))
	r.models[modelType] = model
	return model, nil
}

// Put installs a model under its type, replacing any cached instance.
func (r *Registry) Put(model *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model.ModelType] = model
}
