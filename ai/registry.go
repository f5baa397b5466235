package ai

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrModelNotFound     = errors.New("model not found")
	ErrInvalidIdentifier = errors.New("invalid model identifier, expected 'provider/model'")
)

// ModelFactoryFunc builds a Model for a registered provider entry.
type ModelFactoryFunc func(modelName, apiKey string, baseURL ...string) *Model

// ModelInfo describes a registered model and how to construct it.
type ModelInfo struct {
	Identifier  string // "provider/model"
	BaseURL     string
	DisplayName string
	NewModel    ModelFactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ModelInfo)
)

// RegisterModel adds a model to the registry under "provider/model".
// Re-registering an identifier replaces the previous entry; provider
// drivers register their catalogs from init.
func RegisterModel(provider, modelName string, info ModelInfo) error {
	if provider == "" || modelName == "" {
		return fmt.Errorf("%w: provider=%q model=%q", ErrInvalidIdentifier, provider, modelName)
	}
	info.Identifier = provider + "/" + modelName

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[info.Identifier] = info
	return nil
}

// New constructs a Model from a registered "provider/model" identifier.
func New(identifier, apiKey string) (*Model, error) {
	provider, modelName, ok := strings.Cut(identifier, "/")
	if !ok || provider == "" || modelName == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}

	registryMu.RLock()
	info, exists := registry[identifier]
	registryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, identifier)
	}
	return info.NewModel(modelName, apiKey, info.BaseURL), nil
}

// Models lists registered models sorted by identifier.
func Models() []ModelInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ModelInfo, 0, len(registry))
	for _, info := range registry {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identifier < result[j].Identifier })
	return result
}
