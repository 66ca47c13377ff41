package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]StageDefinition)
	registryMu sync.RWMutex
)

// Register adds a stage definition to the registry.
// Panics if a stage with the same key or order is already registered.
func Register(def StageDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("stage already registered: %s", def.Info.Key))
	}
	for _, other := range registry {
		if other.Info.Order == def.Info.Order {
			panic(fmt.Sprintf("stage %s: order %d already used by %s", def.Info.Key, def.Info.Order, other.Info.Key))
		}
	}
	if def.Build == nil || def.Upsert == nil {
		panic(fmt.Sprintf("stage %s: Build and Upsert are required", def.Info.Key))
	}

	registry[def.Info.Key] = def
}

// Get returns a stage definition by key.
// Returns false if not found.
func Get(key string) (StageDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered stages in pipeline order.
func All() []StageDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]StageDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sortStages(result)
	return result
}

func sortStages(defs []StageDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Info.Order < defs[j].Info.Order
	})
}

// splitPhases groups stages by phase, phases ordered by their first stage.
func splitPhases(defs []StageDefinition) [][]StageDefinition {
	sorted := append([]StageDefinition(nil), defs...)
	sortStages(sorted)

	var phases [][]StageDefinition
	index := make(map[Phase]int)
	for _, def := range sorted {
		i, ok := index[def.Info.Phase]
		if !ok {
			i = len(phases)
			index[def.Info.Phase] = i
			phases = append(phases, nil)
		}
		phases[i] = append(phases[i], def)
	}
	return phases
}
