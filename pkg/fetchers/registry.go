package fetchers

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor создает источник по общим зависимостям
type Constructor func(deps Deps) (Fetcher, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
	limits     = make(map[string]int64)
)

// Register регистрирует источник под его кодом (например "JPN_C1JACD").
// Источники вызывают Register в init() и подключаются пустым импортом.
func Register(source string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[source] = constructor
}

// RegisterPayloadLimit задает размер payload, который источник ожидает получить.
// Вызывается в init() источников с большими файлами.
func RegisterPayloadLimit(source string, maxBytes int64) {
	registryMu.Lock()
	defer registryMu.Unlock()
	limits[source] = maxBytes
}

// PayloadLimit возвращает размер, заданный RegisterPayloadLimit, или 0
func PayloadLimit(source string) int64 {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return limits[source]
}

// IsRegistered проверяет, зарегистрирован ли источник
func IsRegistered(source string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[source]
	return ok
}

// Sources возвращает отсортированный список зарегистрированных источников
func Sources() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New создает источник по коду
func New(source string, deps Deps) (Fetcher, error) {
	registryMu.RLock()
	constructor, ok := registry[source]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown source: %s (registered: %v)", source, Sources())
	}
	return constructor(deps)
}
