package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// AdapterConstructor возвращает новое, еще не подключенное хранилище
type AdapterConstructor func() Adapter

// Factory - реестр хранилищ по значению storage.type
type Factory struct {
	registry map[string]AdapterConstructor
	mu       sync.RWMutex
}

// NewFactory создает пустой реестр
func NewFactory() *Factory {
	return &Factory{
		registry: make(map[string]AdapterConstructor),
	}
}

// Register регистрирует конструктор для storage.type
// ("sqlite", "postgres", "xlsx", ...). Повторная регистрация заменяет прежнюю.
func (f *Factory) Register(storageType string, constructor AdapterConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[storageType] = constructor
}

// IsRegistered проверяет, зарегистрирован ли storage.type
func (f *Factory) IsRegistered(storageType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.registry[storageType]
	return ok
}

// GetRegisteredTypes возвращает отсортированный список storage.type
func (f *Factory) GetRegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.registry))
	for storageType := range f.registry {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}

// Open создает хранилище по cfg.Type, подключает его и проверяет Ping.
// При неудачном Ping хранилище закрывается.
func (f *Factory) Open(ctx context.Context, cfg Config) (Adapter, error) {
	f.mu.RLock()
	constructor, ok := f.registry[cfg.Type]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s (available types: %v)",
			cfg.Type, f.GetRegisteredTypes())
	}

	adapter := constructor()
	if err := adapter.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
	}
	if err := adapter.Ping(ctx); err != nil {
		adapter.Close(ctx)
		return nil, fmt.Errorf("%s is not reachable: %w", cfg.Type, err)
	}
	return adapter, nil
}

// Description - сведения о подключенном хранилище
type Description struct {
	Type         string       `json:"type"`
	Version      string       `json:"version,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// Describe собирает тип, версию (если хранилище реализует Versioner)
// и опциональные возможности хранилища
func Describe(ctx context.Context, a Adapter) (Description, error) {
	d := Description{
		Type:         a.GetDatabaseType(),
		Capabilities: CapabilitiesOf(a),
	}
	if v, ok := a.(Versioner); ok {
		version, err := v.GetDatabaseVersion(ctx)
		if err != nil {
			return d, fmt.Errorf("failed to get %s version: %w", d.Type, err)
		}
		d.Version = version
	}
	return d, nil
}

// CapabilitiesOf определяет опциональные возможности хранилища
func CapabilitiesOf(s Storage) Capabilities {
	_, compare := s.(Comparer)
	_, send := s.(DataSender)
	_, truncate := s.(StagingTruncater)
	_, flush := s.(Flusher)
	return Capabilities{
		Compare:         compare,
		SendData:        send,
		TruncateStaging: truncate,
		Flush:           flush,
	}
}

// ========== Global Factory ==========

var globalFactory = NewFactory()

// Register регистрирует хранилище в глобальной фабрике.
// Вызывается из init() пакетов хранилищ:
//
//	func init() {
//	    adapters.Register("sqlite", func() adapters.Adapter {
//	        return &Adapter{}
//	    })
//	}
func Register(storageType string, constructor AdapterConstructor) {
	globalFactory.Register(storageType, constructor)
}

// IsRegistered проверяет регистрацию в глобальной фабрике
func IsRegistered(storageType string) bool {
	return globalFactory.IsRegistered(storageType)
}

// GetRegisteredTypes возвращает типы из глобальной фабрики
func GetRegisteredTypes() []string {
	return globalFactory.GetRegisteredTypes()
}

// New открывает хранилище через глобальную фабрику:
//
//	adapter, err := adapters.New(ctx, adapters.Config{
//	    Type: "sqlite",
//	    DSN:  "file:epi.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Close(ctx)
func New(ctx context.Context, cfg Config) (Adapter, error) {
	return globalFactory.Open(ctx, cfg)
}
