// Package state хранит состояние запусков источников между вызовами:
// отпечаток последнего полученного payload, время и счетчики записей.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ruslano69/epibridge/pkg/processors"
)

// ErrPayloadUnchanged возвращается источником, когда payload совпадает
// с payload предыдущего успешного запуска. Это не сбой запуска.
var ErrPayloadUnchanged = errors.New("payload unchanged since last run")

// SourceState - состояние одного источника
type SourceState struct {
	Source          string    `json:"source"`
	Fingerprint     string    `json:"fingerprint,omitempty"` // xxh3 последнего успешно обработанного payload
	LastRunTime     time.Time `json:"last_run_time"`
	LastSuccessTime time.Time `json:"last_success_time,omitempty"`
	RecordsWritten  int64     `json:"records_written"`
	RecordsSkipped  int64     `json:"records_skipped"`
	RecordsFailed   int64     `json:"records_failed"`
	LastError       string    `json:"last_error,omitempty"`
}

// Manager управляет состоянием нескольких источников.
// Пустой путь означает состояние только в памяти.
type Manager struct {
	mu       sync.RWMutex
	states   map[string]*SourceState
	path     string
	autoSave bool
	now      func() time.Time
}

// NewManager создает менеджер и загружает файл состояния, если он существует
func NewManager(path string, autoSave bool) (*Manager, error) {
	m := &Manager{
		states:   make(map[string]*SourceState),
		path:     path,
		autoSave: autoSave,
		now:      time.Now,
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := m.Load(); err != nil {
				return nil, fmt.Errorf("failed to load state: %w", err)
			}
		}
	}
	return m, nil
}

// Get возвращает копию состояния источника (пустое, если запусков не было)
func (m *Manager) Get(source string) SourceState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.states[source]; ok {
		return *s
	}
	return SourceState{Source: source}
}

// Fingerprint вычисляет отпечаток payload
func Fingerprint(payload []byte) string {
	return processors.ComputeChecksum(payload)
}

// Unchanged сообщает, совпадает ли payload с последним успешно обработанным.
// Возвращает отпечаток, который нужно передать в RecordSuccess.
func (m *Manager) Unchanged(source string, payload []byte) (string, bool) {
	fp := Fingerprint(payload)

	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[source]
	return fp, ok && s.Fingerprint == fp
}

// RecordSuccess сохраняет итог успешного запуска
func (m *Manager) RecordSuccess(source, fingerprint string, written, skipped, failed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.states[source] = &SourceState{
		Source:          source,
		Fingerprint:     fingerprint,
		LastRunTime:     now,
		LastSuccessTime: now,
		RecordsWritten:  written,
		RecordsSkipped:  skipped,
		RecordsFailed:   failed,
	}

	if m.autoSave {
		return m.saveUnsafe()
	}
	return nil
}

// RecordError сохраняет ошибку запуска. Отпечаток предыдущего успешного
// запуска сохраняется, чтобы неудачный запуск не отменял проверку.
func (m *Manager) RecordError(source string, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[source]
	if !ok {
		s = &SourceState{Source: source}
		m.states[source] = s
	}
	s.LastRunTime = m.now()
	if runErr != nil {
		s.LastError = runErr.Error()
	}

	if m.autoSave {
		return m.saveUnsafe()
	}
	return nil
}

// Reset удаляет состояние источника (следующий запуск обработает payload полностью)
func (m *Manager) Reset(source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, source)
	if m.autoSave {
		return m.saveUnsafe()
	}
	return nil
}

// Sources возвращает отсортированный список источников с сохраненным состоянием
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.states))
	for name := range m.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path возвращает путь к файлу состояния
func (m *Manager) Path() string {
	return m.path
}

// Save сохраняет состояние в файл
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnsafe()
}

// saveUnsafe пишет файл через временный файл и rename, lock уже взят
func (m *Manager) saveUnsafe() error {
	if m.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(m.states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Load загружает состояние из файла
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	states := make(map[string]*SourceState)
	if err := json.Unmarshal(data, &states); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	m.states = states
	return nil
}
