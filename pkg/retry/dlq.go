package retry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FailureStorage - тип сбоя для записей, не принятых хранилищем
const FailureStorage = "storage_write_failed"

// DLQEntry - запись, которую не удалось обработать
type DLQEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source,omitempty"`
	Entity      string    `json:"entity,omitempty"`
	Table       string    `json:"table,omitempty"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	FailureType string    `json:"failure_type"`
	Data        any       `json:"data,omitempty"`
}

// DLQ - Dead Letter Queue в JSON файле
type DLQ struct {
	mu      sync.RWMutex
	config  DLQConfig
	entries []DLQEntry
	counter int
}

// NewDLQ создает DLQ и загружает существующий файл
func NewDLQ(config DLQConfig) (*DLQ, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("dlq file path is required")
	}

	dlq := &DLQ{
		config:  config,
		entries: make([]DLQEntry, 0),
	}

	if _, err := os.Stat(config.FilePath); err == nil {
		if err := dlq.Load(); err != nil {
			return nil, fmt.Errorf("failed to load DLQ: %w", err)
		}
	}

	return dlq, nil
}

// Add добавляет запись и сохраняет файл
func (d *DLQ) Add(entry DLQEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counter++
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.ID = fmt.Sprintf("dlq-%d-%d", entry.Timestamp.Unix(), d.counter)

	d.entries = append(d.entries, entry)

	if d.config.MaxSize > 0 && len(d.entries) > d.config.MaxSize {
		// Удаляем самые старые записи
		d.entries = d.entries[len(d.entries)-d.config.MaxSize:]
	}

	return d.saveUnsafe()
}

// Get возвращает копию всех записей
func (d *DLQ) Get() []DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]DLQEntry, len(d.entries))
	copy(result, d.entries)
	return result
}

// CleanupOld удаляет записи старше RetentionPeriod
func (d *DLQ) CleanupOld() int {
	if d.config.RetentionPeriod == 0 {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoffTime := time.Now().Add(-d.config.RetentionPeriod)
	newEntries := make([]DLQEntry, 0, len(d.entries))
	removed := 0

	for _, entry := range d.entries {
		if entry.Timestamp.After(cutoffTime) {
			newEntries = append(newEntries, entry)
		} else {
			removed++
		}
	}

	if removed > 0 {
		d.entries = newEntries
		d.saveUnsafe()
	}
	return removed
}

// saveUnsafe сохраняет без блокировки (lock уже взят)
func (d *DLQ) saveUnsafe() error {
	data, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ: %w", err)
	}

	if err := os.WriteFile(d.config.FilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write DLQ file: %w", err)
	}
	return nil
}

// Load загружает DLQ из файла
func (d *DLQ) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read DLQ file: %w", err)
	}

	var entries []DLQEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal DLQ: %w", err)
	}

	d.entries = entries
	return nil
}

// GetStats возвращает статистику DLQ
func (d *DLQ) GetStats() DLQStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := DLQStats{
		TotalEntries: len(d.entries),
		FailureTypes: make(map[string]int),
		Sources:      make(map[string]int),
	}

	if len(d.entries) == 0 {
		return stats
	}

	stats.OldestEntry = d.entries[0].Timestamp
	stats.NewestEntry = d.entries[len(d.entries)-1].Timestamp

	for _, entry := range d.entries {
		stats.FailureTypes[entry.FailureType]++
		if entry.Source != "" {
			stats.Sources[entry.Source]++
		}
	}
	return stats
}

// DLQStats содержит статистику DLQ
type DLQStats struct {
	TotalEntries int
	OldestEntry  time.Time
	NewestEntry  time.Time
	FailureTypes map[string]int
	Sources      map[string]int
}
