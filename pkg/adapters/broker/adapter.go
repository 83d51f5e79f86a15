// Package broker - хранилище, которое публикует канонические записи
// в RabbitMQ или Kafka (pkg/brokers).
//
// Записи буферизуются по ключу и отправляются по Flush, поэтому повторный
// upsert той же записи до Flush дает одно сообщение. Ключ сообщения -
// адрес записи, что сохраняет порядок по адресу в партиции Kafka.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/brokers"
	"github.com/ruslano69/epibridge/pkg/core/record"
)

// DefaultBatchSize - число сообщений в одном Publish
const DefaultBatchSize = 500

// Заголовки сообщений
const (
	HeaderEntity      = "entity"
	HeaderTable       = "table"
	HeaderSource      = "source"
	HeaderContentType = "content-type"
)

var (
	_ adapters.Adapter = (*Adapter)(nil)
	_ adapters.Flusher = (*Adapter)(nil)
)

func init() {
	adapters.Register("broker", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Envelope - тело сообщения
type Envelope struct {
	Entity record.Entity `json:"entity"`
	Table  string        `json:"table"`
	Record record.Record `json:"record"`
}

type pending struct {
	key record.Key
	msg brokers.Message
}

// Adapter публикует записи через brokers.Publisher
type Adapter struct {
	pub       brokers.Publisher
	batchSize int
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[string]pending
}

// NewWithPublisher создает адаптер поверх готового Publisher
// (Connect не создает новый)
func NewWithPublisher(pub brokers.Publisher) *Adapter {
	return &Adapter{pub: pub}
}

// Connect создает Publisher из cfg.Broker (если не передан) и подключается
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	if a.pub == nil {
		if cfg.Broker.IsZero() {
			return fmt.Errorf("broker storage requires broker configuration")
		}
		pub, err := brokers.New(cfg.Broker)
		if err != nil {
			return fmt.Errorf("failed to create publisher: %w", err)
		}
		a.pub = pub
	}

	if err := a.pub.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", a.pub.GetBrokerType(), err)
	}

	a.batchSize = DefaultBatchSize
	a.log = cfg.Logger.With().Str("storage", "broker").Str("broker", a.pub.GetBrokerType()).Logger()
	a.pending = make(map[string]pending)
	return nil
}

// Close отправляет несброшенные сообщения и закрывает соединение
func (a *Adapter) Close(ctx context.Context) error {
	if a.pub == nil {
		return nil
	}
	flushErr := a.Flush(ctx)
	if err := a.pub.Close(); err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}
	return flushErr
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a.pub == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.pub.Ping(ctx)
}

func (a *Adapter) GetDatabaseType() string {
	return "broker"
}

func (a *Adapter) enqueue(table string, rec record.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(Envelope{Entity: rec.Entity(), Table: table, Record: rec})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	key := rec.Key()
	id := table + "|" + key.String()
	msg := brokers.Message{
		Key:   []byte(key.String()),
		Value: body,
		Headers: map[string]string{
			HeaderEntity:      string(rec.Entity()),
			HeaderTable:       table,
			HeaderSource:      key.Source,
			HeaderContentType: brokers.ContentTypeJSON,
		},
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return fmt.Errorf("adapter not connected")
	}
	a.pending[id] = pending{key: key, msg: msg}
	return nil
}

func (a *Adapter) UpsertGovernmentResponseData(ctx context.Context, table string, rec *record.GovernmentResponse) error {
	return a.enqueue(table, rec)
}

func (a *Adapter) UpsertEpidemiologyData(ctx context.Context, table string, rec *record.Epidemiology) error {
	return a.enqueue(table, rec)
}

func (a *Adapter) UpsertMobilityData(ctx context.Context, table string, rec *record.Mobility) error {
	return a.enqueue(table, rec)
}

// GetAdmDivision - брокер не хранит справочник
func (a *Adapter) GetAdmDivision(ctx context.Context, countryCode, adm1, adm2, adm3 string) (*record.AdmDivision, error) {
	return nil, adapters.ErrNotFound
}

// Pending возвращает число сообщений, ожидающих Flush
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush публикует буфер пачками по batchSize.
// Отправленные пачки удаляются из буфера, при ошибке остаток сохраняется.
func (a *Adapter) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		return nil
	}

	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	// Страна перед делением, даты по возрастанию
	sort.Slice(ids, func(i, j int) bool {
		ki, kj := a.pending[ids[i]].key, a.pending[ids[j]].key
		if ki == kj {
			return ids[i] < ids[j]
		}
		return ki.Less(kj)
	})

	size := a.batchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	sent := 0
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]brokers.Message, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, a.pending[id].msg)
		}
		if err := a.pub.Publish(ctx, batch...); err != nil {
			return fmt.Errorf("failed to publish batch (%d of %d sent): %w", sent, len(ids), err)
		}
		for _, id := range ids[start:end] {
			delete(a.pending, id)
		}
		sent += len(batch)
	}

	a.log.Info().Int("messages", sent).Msg("records published")
	return nil
}
