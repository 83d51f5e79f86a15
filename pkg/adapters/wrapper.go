package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/core/record"
)

// Wrapper стоит между источниками данных и хранилищем.
// Применяет скользящее окно по дате, staging_ префикс имен таблиц и
// скрывает отсутствие опциональных возможностей бэкенда.
//
// Wrapper рассчитан на одного писателя и не использует блокировок.
type Wrapper struct {
	storage Storage
	cfg     WrapperConfig
	now     func() time.Time
	log     zerolog.Logger

	comparer  Comparer
	sender    DataSender
	truncater StagingTruncater
	flusher   Flusher
}

// WrapperOption настраивает Wrapper
type WrapperOption func(*Wrapper)

// WithClock подменяет источник текущего времени (для тестов)
func WithClock(now func() time.Time) WrapperOption {
	return func(w *Wrapper) {
		w.now = now
	}
}

// WithLogger задает логгер
func WithLogger(log zerolog.Logger) WrapperOption {
	return func(w *Wrapper) {
		w.log = log
	}
}

// NewWrapper создает Wrapper поверх хранилища. nil заменяется на Noop.
// Опциональные возможности определяются один раз здесь.
func NewWrapper(storage Storage, cfg WrapperConfig, opts ...WrapperOption) *Wrapper {
	if storage == nil {
		storage = NewNoop()
	}

	w := &Wrapper{
		storage: storage,
		cfg:     cfg,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.comparer, _ = storage.(Comparer)
	w.sender, _ = storage.(DataSender)
	w.truncater, _ = storage.(StagingTruncater)
	w.flusher, _ = storage.(Flusher)

	return w
}

// Config возвращает политику Wrapper
func (w *Wrapper) Config() WrapperConfig {
	return w.cfg
}

// Storage возвращает обернутое хранилище
func (w *Wrapper) Storage() Storage {
	return w.storage
}

// Capabilities сообщает, какие опциональные операции поддерживает хранилище
func (w *Wrapper) Capabilities() Capabilities {
	return CapabilitiesOf(w.storage)
}

// DateInWindow возвращает true, если окно не задано или с даты прошло
// не больше SlidingWindowDays календарных дней. Будущие даты всегда в окне.
func (w *Wrapper) DateInWindow(d record.Date) bool {
	if w.cfg.SlidingWindowDays <= 0 {
		return true
	}
	elapsed := record.DaysBetween(d, record.DateOf(w.now()))
	return elapsed <= w.cfg.SlidingWindowDays
}

// DateStringInWindow как DateInWindow для строки YYYY-MM-DD.
// Без окна строка не разбирается и результат всегда true.
func (w *Wrapper) DateStringInWindow(s string) (bool, error) {
	if w.cfg.SlidingWindowDays <= 0 {
		return true, nil
	}
	d, err := record.ParseDate(s)
	if err != nil {
		return false, fmt.Errorf("failed to parse date: %w", err)
	}
	return w.DateInWindow(d), nil
}

// CorrectTableName добавляет staging_ префикс в режиме проверки входных данных
func (w *Wrapper) CorrectTableName(name string) string {
	if w.cfg.Staging {
		return StagingPrefix + name
	}
	return name
}

// UpsertGovernmentResponseData записывает запись government_response.
// Пустое имя таблицы означает таблицу по умолчанию.
func (w *Wrapper) UpsertGovernmentResponseData(ctx context.Context, table string, rec *record.GovernmentResponse) (Outcome, error) {
	if rec == nil {
		return OutcomeFailed, fmt.Errorf("%w: nil government response record", ErrInvalidRecord)
	}
	return w.upsert(record.EntityGovernmentResponse, table, rec.Source, rec.Date, func(name string) error {
		return w.storage.UpsertGovernmentResponseData(ctx, name, rec)
	})
}

// UpsertEpidemiologyData записывает запись epidemiology
func (w *Wrapper) UpsertEpidemiologyData(ctx context.Context, table string, rec *record.Epidemiology) (Outcome, error) {
	if rec == nil {
		return OutcomeFailed, fmt.Errorf("%w: nil epidemiology record", ErrInvalidRecord)
	}
	return w.upsert(record.EntityEpidemiology, table, rec.Source, rec.Date, func(name string) error {
		return w.storage.UpsertEpidemiologyData(ctx, name, rec)
	})
}

// UpsertMobilityData записывает запись mobility
func (w *Wrapper) UpsertMobilityData(ctx context.Context, table string, rec *record.Mobility) (Outcome, error) {
	if rec == nil {
		return OutcomeFailed, fmt.Errorf("%w: nil mobility record", ErrInvalidRecord)
	}
	return w.upsert(record.EntityMobility, table, rec.Source, rec.Date, func(name string) error {
		return w.storage.UpsertMobilityData(ctx, name, rec)
	})
}

func (w *Wrapper) upsert(entity record.Entity, table, source string, date record.Date, write func(name string) error) (Outcome, error) {
	if table == "" {
		table = entity.DefaultTable()
	}

	if !w.DateInWindow(date) {
		w.log.Debug().
			Str("source", source).
			Str("table", table).
			Str("date", date.String()).
			Int("window_days", w.cfg.SlidingWindowDays).
			Msg("record outside sliding window, skipped")
		return OutcomeSkippedWindow, nil
	}

	name := w.CorrectTableName(table)
	if err := write(name); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to upsert %s into %s: %w", entity, name, err)
	}
	return OutcomeWritten, nil
}

// CallDBFunctionCompare сверяет staging и production данные источника.
// Без поддержки бэкендом возвращает false.
func (w *Wrapper) CallDBFunctionCompare(ctx context.Context, source string) (bool, error) {
	if w.comparer == nil {
		return false, nil
	}
	ok, err := w.comparer.CallDBFunctionCompare(ctx, source)
	if err != nil {
		return false, fmt.Errorf("failed to compare staging data for %s: %w", source, err)
	}
	return ok, nil
}

// CallDBFunctionSendData переносит staging данные источника в production.
// Без поддержки бэкендом ничего не делает.
func (w *Wrapper) CallDBFunctionSendData(ctx context.Context, source string) error {
	if w.sender == nil {
		return nil
	}
	if err := w.sender.CallDBFunctionSendData(ctx, source); err != nil {
		return fmt.Errorf("failed to send staging data for %s: %w", source, err)
	}
	return nil
}

// TruncateStaging очищает staging таблицы, если бэкенд это поддерживает
func (w *Wrapper) TruncateStaging(ctx context.Context) error {
	if w.truncater == nil {
		return nil
	}
	if err := w.truncater.TruncateStaging(ctx); err != nil {
		return fmt.Errorf("failed to truncate staging tables: %w", err)
	}
	return nil
}

// Flush сбрасывает буферы бэкенда, если они есть
func (w *Wrapper) Flush(ctx context.Context) error {
	if w.flusher == nil {
		return nil
	}
	if err := w.flusher.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush storage: %w", err)
	}
	return nil
}

// GetAdmDivision передает запрос хранилищу без окна и без staging префикса
func (w *Wrapper) GetAdmDivision(ctx context.Context, countryCode, adm1, adm2, adm3 string) (*record.AdmDivision, error) {
	return w.storage.GetAdmDivision(ctx, countryCode, adm1, adm2, adm3)
}
