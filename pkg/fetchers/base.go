package fetchers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/admtranslator"
	"github.com/ruslano69/epibridge/pkg/core/record"
	"github.com/ruslano69/epibridge/pkg/metrics"
	"github.com/ruslano69/epibridge/pkg/retry"
	"github.com/ruslano69/epibridge/pkg/state"
)

// outcomeDeadLettered - исход записи для метрик, сохраненной в DLQ
const outcomeDeadLettered = "dead_lettered"

// Stats - счетчики одного запуска источника
type Stats struct {
	Entries       int64 `json:"entries"`        // записи верхнего уровня в payload
	Written       int64 `json:"written"`        // переданы хранилищу
	SkippedWindow int64 `json:"skipped_window"` // вне скользящего окна
	Failed        int64 `json:"failed"`         // ошибка записи
	DeadLettered  int64 `json:"dead_lettered"`  // из них сохранены в DLQ
	Untranslated  int64 `json:"untranslated"`   // регион записан под исходным названием
	InvalidValues int64 `json:"invalid_values"` // некорректные значения метрик
	Rejected      int64 `json:"rejected"`       // строки с некорректным адресом, не записаны
}

// Base - общие зависимости и поведение источников.
// Конкретный источник встраивает *Base и реализует Run.
type Base struct {
	source     string
	sentinels  Sentinels
	sink       Sink
	translator admtranslator.Translator
	deps       Deps
	log        zerolog.Logger

	stats       Stats
	fingerprint string
}

// NewBase проверяет зависимости и создает Base.
// Без Translator все переводы неудачны и регионы пишутся под исходными названиями.
func NewBase(source string, sentinels Sentinels, deps Deps) (*Base, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if deps.Policy == "" {
		deps.Policy = PolicyFail
	}

	translator := deps.Translator
	if translator == nil {
		translator = admtranslator.New()
	}

	return &Base{
		source:     source,
		sentinels:  sentinels,
		sink:       deps.Sink,
		translator: translator,
		deps:       deps,
		log:        deps.Logger.With().Str("source", source).Logger(),
	}, nil
}

// Source возвращает код источника
func (b *Base) Source() string {
	return b.source
}

// Log возвращает логгер источника
func (b *Base) Log() *zerolog.Logger {
	return &b.log
}

// Stats возвращает счетчики текущего запуска
func (b *Base) Stats() Stats {
	return b.stats
}

// Fingerprint возвращает отпечаток последнего полученного payload
func (b *Base) Fingerprint() string {
	return b.fingerprint
}

// URL возвращает адрес из зависимостей или адрес по умолчанию
func (b *Base) URL(fallback string) string {
	if b.deps.URL != "" {
		return b.deps.URL
	}
	return fallback
}

// Reset обнуляет счетчики перед новым запуском
func (b *Base) Reset() {
	b.stats = Stats{}
	b.fingerprint = ""
}

// Retrieve получает payload одним вызовом. Ошибка получения фатальна для запуска.
// ext используется как расширение файла в архиве.
// При SkipUnchanged и неизменном payload возвращает state.ErrPayloadUnchanged.
func (b *Base) Retrieve(ctx context.Context, url, ext string) ([]byte, error) {
	b.log.Debug().Str("url", url).Msg("fetching payload")

	payload, err := b.deps.Retriever.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %s data: %w", b.source, err)
	}

	if b.deps.Archive != nil {
		if _, err := b.deps.Archive.Archive(ctx, b.source, ext, payload); err != nil {
			b.log.Warn().Err(err).Msg("payload archive failed")
		}
	}

	if b.deps.State != nil {
		fp, unchanged := b.deps.State.Unchanged(b.source, payload)
		b.fingerprint = fp
		if unchanged && b.deps.SkipUnchanged {
			b.log.Info().Str("fingerprint", fp).Msg("payload unchanged, run skipped")
			return nil, state.ErrPayloadUnchanged
		}
	} else {
		b.fingerprint = state.Fingerprint(payload)
	}

	return payload, nil
}

// CountEntry увеличивает счетчик записей payload
func (b *Base) CountEntry() {
	b.stats.Entries++
}

// Count нормализует значение счетчика. Некорректное значение становится
// неизвестным и логируется, запуск продолжается.
func (b *Base) Count(entry map[string]any, key string) record.Count {
	c, err := CountOrUnknown(entry, key, b.sentinels)
	if err != nil {
		b.stats.InvalidValues++
		b.log.Warn().Err(err).Str("key", key).Msg("invalid metric value treated as unknown")
	}
	return c
}

// Measure нормализует дробное значение
func (b *Base) Measure(entry map[string]any, key string) record.Measure {
	m, err := MeasureOrUnknown(entry, key, b.sentinels)
	if err != nil {
		b.stats.InvalidValues++
		b.log.Warn().Err(err).Str("key", key).Msg("invalid metric value treated as unknown")
	}
	return m
}

// TranslateArea переводит название региона. При неудаче возвращает исходное
// название как adm_area_1 и gid [countryCode]; неудача считается в Stats.
func (b *Base) TranslateArea(ctx context.Context, countryCode, in1, in2, in3 string) admtranslator.Translation {
	tr := b.translator.Translate(ctx, countryCode, in1, in2, in3, true)
	if !tr.Success {
		b.stats.Untranslated++
		b.log.Debug().
			Str("adm_area_1", in1).
			Str("adm_area_2", in2).
			Str("adm_area_3", in3).
			Msg("area kept under original name")
	}
	return tr
}

// AcceptLocation проверяет адрес перед записью. Строка с некорректным
// адресом (например sub_region_2 без sub_region_1) пропускается с
// предупреждением и считается в Stats.Rejected, запуск продолжается.
func (b *Base) AcceptLocation(date record.Date, loc record.Location) bool {
	err := loc.Validate()
	if err == nil {
		return true
	}
	b.stats.Rejected++
	b.log.Warn().
		Err(err).
		Str("date", date.String()).
		Str("countrycode", loc.CountryCode).
		Str("adm_area_1", loc.AdmArea1).
		Str("adm_area_2", loc.AdmArea2).
		Str("adm_area_3", loc.AdmArea3).
		Msg("row with invalid location skipped")
	return false
}

// UpsertEpidemiology пишет запись через Sink с учетом политики ошибок
func (b *Base) UpsertEpidemiology(ctx context.Context, rec *record.Epidemiology) error {
	outcome, err := b.sink.UpsertEpidemiologyData(ctx, "", rec)
	return b.handleWrite(record.EntityEpidemiology, rec, outcome, err)
}

// UpsertMobility пишет запись mobility
func (b *Base) UpsertMobility(ctx context.Context, rec *record.Mobility) error {
	outcome, err := b.sink.UpsertMobilityData(ctx, "", rec)
	return b.handleWrite(record.EntityMobility, rec, outcome, err)
}

func (b *Base) handleWrite(entity record.Entity, rec record.Record, outcome adapters.Outcome, err error) error {
	if err == nil {
		switch outcome {
		case adapters.OutcomeSkippedWindow:
			b.stats.SkippedWindow++
		default:
			b.stats.Written++
		}
		metrics.ObserveRecord(b.source, string(entity), outcome.String())
		return nil
	}

	b.stats.Failed++
	key := rec.Key()
	if b.deps.Policy != PolicySkip {
		metrics.ObserveRecord(b.source, string(entity), adapters.OutcomeFailed.String())
		return fmt.Errorf("failed to write %s record %s: %w", entity, key, err)
	}

	b.log.Warn().Err(err).Str("entity", string(entity)).Str("key", key.String()).Msg("record write failed, skipped")
	if b.deps.DLQ == nil {
		metrics.ObserveRecord(b.source, string(entity), adapters.OutcomeFailed.String())
		return nil
	}

	dlqErr := b.deps.DLQ.Add(retry.DLQEntry{
		Source:      b.source,
		Entity:      string(entity),
		Table:       b.sink.CorrectTableName(entity.DefaultTable()),
		Attempts:    1,
		LastError:   err.Error(),
		FailureType: retry.FailureStorage,
		Data:        rec,
	})
	if dlqErr != nil {
		return errors.Join(fmt.Errorf("failed to write %s record %s: %w", entity, key, err), dlqErr)
	}
	b.stats.DeadLettered++
	metrics.ObserveRecord(b.source, string(entity), outcomeDeadLettered)
	return nil
}
