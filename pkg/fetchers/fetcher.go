// Package fetchers содержит общий каркас источников данных: реестр,
// Base с общими зависимостями и нормализацию пропущенных значений.
//
// Источник получает payload одним сетевым вызовом, превращает каждую
// запись в канонические записи и передает их в Sink (adapters.Wrapper).
// Запись уровня страны всегда пишется раньше записей ее регионов.
package fetchers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/admtranslator"
	"github.com/ruslano69/epibridge/pkg/archive"
	"github.com/ruslano69/epibridge/pkg/core/record"
	"github.com/ruslano69/epibridge/pkg/httpclient"
	"github.com/ruslano69/epibridge/pkg/retry"
	"github.com/ruslano69/epibridge/pkg/state"
)

// ErrMissingDate прерывает запуск: запись источника без даты нельзя адресовать
var ErrMissingDate = errors.New("entry has no date")

// Fetcher - источник данных
type Fetcher interface {
	Source() string
	Run(ctx context.Context) error
}

// Reporter - источник, который отчитывается о запуске (Base реализует его)
type Reporter interface {
	Stats() Stats
	Fingerprint() string
}

// Sink - поверхность adapters.Wrapper, в которую пишут источники
type Sink interface {
	UpsertEpidemiologyData(ctx context.Context, table string, rec *record.Epidemiology) (adapters.Outcome, error)
	UpsertMobilityData(ctx context.Context, table string, rec *record.Mobility) (adapters.Outcome, error)

	// CorrectTableName возвращает таблицу, в которую фактически идет запись
	CorrectTableName(name string) string
}

var _ Sink = (*adapters.Wrapper)(nil)

// ErrorPolicy определяет реакцию на ошибку записи в хранилище
type ErrorPolicy string

const (
	// PolicyFail прерывает запуск на первой ошибке записи
	PolicyFail ErrorPolicy = "fail"
	// PolicySkip кладет запись в DLQ и продолжает
	PolicySkip ErrorPolicy = "skip"
)

// Validate проверяет значение политики
func (p ErrorPolicy) Validate() error {
	switch p {
	case "", PolicyFail, PolicySkip:
		return nil
	}
	return fmt.Errorf("unknown storage error policy %q (expected fail or skip)", string(p))
}

// Deps - общие зависимости источников
type Deps struct {
	Sink       Sink
	Translator admtranslator.Translator
	Retriever  httpclient.Retriever
	Logger     zerolog.Logger

	// Policy - реакция на ошибку записи, по умолчанию PolicyFail
	Policy ErrorPolicy
	// DLQ принимает записи, пропущенные по PolicySkip (опционально)
	DLQ *retry.DLQ

	// State и SkipUnchanged позволяют пропустить payload, совпадающий с предыдущим
	State         *state.Manager
	SkipUnchanged bool

	// Archive сохраняет сжатую копию payload (опционально)
	Archive *archive.Archiver

	// URL заменяет адрес источника по умолчанию
	URL string
}

// Validate проверяет обязательные зависимости
func (d *Deps) Validate() error {
	if d.Sink == nil {
		return errors.New("fetcher sink is required")
	}
	if d.Retriever == nil {
		return errors.New("fetcher retriever is required")
	}
	if d.SkipUnchanged && d.State == nil {
		return errors.New("skip_unchanged requires a state manager")
	}
	return d.Policy.Validate()
}
