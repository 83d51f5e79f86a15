/*
Package adapters предоставляет единый интерфейс хранилища канонических
эпидемиологических записей и Wrapper, через который пишут все источники.

# Архитектура

	┌─────────────────────────────────────────┐
	│    Источники (pkg/fetchers)             │
	│  - JPN_C1JACD, GOOGLE_MOBILITY, ...     │
	└─────────────────┬───────────────────────┘
	                  │ record.Epidemiology / Mobility / GovernmentResponse
	┌─────────────────▼───────────────────────┐
	│  Wrapper                                │  ← pkg/adapters/wrapper.go
	│  - скользящее окно по дате              │
	│  - staging_ префикс таблиц              │
	│  - опциональные возможности бэкенда     │
	└─────────────────┬───────────────────────┘
	                  │ Storage
	        ┌─────────┼──────────┬──────────┐
	        │         │          │          │
	┌───────▼────┐ ┌──▼──────┐ ┌─▼──────┐ ┌─▼──────┐
	│ SQL        │ │ memory  │ │ xlsx   │ │ broker │
	│ (base)     │ │         │ │        │ │        │
	└────────────┘ └─────────┘ └────────┘ └────────┘

# Storage и Adapter

Storage - обязательный контракт: три upsert операции и GetAdmDivision.
Adapter добавляет жизненный цикл (Connect, Close, Ping) и создается
через Factory:

	adapter, err := adapters.New(ctx, adapters.Config{
	    Type: "sqlite",
	    DSN:  "file:epi.db",
	})

Каждый бэкенд регистрирует себя в init() и подключается пустым импортом:

	import _ "github.com/ruslano69/epibridge/pkg/adapters/sqlite"

# Опциональные возможности

	Comparer          CallDBFunctionCompare(ctx, source)
	DataSender        CallDBFunctionSendData(ctx, source)
	StagingTruncater  TruncateStaging(ctx)
	Flusher           Flush(ctx)

Wrapper определяет их один раз в NewWrapper через type assertion.
Отсутствующая возможность не является ошибкой: compare возвращает false,
остальные вызовы ничего не делают.

# Wrapper

	w := adapters.NewWrapper(adapter, adapters.WrapperConfig{
	    SlidingWindowDays: 7,
	    Staging:           true,
	})
	outcome, err := w.UpsertEpidemiologyData(ctx, "", rec)

Запись с датой старше окна не передается хранилищу: возвращается
OutcomeSkippedWindow и nil. Ошибки хранилища возвращаются обернутыми.
*/
package adapters
