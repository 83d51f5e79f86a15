// Package base содержит общую реализацию SQL хранилищ
//
// Этот пакет устраняет дублирование кода между адаптерами (SQLite, PostgreSQL, MySQL, MS SQL Server)
// путем вынесения схемы таблиц и всех операций хранилища в SQLAdapter.
//
// # Основные компоненты
//
// SQLAdapter - операции adapters.Storage и опциональные возможности:
//   - UpsertEpidemiologyData, UpsertMobilityData, UpsertGovernmentResponseData
//   - GetAdmDivision, PutAdmDivision - справочник administrative_division
//   - CallDBFunctionCompare - сверка staging и production
//   - CallDBFunctionSendData - перенос staging в production в одной транзакции
//   - TruncateStaging - очистка staging таблиц
//
// Dialect - синтаксис конкретной СУБД:
//   - экранирование идентификаторов и параметры запроса
//   - типы колонок
//   - CREATE TABLE, который не падает на существующей таблице
//   - UPSERT одной строки и UPSERT ... SELECT
//
// DB - минимальный интерфейс подключения. StdDB оборачивает *sql.DB,
// PostgreSQL адаптер реализует DB поверх pgxpool.
//
// # Схема
//
// Для каждого вида записей создаются production и staging_ таблицы с ключом
// (source, date, countrycode, adm_area_1, adm_area_2, adm_area_3).
// Отсутствующие уровни хранятся как '', чтобы составной PRIMARY KEY работал
// во всех СУБД. gid хранится JSON массивом в текстовой колонке.
//
// # Использование
//
//	type Adapter struct {
//	    *base.SQLAdapter
//	    db *sql.DB
//	}
//
//	func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
//	    db, err := sql.Open("sqlite", cfg.DSN)
//	    ...
//	    a.SQLAdapter = base.NewSQLAdapter(base.NewStdDB(db), Dialect{}, cfg.Logger)
//	    return a.EnsureSchema(ctx)
//	}
package base
