package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

const driverSqlite = "sqlite"

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register("sqlite", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с SQLite.
// Операции хранилища реализует встроенный base.SQLAdapter.
type Adapter struct {
	*base.SQLAdapter

	db  *sql.DB
	log zerolog.Logger
}

// Connect открывает базу, применяет PRAGMA и создает таблицы
// Реализует интерфейс adapters.Adapter
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	db, err := sql.Open(driverSqlite, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Один писатель; для :memory: все запросы должны идти в одно соединение
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.log = cfg.Logger

	a.applyPragmaOptimizations(ctx)

	a.SQLAdapter = base.NewSQLAdapter(base.NewStdDB(db), Dialect{}, cfg.Logger)
	if err := a.EnsureSchema(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close закрывает соединение с БД
// Реализует интерфейс adapters.Adapter
func (a *Adapter) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ping проверяет доступность БД
// Реализует интерфейс adapters.Adapter
func (a *Adapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.db.PingContext(ctx)
}

// GetDatabaseType возвращает тип СУБД
// Реализует интерфейс adapters.Adapter
func (a *Adapter) GetDatabaseType() string {
	return "sqlite"
}

// GetDatabaseVersion возвращает версию SQLite
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	var version string
	err := a.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version)
	if err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return "SQLite " + version, nil
}

// applyPragmaOptimizations применяет PRAGMA для ежедневной пакетной загрузки
func (a *Adapter) applyPragmaOptimizations(ctx context.Context) {
	pragmas := []string{
		// WAL mode: Write-Ahead Logging, читатели не блокируют загрузку
		"PRAGMA journal_mode = WAL",

		// Synchronous NORMAL: безопасно при WAL mode
		"PRAGMA synchronous = NORMAL",

		// 64 MB кеша
		"PRAGMA cache_size = -64000",

		"PRAGMA temp_store = MEMORY",

		// Ждем блокировку вместо SQLITE_BUSY
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := a.db.ExecContext(ctx, pragma); err != nil {
			// Некоторые PRAGMA не применимы (например journal_mode для :memory:)
			a.log.Warn().Err(err).Str("pragma", pragma).Msg("pragma failed")
		}
	}
}
