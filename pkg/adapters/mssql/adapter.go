package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // драйвер MS SQL Server

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// Проверка на этапе компиляции
var _ adapters.Adapter = (*Adapter)(nil)

// Adapter - хранилище Microsoft SQL Server
type Adapter struct {
	*base.SQLAdapter

	db     *sql.DB
	schema string

	// Версия сервера
	serverVersion    int    // Мажорная версия: 11=2012, 13=2016, 14=2017, 15=2019, 16=2022
	serverVersionStr string // Полная строка версии
}

// MinServerVersion - SQL Server 2012, минимальная версия с нужным
// поведением MERGE и типом DATE
const MinServerVersion = 11

func init() {
	// Регистрация в фабрике адаптеров
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Connect подключается к MS SQL Server, проверяет версию сервера и создает таблицы
// Реализует интерфейс adapters.Adapter
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	// драйвер sqlserver ожидает параметры @p1..@pN
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db

	if err := a.detectVersion(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to detect server version: %w", err)
	}

	a.schema = cfg.Schema
	if a.schema == "" {
		a.schema = "dbo" // схема по умолчанию
	}
	dialect := Dialect{Schema: a.schema}

	if a.schema != "dbo" {
		if _, err := db.ExecContext(ctx, createSchemaSQL(a.schema)); err != nil {
			db.Close()
			return fmt.Errorf("failed to create schema %s: %w", a.schema, err)
		}
	}

	a.SQLAdapter = base.NewSQLAdapter(base.NewStdDB(db), dialect, cfg.Logger)
	if err := a.EnsureSchema(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	cfg.Logger.Debug().
		Str("version", a.getServerVersionName()).
		Str("schema", a.schema).
		Msg("mssql adapter connected")
	return nil
}

// detectVersion читает SERVERPROPERTY('ProductVersion') и отклоняет
// серверы старше MinServerVersion
func (a *Adapter) detectVersion(ctx context.Context) error {
	var version string
	err := a.db.QueryRowContext(ctx, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS NVARCHAR(128))").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get server version: %w", err)
	}

	a.serverVersionStr = version
	a.serverVersion = parseServerVersion(version)
	if a.serverVersion != 0 && a.serverVersion < MinServerVersion {
		return fmt.Errorf("SQL Server %s is not supported (need 2012 or newer)", version)
	}
	return nil
}

// parseServerVersion извлекает мажорную версию из строки версии.
// Пример: "15.0.2000.5" -> 15
func parseServerVersion(version string) int {
	parts := strings.Split(version, ".")
	if len(parts) == 0 {
		return 0
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}

	return major
}

// getServerVersionName возвращает название версии сервера
func (a *Adapter) getServerVersionName() string {
	switch a.serverVersion {
	case 11:
		return "SQL Server 2012"
	case 12:
		return "SQL Server 2014"
	case 13:
		return "SQL Server 2016"
	case 14:
		return "SQL Server 2017"
	case 15:
		return "SQL Server 2019"
	case 16:
		return "SQL Server 2022"
	default:
		return fmt.Sprintf("SQL Server (version %d)", a.serverVersion)
	}
}

// Close закрывает подключение
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
	return AdapterType
}

// GetDatabaseVersion возвращает ProductVersion, полученный при подключении
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	if a.serverVersionStr == "" {
		return "", fmt.Errorf("adapter not connected")
	}
	return a.serverVersionStr, nil
}
