package base

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/core/record"
)

var errNotConnected = errors.New("adapter not connected")

// SQLAdapter реализует adapters.Storage и все SQL возможности
// (compare, send_data, truncate_staging) один раз для всех СУБД.
// Различия синтаксиса вынесены в Dialect.
type SQLAdapter struct {
	db      DB
	dialect Dialect
	log     zerolog.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewSQLAdapter создает SQLAdapter поверх подключения
func NewSQLAdapter(db DB, dialect Dialect, log zerolog.Logger) *SQLAdapter {
	return &SQLAdapter{
		db:      db,
		dialect: dialect,
		log:     log.With().Str("dialect", dialect.Name()).Logger(),
		ensured: make(map[string]bool),
	}
}

// Dialect возвращает диалект адаптера
func (a *SQLAdapter) Dialect() Dialect {
	return a.dialect
}

func (a *SQLAdapter) ready() error {
	if a == nil || a.db == nil {
		return errNotConnected
	}
	return nil
}

// EnsureSchema создает production и staging таблицы всех видов записей
// и справочник administrative_division
func (a *SQLAdapter) EnsureSchema(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	for _, entity := range record.Entities {
		name := entity.DefaultTable()
		if err := a.ensureTable(ctx, name, Tables[entity]); err != nil {
			return err
		}
		if err := a.ensureTable(ctx, adapters.StagingPrefix+name, Tables[entity]); err != nil {
			return err
		}
	}
	return a.ensureTable(ctx, record.TableAdministrativeDivision, DivisionTable)
}

func (a *SQLAdapter) ensureTable(ctx context.Context, name string, def TableDef) error {
	if err := ValidateTableName(name); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ensured[name] {
		return nil
	}

	query := a.dialect.CreateTableSQL(name, def.Columns, def.Key)
	if _, err := a.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	a.ensured[name] = true
	a.log.Debug().Str("table", name).Msg("table ensured")
	return nil
}

func (a *SQLAdapter) upsertRow(ctx context.Context, table string, def TableDef, args []any) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.ensureTable(ctx, table, def); err != nil {
		return err
	}

	query := a.dialect.UpsertSQL(table, def.ColumnNames(), def.Key)
	if _, err := a.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

// UpsertEpidemiologyData вставляет или заменяет строку epidemiology
func (a *SQLAdapter) UpsertEpidemiologyData(ctx context.Context, table string, rec *record.Epidemiology) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return a.upsertRow(ctx, table, Tables[record.EntityEpidemiology], EpidemiologyArgs(rec))
}

// UpsertGovernmentResponseData вставляет или заменяет строку government_response
func (a *SQLAdapter) UpsertGovernmentResponseData(ctx context.Context, table string, rec *record.GovernmentResponse) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return a.upsertRow(ctx, table, Tables[record.EntityGovernmentResponse], GovernmentResponseArgs(rec))
}

// UpsertMobilityData вставляет или заменяет строку mobility
func (a *SQLAdapter) UpsertMobilityData(ctx context.Context, table string, rec *record.Mobility) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return a.upsertRow(ctx, table, Tables[record.EntityMobility], MobilityArgs(rec))
}

// PutAdmDivision вставляет или заменяет строку справочника
func (a *SQLAdapter) PutAdmDivision(ctx context.Context, div *record.AdmDivision) error {
	if div == nil || div.CountryCode == "" {
		return fmt.Errorf("%w: division without countrycode", record.ErrInvalidRecord)
	}
	return a.upsertRow(ctx, record.TableAdministrativeDivision, DivisionTable, DivisionArgs(div))
}

// GetAdmDivision ищет строку справочника по коду страны и названиям уровней
func (a *SQLAdapter) GetAdmDivision(ctx context.Context, countryCode, adm1, adm2, adm3 string) (*record.AdmDivision, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if err := a.ensureTable(ctx, record.TableAdministrativeDivision, DivisionTable); err != nil {
		return nil, err
	}

	d := a.dialect
	cols := DivisionTable.ColumnNames()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s AND %s = %s AND %s = %s",
		QuoteList(d, cols),
		d.Table(record.TableAdministrativeDivision),
		d.QuoteIdent("countrycode"), d.Placeholder(1),
		d.QuoteIdent("adm_area_1"), d.Placeholder(2),
		d.QuoteIdent("adm_area_2"), d.Placeholder(3),
		d.QuoteIdent("adm_area_3"), d.Placeholder(4),
	)

	var (
		div record.AdmDivision
		gid string
	)
	err := a.db.QueryRow(ctx, query, countryCode, adm1, adm2, adm3).Scan(
		&div.CountryCode, &div.Country, &div.AdmArea1, &div.AdmArea2, &div.AdmArea3,
		&gid, &div.Latitude, &div.Longitude,
	)
	if errors.Is(err, ErrNoRows) {
		return nil, adapters.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query administrative division: %w", err)
	}

	if div.GID, err = record.DecodeGID(gid); err != nil {
		return nil, err
	}
	return &div, nil
}

// CallDBFunctionCompare возвращает true, если в staging есть эпидемиологические
// строки источника и ни одна из них не уменьшает накопленные confirmed или dead
// относительно production строки с тем же адресом
func (a *SQLAdapter) CallDBFunctionCompare(ctx context.Context, source string) (bool, error) {
	if err := a.ready(); err != nil {
		return false, err
	}
	if err := a.EnsureSchema(ctx); err != nil {
		return false, err
	}

	d := a.dialect
	prod := record.TableEpidemiology
	staging := adapters.StagingPrefix + prod
	src := d.QuoteIdent("source")
	query := fmt.Sprintf(`SELECT
	(SELECT COUNT(*) FROM %[1]s WHERE %[3]s = %[4]s),
	(SELECT COUNT(*) FROM %[1]s s JOIN %[2]s p ON %[5]s
		WHERE s.%[3]s = %[6]s AND (s.%[7]s < p.%[7]s OR s.%[8]s < p.%[8]s))`,
		d.Table(staging),
		d.Table(prod),
		src,
		d.Placeholder(1),
		JoinOn(d, "p", "s", recordKey),
		d.Placeholder(2),
		d.QuoteIdent("confirmed"),
		d.QuoteIdent("dead"),
	)

	var staged, regressed int64
	if err := a.db.QueryRow(ctx, query, source, source).Scan(&staged, &regressed); err != nil {
		return false, fmt.Errorf("failed to compare staging data: %w", err)
	}

	a.log.Debug().
		Str("source", source).
		Int64("staged", staged).
		Int64("regressed", regressed).
		Msg("staging compared")
	return staged > 0 && regressed == 0, nil
}

// CallDBFunctionSendData переносит staging строки источника в production
// и удаляет их из staging в одной транзакции
func (a *SQLAdapter) CallDBFunctionSendData(ctx context.Context, source string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.EnsureSchema(ctx); err != nil {
		return err
	}

	d := a.dialect
	return a.db.InTx(ctx, func(q Querier) error {
		for _, entity := range record.Entities {
			def := Tables[entity]
			prod := entity.DefaultTable()
			staging := adapters.StagingPrefix + prod
			cols := def.ColumnNames()

			sel := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
				QuoteList(d, cols), d.Table(staging), d.QuoteIdent("source"), d.Placeholder(1))
			moved, err := q.Exec(ctx, d.UpsertSelectSQL(prod, cols, def.Key, sel), source)
			if err != nil {
				return fmt.Errorf("failed to move %s rows to production: %w", entity, err)
			}

			del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
				d.Table(staging), d.QuoteIdent("source"), d.Placeholder(1))
			if _, err := q.Exec(ctx, del, source); err != nil {
				return fmt.Errorf("failed to clear %s: %w", staging, err)
			}

			a.log.Debug().Str("source", source).Str("table", prod).Int64("rows", moved).Msg("staging data sent")
		}
		return nil
	})
}

// TruncateStaging удаляет все строки из staging таблиц
func (a *SQLAdapter) TruncateStaging(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.EnsureSchema(ctx); err != nil {
		return err
	}

	return a.db.InTx(ctx, func(q Querier) error {
		for _, entity := range record.Entities {
			staging := adapters.StagingPrefix + entity.DefaultTable()
			if _, err := q.Exec(ctx, "DELETE FROM "+a.dialect.Table(staging)); err != nil {
				return fmt.Errorf("failed to truncate %s: %w", staging, err)
			}
		}
		return nil
	})
}

var (
	_ adapters.Storage          = (*SQLAdapter)(nil)
	_ adapters.Comparer         = (*SQLAdapter)(nil)
	_ adapters.DataSender       = (*SQLAdapter)(nil)
	_ adapters.StagingTruncater = (*SQLAdapter)(nil)
	_ adapters.DivisionStore    = (*SQLAdapter)(nil)
)
