package adapters

import (
	"context"

	"github.com/ruslano69/epibridge/pkg/core/record"
)

func init() {
	Register("noop", func() Adapter {
		return NewNoop()
	})
}

// Noop - хранилище без эффектов. Не реализует ни одной опциональной
// возможности. Используется по умолчанию, если Wrapper получил nil.
type Noop struct{}

// NewNoop создает пустое хранилище
func NewNoop() *Noop {
	return &Noop{}
}

func (*Noop) Connect(ctx context.Context, cfg Config) error { return nil }
func (*Noop) Close(ctx context.Context) error               { return nil }
func (*Noop) Ping(ctx context.Context) error                { return nil }
func (*Noop) GetDatabaseType() string                       { return "noop" }

func (*Noop) UpsertGovernmentResponseData(ctx context.Context, table string, rec *record.GovernmentResponse) error {
	return nil
}

func (*Noop) UpsertEpidemiologyData(ctx context.Context, table string, rec *record.Epidemiology) error {
	return nil
}

func (*Noop) UpsertMobilityData(ctx context.Context, table string, rec *record.Mobility) error {
	return nil
}

// GetAdmDivision всегда возвращает ErrNotFound
func (*Noop) GetAdmDivision(ctx context.Context, countryCode, adm1, adm2, adm3 string) (*record.AdmDivision, error) {
	return nil, ErrNotFound
}

var _ Adapter = (*Noop)(nil)
