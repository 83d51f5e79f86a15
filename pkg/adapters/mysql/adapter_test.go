package mysql

import (
	"strings"
	"testing"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

func TestNormalizeDSN(t *testing.T) {
	dsn, err := NormalizeDSN("epi:secret@tcp(localhost:3306)/epi")
	if err != nil {
		t.Fatalf("NormalizeDSN failed: %v", err)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("parseTime missing: %s", dsn)
	}

	if _, err := NormalizeDSN("::::"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

func TestDialect_UpsertSQL(t *testing.T) {
	d := Dialect{}
	got := d.UpsertSQL("epidemiology", []string{"source", "date", "confirmed"}, []string{"source", "date"})
	want := "INSERT INTO `epidemiology` (`source`, `date`, `confirmed`) VALUES (?, ?, ?) AS new_row" +
		" ON DUPLICATE KEY UPDATE `confirmed` = new_row.`confirmed`"
	if got != want {
		t.Errorf("UpsertSQL =\n%s\nwant\n%s", got, want)
	}
}

func TestDialect_UpsertSelectSQL(t *testing.T) {
	d := Dialect{}
	got := d.UpsertSelectSQL("mobility", []string{"source", "parks"}, []string{"source"}, "SELECT `source`, `parks` FROM `staging_mobility`")
	if !strings.HasPrefix(got, "INSERT INTO `mobility` (`source`, `parks`) SELECT * FROM (SELECT") {
		t.Errorf("UpsertSelectSQL = %s", got)
	}
	if !strings.HasSuffix(got, "ON DUPLICATE KEY UPDATE `parks` = src.`parks`") {
		t.Errorf("UpsertSelectSQL = %s", got)
	}
}

func TestDialect_KeyColumnLimit(t *testing.T) {
	d := Dialect{}
	if got := d.ColumnType(base.Column{Kind: base.KindKey, Size: 255}); got != "VARCHAR(191)" {
		t.Errorf("key column = %s", got)
	}
	if got := d.ColumnType(base.Column{Kind: base.KindText, Size: 1024}); got != "VARCHAR(1024)" {
		t.Errorf("text column = %s", got)
	}
}
