package store

import (
	"strings"
	"testing"
)

func TestDescriptorDDL(t *testing.T) {
	desc := ProductDescriptor{
		Portal:  "hydrosat",
		Product: "WL",
		Table:   "hydrosat_wl",
		Extra:   []Column{{Name: "source_id", SQLType: "INTEGER"}},
	}
	if err := desc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	ddl := desc.DDL()
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS hydrosync.hydrosat_wl",
		"key        TEXT PRIMARY KEY",
		"data       JSONB NOT NULL",
		"source_id INTEGER",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

func TestDescriptorUpsertSQL(t *testing.T) {
	desc := ProductDescriptor{Table: "dahiti_water_level_altimetry"}
	sql := desc.upsertSQL()
	for _, want := range []string{
		"INSERT INTO hydrosync.dahiti_water_level_altimetry",
		"ON CONFLICT (key) DO UPDATE",
		"lastupdate = EXCLUDED.lastupdate",
		"data = EXCLUDED.data",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("upsert SQL missing %q:\n%s", want, sql)
		}
	}
	if strings.Contains(sql, "key = EXCLUDED.key") {
		t.Error("conflict key must not be updated")
	}
}

func TestDescriptorValidateRejectsBadIdentifiers(t *testing.T) {
	bad := []ProductDescriptor{
		{Table: "1bad"},
		{Table: "ok_table", Extra: []Column{{Name: "drop table", SQLType: "TEXT"}}},
		{Table: "semi;colon"},
	}
	for _, desc := range bad {
		if err := desc.Validate(); err == nil {
			t.Errorf("descriptor %+v should be rejected", desc)
		}
	}
}
