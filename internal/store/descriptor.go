package store

import (
	"fmt"
	"regexp"
	"strings"
)

// Column is one extra column on a product table.
type Column struct {
	Name    string
	SQLType string
}

// ProductDescriptor declares one product table: portal, product label and
// the table it maps to, plus any portal-specific extra columns. Tables
// are minted from descriptors by plain DDL generation; there is no
// reflective type synthesis anywhere.
type ProductDescriptor struct {
	Portal  string
	Product string
	Table   string
	Extra   []Column
}

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var tableChars = regexp.MustCompile(`[^a-z0-9_]+`)

// TableName derives the product-table identifier from a portal name and
// product label, e.g. ("dahiti", "water_level_altimetry") ->
// dahiti_water_level_altimetry.
func TableName(portal, product string) string {
	name := tableChars.ReplaceAllString(strings.ToLower(product), "_")
	return portal + "_" + strings.Trim(name, "_")
}

// Validate rejects descriptors whose identifiers cannot be interpolated
// into DDL safely.
func (d ProductDescriptor) Validate() error {
	if !identRe.MatchString(d.Table) {
		return fmt.Errorf("product table name %q is not a valid identifier", d.Table)
	}
	for _, col := range d.Extra {
		if !identRe.MatchString(col.Name) {
			return fmt.Errorf("extra column name %q is not a valid identifier", col.Name)
		}
	}
	return nil
}

// QualifiedTable returns the schema-qualified table name.
func (d ProductDescriptor) QualifiedTable() string {
	return Schema + "." + d.Table
}

// DDL returns the static CREATE TABLE statement for this descriptor.
func (d ProductDescriptor) DDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", d.QualifiedTable())
	b.WriteString("    key        TEXT PRIMARY KEY,\n")
	b.WriteString("    lastupdate TIMESTAMPTZ NOT NULL,\n")
	b.WriteString("    tstart     TIMESTAMPTZ,\n")
	b.WriteString("    tend       TIMESTAMPTZ,\n")
	b.WriteString("    header     JSONB,\n")
	b.WriteString("    data       JSONB NOT NULL")
	for _, col := range d.Extra {
		fmt.Fprintf(&b, ",\n    %s %s", col.Name, col.SQLType)
	}
	b.WriteString("\n);")
	return b.String()
}

// upsertSQL returns the insert-or-update statement for one record. Extra
// columns follow the fixed ones in descriptor order.
func (d ProductDescriptor) upsertSQL() string {
	cols := []string{"key", "lastupdate", "tstart", "tend", "header", "data"}
	for _, col := range d.Extra {
		cols = append(cols, col.Name)
	}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, 0, len(cols)-1)
	for _, col := range cols[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s)\nVALUES (%s)\nON CONFLICT (key) DO UPDATE\nSET %s",
		d.QualifiedTable(),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
		strings.Join(updates, ",\n    "),
	)
}
