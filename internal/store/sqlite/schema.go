package sqlite

import (
	"strings"

	"github.com/koltyakov/fbxos/internal/entity"
)

// Every statement below is assembled from the kind declaration only; values
// always travel as bound parameters.

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlType(t entity.ColumnType) string {
	switch t {
	case entity.Integer, entity.Boolean:
		return "INTEGER NOT NULL"
	case entity.Timestamp:
		return "DATETIME NULL"
	default:
		return "TEXT NOT NULL"
	}
}

func createTableSQL(k *entity.Kind) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(k.Name))
	b.WriteString(" (\n")
	for _, c := range k.Columns {
		b.WriteString("\t")
		b.WriteString(quoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(sqlType(c.Type))
		b.WriteString(",\n")
	}
	b.WriteString("\t" + quoteIdent(entity.SourceColumn) + " TEXT NOT NULL DEFAULT '',\n")
	b.WriteString("\t" + quoteIdent(entity.UpdatedColumn) + " TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,\n")
	b.WriteString("\tPRIMARY KEY (")
	b.WriteString(strings.Join(quoteAll(idNames(k)), ", "))
	b.WriteString(")\n)")
	return b.String()
}

func upsertSQL(k *entity.Kind) string {
	names := append(columnNames(k), entity.SourceColumn)
	return "INSERT OR REPLACE INTO " + quoteIdent(k.Name) +
		" (" + strings.Join(quoteAll(names), ", ") + ") VALUES (" + placeholders(len(names)) + ")"
}

func selectSQL(k *entity.Kind, byID bool) string {
	names := append(columnNames(k), entity.SourceColumn)
	q := "SELECT " + strings.Join(quoteAll(names), ", ") + " FROM " + quoteIdent(k.Name)
	if byID {
		conds := make([]string, 0, len(k.IDColumns()))
		for _, n := range idNames(k) {
			conds = append(conds, quoteIdent(n)+" = ?")
		}
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q + " ORDER BY " + strings.Join(quoteAll(idNames(k)), ", ")
}

func countSQL(k *entity.Kind) string {
	return "SELECT COUNT(1) FROM " + quoteIdent(k.Name)
}

func columnNames(k *entity.Kind) []string {
	out := make([]string, 0, len(k.Columns))
	for _, c := range k.Columns {
		out = append(out, c.Name)
	}
	return out
}

func idNames(k *entity.Kind) []string {
	var out []string
	for _, c := range k.IDColumns() {
		out = append(out, c.Name)
	}
	return out
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
