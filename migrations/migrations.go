// Package migrations embeds the schema files applied by the migrate command.
package migrations

import (
	"embed"
	"strings"
)

//go:embed *.sql
var FS embed.FS

const (
	MySQL      = "001_init.sql"
	ClickHouse = "clickhouse_001_deliveries.sql"
)

// Statements reads name and splits it into individual statements.
func Statements(name string) ([]string, error) {
	b, err := FS.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range strings.Split(string(b), ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
