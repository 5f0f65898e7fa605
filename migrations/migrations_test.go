package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements(t *testing.T) {
	stmts, err := Statements(MySQL)
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.True(t, strings.HasPrefix(stmts[2], "CREATE TABLE IF NOT EXISTS emails"))

	stmts, err = Statements(ClickHouse)
	require.NoError(t, err)
	assert.Len(t, stmts, 2)
}
