package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatementsKeepsStatementAfterHeaderComment(t *testing.T) {
	sqlText := "-- header comment\nCREATE TABLE a (id INT);\n\n-- section\nCREATE TABLE b (id INT);\n"

	stmts := splitStatements(sqlText)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"))
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b"))
}

func TestSplitStatementsCoversInitialSchema(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)

	stmts := splitStatements(string(raw))
	require.NotEmpty(t, stmts)
	// The header comment must not swallow the users table.
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS users")

	var tables []string
	for _, stmt := range stmts {
		assert.False(t, strings.HasPrefix(stmt, "--"))
		if rest, ok := strings.CutPrefix(stmt, "CREATE TABLE IF NOT EXISTS "); ok {
			name, _, _ := strings.Cut(rest, " ")
			tables = append(tables, name)
		}
	}
	assert.Equal(t,
		[]string{"users", "analysis_results", "analysis_history", "notifications", "audit_log"},
		tables)
}
