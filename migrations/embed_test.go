package migrations

import (
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

func TestNamesPairUpAndDown(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.Equal(t, []string{"000001_ledger.down.sql", "000001_ledger.up.sql"}, names)
}

func TestSourceReadsVersions(t *testing.T) {
	src, err := iofs.New(files, ".")
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	first, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	_, err = src.Next(first)
	require.ErrorIs(t, err, fs.ErrNotExist)

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	body, err := io.ReadAll(down)
	require.NoError(t, err)
	require.NoError(t, down.Close())
	require.Contains(t, string(body), "DROP TABLE IF EXISTS journal_entries")
}

func TestSchemaDeclaresConstraintsUsedByRepositories(t *testing.T) {
	src, err := iofs.New(files, ".")
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	up, _, err := src.ReadUp(1)
	require.NoError(t, err)
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	require.NoError(t, up.Close())
	schema := string(body)
	for _, name := range []string{
		"uq_journal_entries_number",
		"uq_journal_entries_live_reference",
		"compound_execution_logs",
		"account_mappings",
		"audit_logs",
	} {
		require.True(t, strings.Contains(schema, name), "schema missing %s", name)
	}
}
