package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/payout-bot/internal/config"
	"github.com/flor3z/payout-bot/internal/importer"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useTempDatabase(t *testing.T) string {
	t.Helper()
	t.Chdir(t.TempDir())
	dbPath := filepath.Join(t.TempDir(), "payout.db")
	t.Setenv("PAYOUT_DATABASE_DRIVER", config.DriverSQLite)
	t.Setenv("PAYOUT_DATABASE_URL", dbPath)
	t.Setenv("PAYOUT_LOG_LEVEL", "error")
	return dbPath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "version=dev "), out)
}

func TestImportThenStock(t *testing.T) {
	useTempDatabase(t)

	file := filepath.Join(t.TempDir(), "stock.txt")
	require.NoError(t, os.WriteFile(file, []byte("a@x.com:1\nb@x.com:2\njunk\na@x.com:1\n"), 0o600))

	out, err := execute(t, "import", "--guild", "g1", "--service", "nfa", file)
	require.NoError(t, err)
	assert.Equal(t, "lines=4 added=2 skipped=1 invalid=1\n", out)

	// Importing again skips everything.
	out, err = execute(t, "import", "--guild", "g1", "--service", "nfa", file)
	require.NoError(t, err)
	assert.Equal(t, "lines=4 added=0 skipped=3 invalid=1\n", out)

	out, err = execute(t, "stock", "--guild", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "SERVICE")
	assert.Regexp(t, `nfa\s+2`, out)

	out, err = execute(t, "stock", "--guild", "other")
	require.NoError(t, err)
	assert.NotContains(t, out, "nfa")
}

func TestImportRejectsUnknownService(t *testing.T) {
	useTempDatabase(t)
	file := filepath.Join(t.TempDir(), "stock.txt")
	require.NoError(t, os.WriteFile(file, []byte("a@x.com:1\n"), 0o600))

	_, err := execute(t, "import", "--guild", "g1", "--service", "steam", file)
	require.ErrorContains(t, err, `unknown service "steam"`)
}

func TestImportRejectsOversizedFile(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("PAYOUT_IMPORT_MAX_BYTES", "30")

	file := filepath.Join(t.TempDir(), "stock.txt")
	require.NoError(t, os.WriteFile(file, []byte("a@x.com:secret1111\nb@x.com:LONGSECRET-ABCDEFG\n"), 0o600))

	_, err := execute(t, "import", "--guild", "g1", "--service", "nfa", file)
	require.ErrorIs(t, err, importer.ErrTooLarge)

	out, err := execute(t, "stock", "--guild", "g1")
	require.NoError(t, err)
	assert.NotContains(t, out, "nfa")
}

func TestImportRequiresFlags(t *testing.T) {
	useTempDatabase(t)
	_, err := execute(t, "import", "stock.txt")
	require.Error(t, err)
}

func TestRunRequiresToken(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("PAYOUT_DISCORD_TOKEN", "")

	_, err := execute(t, "run")
	require.ErrorContains(t, err, "PAYOUT_DISCORD_TOKEN is required")
}

func TestOpenLedgerUnknownDriver(t *testing.T) {
	_, err := openLedger(&config.Config{Database: config.DatabaseConfig{Driver: "mysql", URL: "x"}})
	require.ErrorContains(t, err, "unsupported database driver")
}
