package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestCreateSQLMigrationStampsVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "Add loan--purpose", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260301093000_add_loan_purpose.sql"), path)

	_, err = createSQLMigration(dir, "add loan purpose", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCreateSQLMigrationRejectsEmptySlug(t *testing.T) {
	_, err := createSQLMigration(t.TempDir(), "!!!", time.Now())
	require.Error(t, err)
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20260301090000_ok.sql", "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	write("20260301090000_dup.sql", "-- +goose Up\n-- +goose Down\n")
	write("bad-name.sql", "-- +goose Up\n-- +goose Down\n")
	write("20260301090100_unbalanced.sql", "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")
	write("README.md", "ignored")

	err := ValidateDir(dir)
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 3)
	joined := err.Error()
	assert.True(t, strings.Contains(joined, "bad-name.sql"))
	assert.True(t, strings.Contains(joined, "already used"))
	assert.True(t, strings.Contains(joined, "StatementBegin"))
}
