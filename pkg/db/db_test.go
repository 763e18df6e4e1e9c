package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteFile(t *testing.T) {
	t.Parallel()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.False(t, IsPostgres(db))

	var one int
	require.NoError(t, db.NewRaw("SELECT 1").Scan(context.Background(), &one))
	require.Equal(t, 1, one)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, (&Config{Driver: "mysql", DSN: "x"}).Validate())
	require.Error(t, (&Config{Driver: "sqlite"}).Validate())
	require.NoError(t, (&Config{Driver: "postgres", DSN: "postgres://localhost/db"}).Validate())
}

func TestSQLiteDSNAddsPragmas(t *testing.T) {
	t.Parallel()

	require.Equal(t, "file:a.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", sqliteDSN("file:a.db"))
	require.Equal(t, "file:a.db?mode=memory&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", sqliteDSN("file:a.db?mode=memory"))
	require.Equal(t, "file:a.db?_pragma=x", sqliteDSN("file:a.db?_pragma=x"))
}
