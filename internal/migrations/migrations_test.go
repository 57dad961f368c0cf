package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFS_ListsBothDialects(t *testing.T) {
	t.Parallel()

	pg, err := FS(Postgres)
	require.NoError(t, err)
	names, err := fs.Glob(pg, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_identities.sql", "00002_sessions.sql", "00003_audit_log.sql", "00004_password_reset.sql"}, names)

	lite, err := FS(SQLite)
	require.NoError(t, err)
	names, err = fs.Glob(lite, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_sessions.sql"}, names)
}

func TestFS_UnknownDialect(t *testing.T) {
	t.Parallel()

	_, err := FS("oracle")
	require.Error(t, err)
}
