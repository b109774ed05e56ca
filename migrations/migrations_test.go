package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFS_HasOrderedGooseFiles(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_init.sql", "00002_seed_tariffs.sql"}, names)

	for _, n := range names {
		b, err := fs.ReadFile(FS, n)
		require.NoError(t, err)
		require.True(t, strings.Contains(string(b), "-- +goose Up"), n)
		require.True(t, strings.Contains(string(b), "-- +goose Down"), n)
	}
}
