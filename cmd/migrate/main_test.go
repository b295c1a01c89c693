package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverMigrations(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"002_match_records.sql": "CREATE TABLE b ();",
		"001_procurement.sql":   "CREATE TABLE a ();",
		"README.md":             "ignored",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}

	got, err := discoverMigrations(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001", got[0].Version)
	assert.Equal(t, "002_match_records.sql", got[1].Filename)
	assert.Len(t, got[0].Checksum, 64)
	assert.NotEqual(t, got[0].Checksum, got[1].Checksum)
}

func TestDiscoverMigrations_Rejects(t *testing.T) {
	t.Run("duplicate version", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "001_a.sql"), nil, 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "001_b.sql"), nil, 0o600))
		_, err := discoverMigrations(dir)
		assert.ErrorContains(t, err, "duplicate version 001")
	})
	t.Run("bad filename", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.sql"), nil, 0o600))
		_, err := discoverMigrations(dir)
		assert.ErrorContains(t, err, "invalid migration filename")
	})
}

func TestRepositoryMigrationsAreDiscoverable(t *testing.T) {
	got, err := discoverMigrations(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001", got[0].Version)
}
