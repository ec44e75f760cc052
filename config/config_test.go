package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndProviders(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "pgs")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "catalog")
	t.Setenv("LITERATURE_PROVIDERS", " EuropePMC, ,pubmed ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "4242", cfg.HTTPPort)
	assert.Equal(t, []string{"europepmc", "pubmed"}, cfg.Providers())
	assert.False(t, cfg.ArchiveEnabled())
	assert.Equal(t, "host=localhost user=pgs password=secret dbname=catalog port=5432 sslmode=disable", cfg.DSN())
}

func TestLoad_MissingDatabase(t *testing.T) {
	// t.Setenv stellt den alten Wert nach dem Test wieder her
	for _, key := range []string{"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	_, err := Load()
	assert.Error(t, err)
}
