package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, 7180, cfg.HTTP.Port)
	assert.Equal(t, "memory", cfg.Persistence.Repository)
	assert.Equal(t, "memory", cfg.Persistence.Storage)
	assert.Equal(t, "default", cfg.DefaultTenant)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ANTBOX_PORT", "9000")
	t.Setenv("ANTBOX_REPOSITORY", "bolt")
	t.Setenv("ANTBOX_STORAGE", "disk")
	t.Setenv("ANTBOX_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "bolt", cfg.Persistence.Repository)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
}

func TestValidateCrossFieldRules(t *testing.T) {
	t.Setenv("ANTBOX_REPOSITORY", "dynamodb")
	_, err := Load()
	assert.Error(t, err, "dynamodb without a table name must fail")

	t.Setenv("ANTBOX_REPOSITORY", "memory")
	t.Setenv("ANTBOX_ENV", "production")
	_, err = Load()
	assert.Error(t, err, "production with the default jwt secret must fail")
}

func TestLoadTenants(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenants:
  - name: acme
    rootPasswordHash: deadbeef
  - name: globex
`), 0o600))

	tenants, err := LoadTenants(path, "default")
	require.NoError(t, err)
	require.Len(t, tenants, 3)
	assert.Equal(t, "default", tenants[0].Name)
	assert.Equal(t, "acme", tenants[1].Name)
	assert.Equal(t, "deadbeef", tenants[1].RootPasswordHash)
}

func TestLoadTenantsRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenants:
  - name: acme
  - name: acme
`), 0o600))

	_, err := LoadTenants(path, "default")
	assert.Error(t, err)
}

func TestLoadTenantsWithoutFile(t *testing.T) {
	tenants, err := LoadTenants("", "default")
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "default", tenants[0].Name)
}
