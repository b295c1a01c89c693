package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[database]
url = "postgres://localhost/recon"

[http]
port = "9090"

[recon]
price_tolerance = "0.05"

[[approval_matrix]]
role = "Sous Chef"
spend_limit = "500.00"
categories = ["Produce", "Dairy"]

[[approval_matrix]]
role = "Head Chef"
spend_limit = 1500
categories = ["Meat", "Seafood"]

[[approval_matrix]]
role = "General Manager"
spend_limit = 10000.5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("APP_ENV", "")
	cfg, err := LoadFile(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/recon", cfg.Database.URL)
	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	assert.Equal(t, "0.05", cfg.Recon.PriceTolerance.String())

	require.Len(t, cfg.ApprovalMatrix, 3)
	assert.Equal(t, "Sous Chef", cfg.ApprovalMatrix[0].Role)
	assert.Equal(t, "500", cfg.ApprovalMatrix[0].SpendLimit.String())
	assert.Equal(t, []string{"Produce", "Dairy"}, cfg.ApprovalMatrix[0].Categories)
	assert.Equal(t, "1500", cfg.ApprovalMatrix[1].SpendLimit.String())
	assert.Equal(t, "10000.5", cfg.ApprovalMatrix[2].SpendLimit.String())
	assert.True(t, cfg.ApprovalMatrix[2].CoversAll())

	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/recon")
	t.Setenv("RECON_PRICE_TOLERANCE", "0.10")
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadFile(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/recon", cfg.Database.URL)
	assert.Equal(t, "0.1", cfg.Recon.PriceTolerance.String())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFile_BadSpendLimit(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
[[approval_matrix]]
role = "Sous Chef"
spend_limit = "lots"
`))
	assert.ErrorContains(t, err, "approval_matrix[0].spend_limit")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "missing database url", body: `[http]
port = "1"`, wantErr: "DATABASE_URL is required"},
		{name: "negative tolerance", body: `[database]
url = "x"
[recon]
price_tolerance = "-0.01"`, wantErr: "RECON_PRICE_TOLERANCE"},
		{name: "negative limit", body: `[database]
url = "x"
[[approval_matrix]]
role = "Sous Chef"
spend_limit = -1`, wantErr: "spend_limit must be >= 0"},
		{name: "rule without role", body: `[database]
url = "x"
[[approval_matrix]]
spend_limit = 1`, wantErr: "role is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			cfg, err := LoadFile(writeConfig(t, tt.body))
			require.NoError(t, err)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
