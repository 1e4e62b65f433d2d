package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/petadopt/internal/ir"
)

func TestLoad_ValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petadopt.yaml")
	content := `
database:
  path: "./pets.db"

registry:
  owner: "0x00000000000000000000000000000000000000AA"
  initial_pets: 16

network:
  id: 1337
  current: 1

catalog:
  path: "./pets.json"

session:
  await_timeout: "5s"

logging:
  level: "debug"
  format: "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./pets.db", cfg.Database.Path)
	assert.Equal(t, uint64(16), cfg.Registry.InitialPets)
	assert.Equal(t, uint64(1337), cfg.Network.ID)
	assert.Equal(t, uint64(1), cfg.WalletNetwork())
	assert.Equal(t, "./pets.json", cfg.Catalog.Path)
	assert.Equal(t, 5*time.Second, cfg.Session.AwaitTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "json", cfg.Logging.Format)

	owner, err := cfg.OwnerAddress()
	require.NoError(t, err)
	assert.Equal(t, ir.Address("0x00000000000000000000000000000000000000aa"), owner)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("catalog:\n  path: pets.yaml\n"))
	require.NoError(t, err)

	assert.Equal(t, "petadopt.db", cfg.Database.Path)
	assert.Equal(t, DefaultNetworkID, cfg.Network.ID)
	assert.Equal(t, DefaultNetworkID, cfg.WalletNetwork(), "wallet starts on the expected network")
	assert.Equal(t, 30*time.Second, cfg.Session.AwaitTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("PETADOPT_TEST_OWNER", "0x0000000000000000000000000000000000000001")
	t.Setenv("PETADOPT_TEST_DB", "/tmp/expanded.db")

	cfg, err := Parse([]byte(`
database:
  path: "${PETADOPT_TEST_DB}"
registry:
  owner: "${PETADOPT_TEST_OWNER}"
catalog:
  path: "${PETADOPT_TEST_UNSET}"
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/expanded.db", cfg.Database.Path)
	assert.Equal(t, "0x0000000000000000000000000000000000000001", cfg.Registry.Owner)
	assert.Equal(t, "", cfg.Catalog.Path, "unset variables expand to empty")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"empty database path", "database:\n  path: \"\"\n", "database.path is required"},
		{"bad owner", "registry:\n  owner: nope\n", "registry.owner"},
		{"zero owner", "registry:\n  owner: \"0x0000000000000000000000000000000000000000\"\n", "zero address"},
		{"zero network", "network:\n  id: 0\n", "network.id"},
		{"bad duration", "session:\n  await_timeout: soon\n", "await_timeout"},
		{"negative duration", "session:\n  await_timeout: -1s\n", "must be positive"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"bad yaml", "database: [unterminated\n", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
