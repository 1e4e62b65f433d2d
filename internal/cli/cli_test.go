package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/petadopt/internal/ir"
)

const (
	ownerHex = "0x0000000000000000000000000000000000000001"
	aliceHex = "0x00000000000000000000000000000000000000a1"
	bobHex   = "0x00000000000000000000000000000000000000b2"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a config file pointing at a fresh database and
// returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  path: %q
registry:
  owner: %q
  initial_pets: 5
catalog:
  path: %q
logging:
  level: debug
%s`, filepath.Join(dir, "pets.db"), ownerHex, filepath.Join("..", "catalog", "testdata", "pets.json"), extra)
	path := filepath.Join(dir, "petadopt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// initRegistry writes a config and runs init against it.
func initRegistry(t *testing.T, extra string) string {
	t.Helper()
	cfg := writeConfig(t, extra)
	_, err := execute(t, "init", "--config", cfg)
	require.NoError(t, err)
	return cfg
}

type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "petadopt", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "add", "adopt", "owner", "adopted", "owner-of", "pets", "log", "test"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "Command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	config := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "c", config.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "owner", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBadConfigIsCommandError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))

	_, err := execute(t, "owner", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pets.db")

	out, err := execute(t, "init", "--db", db, "--owner", ownerHex, "--pets", "3", "--network", "1337", "--format", "json")
	require.NoError(t, err)

	resp := decode[InitResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, db, resp.Data.Database)
	assert.Equal(t, ir.MustAddress(ownerHex), resp.Data.Owner)
	assert.Equal(t, uint64(3), resp.Data.InitialPets)
	assert.Equal(t, uint64(1337), resp.Data.NetworkID)

	// Same values again is a no-op.
	_, err = execute(t, "init", "--db", db, "--owner", ownerHex, "--pets", "3", "--network", "1337")
	require.NoError(t, err)

	// The owner cannot change.
	_, err = execute(t, "init", "--db", db, "--owner", aliceHex, "--pets", "3", "--network", "1337")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "already initialised")
}

func TestInit_RequiresOwner(t *testing.T) {
	_, err := execute(t, "init", "--db", filepath.Join(t.TempDir(), "pets.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--owner is required")
}

func TestInit_FromConfig(t *testing.T) {
	cfg := initRegistry(t, "")

	out, err := execute(t, "owner", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	resp := decode[OwnerResult](t, out)
	assert.Equal(t, ir.MustAddress(ownerHex), resp.Data.Owner)
	assert.Equal(t, uint64(5), resp.Data.EntityCount)
	assert.Equal(t, uint64(0), resp.Data.Version)
}

func TestCommands_RequireInitialisedDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing.db")

	for _, args := range [][]string{
		{"owner"},
		{"adopted"},
		{"owner-of", "0"},
		{"adopt", "0", "--as", aliceHex},
		{"log"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := execute(t, append(args, "--db", db)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "database not found")
		})
	}
	_, statErr := os.Stat(db)
	assert.True(t, os.IsNotExist(statErr), "commands must not create the database")
}

func TestAdopt_EndToEnd(t *testing.T) {
	cfg := initRegistry(t, "")

	out, err := execute(t, "adopt", "1", "--as", aliceHex, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Adopted pet 1 as "+aliceHex)
	assert.Contains(t, out, "seq:        1")

	// A second adoption of the same pet is declined by the environment.
	out, err = execute(t, "adopt", "1", "--as", bobHex, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsCode(err, ir.ErrCodeEnvironmentRejected))
	assert.Contains(t, out, "Error [ENVIRONMENT_REJECTED]: Pet already adopted")

	out, err = execute(t, "adopt", "9", "--as", bobHex, "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, out, "Pet does not exist")

	out, err = execute(t, "adopt", "--as", bobHex, "--config", cfg, "--", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "value out-of-bounds")

	out, err = execute(t, "owner-of", "1", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, aliceHex+"\n", out)

	out, err = execute(t, "owner-of", "2", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, ir.ZeroAddressHex+"\n", out)

	out, err = execute(t, "adopted", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = execute(t, "adopted", "--by", bobHex, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "No pets adopted.")
}

func TestAdopt_JSON(t *testing.T) {
	cfg := initRegistry(t, "")

	out, err := execute(t, "adopt", "2", "--as", aliceHex, "--config", cfg, "--format", "json")
	require.NoError(t, err)

	resp := decode[RequestResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Receipt.Succeeded())
	assert.Equal(t, ir.EntityID(2), resp.Data.Receipt.EntityID)
	assert.Equal(t, []ir.EntityID{2}, resp.Data.View.Owned)
	assert.Equal(t, "confirmed", resp.Data.View.State)
	assert.Nil(t, resp.Data.View.Pending, "pending is cleared after confirmation")

	out, err = execute(t, "adopt", "2", "--as", bobHex, "--config", cfg, "--format", "json")
	require.Error(t, err)

	failed := decode[any](t, out)
	assert.Equal(t, "error", failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, string(ir.ErrCodeEnvironmentRejected), failed.Error.Code)
	assert.Equal(t, ir.ReasonAlreadyAdopted, failed.Error.Message)
}

func TestAdd_OwnerOnly(t *testing.T) {
	cfg := initRegistry(t, "")

	// --as defaults to registry.owner.
	out, err := execute(t, "add", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Added pet 5")

	out, err = execute(t, "add", "--as", aliceHex, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Only owner can add pets")

	out, err = execute(t, "owner", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), decode[OwnerResult](t, out).Data.EntityCount)
}

func TestAdopt_NetworkMismatch(t *testing.T) {
	cfg := initRegistry(t, "network:\n  current: 1\n  reject_switch: true\n")

	out, err := execute(t, "adopt", "0", "--as", aliceHex, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsCode(err, ir.ErrCodeNetworkMismatch))
	assert.Contains(t, out, "Error [NETWORK_MISMATCH]")

	out, err = execute(t, "adopted", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "No pets adopted.")
}

func TestAdopt_NetworkSwitchAccepted(t *testing.T) {
	cfg := initRegistry(t, "network:\n  current: 1\n")

	out, err := execute(t, "adopt", "0", "--as", aliceHex, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Adopted pet 0")
}

func TestPets(t *testing.T) {
	cfg := initRegistry(t, "")

	_, err := execute(t, "adopt", "0", "--as", aliceHex, "--config", cfg)
	require.NoError(t, err)
	_, err = execute(t, "adopt", "3", "--as", bobHex, "--config", cfg)
	require.NoError(t, err)

	out, err := execute(t, "pets", "--as", aliceHex, "--config", cfg, "--format", "json")
	require.NoError(t, err)

	resp := decode[PetsResult](t, out)
	require.Len(t, resp.Data.Items, 5)
	assert.Equal(t, "Frieda", resp.Data.Items[0].Pet.Name)
	assert.True(t, resp.Data.Items[0].Owned)
	assert.False(t, resp.Data.Items[0].Actionable)
	assert.True(t, resp.Data.Items[3].Adopted)
	assert.False(t, resp.Data.Items[3].Owned)
	assert.True(t, resp.Data.Items[1].Actionable)

	out, err = execute(t, "pets", "--filter", "owned", "--as", aliceHex, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Frieda")
	assert.Contains(t, out, "yours")
	assert.NotContains(t, out, "Gina")

	_, err = execute(t, "pets", "--filter", "all", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLog(t *testing.T) {
	cfg := initRegistry(t, "")

	_, err := execute(t, "adopt", "4", "--as", aliceHex, "--config", cfg)
	require.NoError(t, err)
	_, err = execute(t, "add", "--config", cfg)
	require.NoError(t, err)
	// Preflight rejections are not journaled.
	_, err = execute(t, "adopt", "4", "--as", bobHex, "--config", cfg)
	require.Error(t, err)

	out, err := execute(t, "log", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	resp := decode[LogResult](t, out)
	assert.Equal(t, uint64(5), resp.Data.InitialPets)
	require.Len(t, resp.Data.Entries, 2)
	assert.Equal(t, ir.KindAdoptEntity, resp.Data.Entries[0].Receipt.Kind)
	assert.Equal(t, int64(1), resp.Data.Entries[0].Receipt.Seq)
	assert.Equal(t, ir.KindAddEntity, resp.Data.Entries[1].Receipt.Kind)
	assert.Equal(t, ir.EntityID(5), resp.Data.Entries[1].Receipt.EntityID)

	out, err = execute(t, "log", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, "adopt_entity")
}

func TestLog_Empty(t *testing.T) {
	cfg := initRegistry(t, "")

	out, err := execute(t, "log", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "No journal entries.")
}

func TestLog_Filters(t *testing.T) {
	cfg := initRegistry(t, "")

	_, err := execute(t, "adopt", "1", "--as", aliceHex, "--config", cfg)
	require.NoError(t, err)
	_, err = execute(t, "adopt", "2", "--as", bobHex, "--config", cfg)
	require.NoError(t, err)
	_, err = execute(t, "add", "--config", cfg)
	require.NoError(t, err)

	tests := []struct {
		name     string
		args     []string
		wantSeqs []int64
	}{
		{"kind", []string{"--kind", "adopt_entity"}, []int64{1, 2}},
		{"caller", []string{"--caller", bobHex}, []int64{2}},
		{"status", []string{"--status", "failure"}, []int64{}},
		{"pet", []string{"--pet", "5"}, []int64{3}},
		{"combined", []string{"--kind", "adopt_entity", "--pet", "1"}, []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"log", "--config", cfg, "--format", "json"}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)

			seqs := []int64{}
			for _, e := range decode[LogResult](t, out).Data.Entries {
				seqs = append(seqs, e.Receipt.Seq)
			}
			assert.Equal(t, tt.wantSeqs, seqs)
		})
	}

	_, err = execute(t, "log", "--config", cfg, "--kind", "transfer")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
