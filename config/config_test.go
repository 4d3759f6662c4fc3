package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gildchain/crypto"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func testAddress(t *testing.T, suffix byte) string {
	t.Helper()
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.GildPrefix, raw).String()
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8561", cfg.RPCAddress)
	require.Equal(t, "gild-local", cfg.NetworkName)
	require.NotNil(t, cfg.Roles.Minters)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, "50000000000", cfg.Genesis.BaseRate)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "BogusKey = true\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown keys")
}

func TestLoadParsesRolesAndRate(t *testing.T) {
	minter := testAddress(t, 0x01)
	admin := testAddress(t, 0x02)
	path := writeConfig(t, `
[genesis]
BaseRate = "40000000000"

[roles]
Minters = ["`+minter+`"]
RateAdmins = ["`+admin+`"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	rate, err := cfg.Genesis.BaseRateWad()
	require.NoError(t, err)
	require.Zero(t, rate.Cmp(big.NewInt(40_000_000_000)))
	require.Equal(t, []string{minter}, cfg.Roles.Minters)
	require.Equal(t, []string{admin}, cfg.Roles.RateAdmins)
}

func TestLoadRejectsBadAddresses(t *testing.T) {
	path := writeConfig(t, `
[roles]
Minters = ["not-a-bech32-address"]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestBaseRateWadEmptyMeansSkip(t *testing.T) {
	rate, err := GenesisConfig{}.BaseRateWad()
	require.NoError(t, err)
	require.Nil(t, rate)
}

func TestBaseRateWadRejectsGarbage(t *testing.T) {
	_, err := GenesisConfig{BaseRate: "5e10"}.BaseRateWad()
	require.Error(t, err)
	_, err = GenesisConfig{BaseRate: "-1"}.BaseRateWad()
	require.Error(t, err)
}
