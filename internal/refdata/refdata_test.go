package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.Equal(t, "builtin", s.Version)
	assert.Contains(t, s.AliasSet("USDT"), "USDt")
	assert.Contains(t, s.RegistryAliasSet("SOL"), "Solana")
	assert.True(t, s.Denied("swap"))
	assert.False(t, s.Denied("thala"))
	assert.True(t, s.DomainExcluded("twitter.com"))
	assert.False(t, s.DomainExcluded("thalalabs.xyz"))
}

func TestAliasSetUnknownAssetFallsBackToItself(t *testing.T) {
	s := Default()
	aliases := s.AliasSet("XYZ")
	assert.Len(t, aliases, 1)
	assert.Contains(t, aliases, "XYZ")
}

func TestLoadPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refdata.yaml")
	content := `
version: "2026-08"
deny_names:
  - onlyme
generic_source_by_chain:
  aptos: ecosystem.aptosfoundation.org
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2026-08", s.Version)
	assert.True(t, s.Denied("onlyme"))
	assert.False(t, s.Denied("swap"), "override replaces the denylist")
	assert.Equal(t, "ecosystem.aptosfoundation.org", s.GenericSourceByChain["aptos"])
	// Untouched sections keep defaults.
	assert.Contains(t, s.AliasSet("USDC"), "USDbC")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
