// Package refdata holds the versioned reference dataset consumed by the
// matcher and enrichment stages: token alias tables, keyword dictionaries,
// registry denylists and per-chain source fixups. It is loaded from a YAML
// file at stage start so researchers can update it without a code change.
package refdata

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Set is one versioned reference dataset.
type Set struct {
	Version string `yaml:"version"`

	// TokenAliases maps a canonical target asset ticker to the wrapped and
	// bridged symbols that count as that asset in holdings data.
	TokenAliases map[string][]string `yaml:"token_aliases"`

	// RegistryAssetAliases maps target tickers to the names the registry
	// uses for the same asset ("USDt", "Tether", full chain names).
	RegistryAssetAliases map[string][]string `yaml:"registry_asset_aliases"`

	// StablecoinKeywords and ChainKeywords drive the website content scan,
	// keyed by target asset ticker.
	StablecoinKeywords map[string][]string `yaml:"stablecoin_keywords"`
	ChainKeywords      map[string][]string `yaml:"chain_keywords"`

	// GenericStablecoinKeywords signal stablecoin adoption without naming a
	// specific asset; Web3Keywords signal on-chain activity generally.
	GenericStablecoinKeywords []string `yaml:"generic_stablecoin_keywords"`
	Web3Keywords              []string `yaml:"web3_keywords"`

	// DenyNames are registry entries too generic or ambiguous to ever
	// accept as a match, keyed by normalized name.
	DenyNames []string `yaml:"deny_names"`

	// ExcludedDomains never participate in URL-based matching (social
	// platforms, chain-foundation domains shared by many projects).
	ExcludedDomains []string `yaml:"excluded_domains"`

	// GenericSourceByChain maps a chain id to the hostname that historic
	// "Generic Scraper" rows were actually scraped from.
	GenericSourceByChain map[string]string `yaml:"generic_source_by_chain"`

	denyIndex    map[string]struct{}
	excludeIndex map[string]struct{}
}

// Default returns the built-in dataset used when no file is configured.
func Default() *Set {
	s := &Set{
		Version: "builtin",
		TokenAliases: map[string][]string{
			"USDT": {"USDT", "USDT.e", "USDt", "USDT.b", "BUSDT", "fUSDT", "ceUSDT", "axlUSDT", "multiUSDT", "whUSDT", "zUSDT", "madUSDT", "tUSDT"},
			"USDC": {"USDC", "USDC.e", "axlUSDC", "multiUSDC", "whUSDC", "ceUSDC", "madUSDC", "bridgedUSDC", "USDbC", "cUSDC", "fUSDC", "zUSDC"},
			"SOL":  {"SOL", "WSOL", "mSOL", "stSOL", "jitoSOL", "bSOL"},
			"STRK": {"STRK"},
			"ADA":  {"ADA", "WADA"},
			"APT":  {"APT", "stAPT", "amAPT", "tAPT"},
			"ETH":  {"ETH", "WETH", "WSTETH", "stETH", "rETH", "cbETH", "swETH", "weETH", "ezETH"},
			"BTC":  {"BTC", "WBTC", "tBTC", "cbBTC", "sBTC"},
		},
		RegistryAssetAliases: map[string][]string{
			"USDT": {"USDt", "USDT", "Tether USDt", "Tether"},
			"USDC": {"USDC", "USD Coin"},
			"SOL":  {"SOL", "Solana"},
			"STRK": {"STRK", "Starknet"},
			"ADA":  {"ADA", "Cardano"},
		},
		StablecoinKeywords: map[string][]string{
			"USDT": {"usdt", "tether"},
			"USDC": {"usdc", "usd coin"},
		},
		ChainKeywords: map[string][]string{
			"SOL":  {"solana"},
			"STRK": {"starknet"},
			"ADA":  {"cardano"},
			"APT":  {"aptos"},
			"ETH":  {"ethereum"},
			"BTC":  {"bitcoin"},
		},
		GenericStablecoinKeywords: []string{"stablecoin", "stablecoins", "stable coin"},
		Web3Keywords: []string{
			"swap", "bridge", "dex", "liquidity", "yield",
			"lending", "borrow", "staking", "farming", "amm",
			"defi", "decentralized exchange", "liquidity pool",
		},
		DenyNames: []string{"app", "defi", "dex", "swap", "bridge", "wallet", "token", "crypto", "staking", "finance"},
		ExcludedDomains: []string{
			"x.com", "twitter.com", "t.me", "telegram.org", "discord.gg", "discord.com",
			"github.com", "youtube.com", "reddit.com", "medium.com", "mirror.xyz",
			"linkedin.com", "facebook.com", "instagram.com",
			"near.org", "aurora.dev", "google.com", "apple.com",
		},
		GenericSourceByChain: map[string]string{
			"near": "wallet.near.org",
		},
	}
	s.buildIndexes()
	return s
}

// Load reads a dataset from a YAML file. Fields absent from the file fall
// back to the built-in defaults so partial overrides stay cheap.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read %s", path)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, eris.Wrapf(err, "refdata: parse %s", path)
	}
	s.buildIndexes()
	return s, nil
}

func (s *Set) buildIndexes() {
	s.denyIndex = make(map[string]struct{}, len(s.DenyNames))
	for _, n := range s.DenyNames {
		s.denyIndex[n] = struct{}{}
	}
	s.excludeIndex = make(map[string]struct{}, len(s.ExcludedDomains))
	for _, d := range s.ExcludedDomains {
		s.excludeIndex[d] = struct{}{}
	}
}

// Denied reports whether a normalized name is on the registry denylist.
func (s *Set) Denied(normalizedName string) bool {
	_, ok := s.denyIndex[normalizedName]
	return ok
}

// DomainExcluded reports whether a domain is too generic for URL matching.
func (s *Set) DomainExcluded(domain string) bool {
	_, ok := s.excludeIndex[domain]
	return ok
}

// AliasSet returns the alias lookup for one target asset in holdings data.
func (s *Set) AliasSet(asset string) map[string]struct{} {
	aliases, ok := s.TokenAliases[asset]
	if !ok {
		return map[string]struct{}{asset: {}}
	}
	out := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		out[a] = struct{}{}
	}
	return out
}

// RegistryAliasSet returns the alias lookup for one target asset in
// registry product→asset relationships.
func (s *Set) RegistryAliasSet(asset string) map[string]struct{} {
	aliases, ok := s.RegistryAssetAliases[asset]
	if !ok {
		return map[string]struct{}{asset: {}}
	}
	out := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		out[a] = struct{}{}
	}
	return out
}
