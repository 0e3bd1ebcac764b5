package enrich

import (
	"context"
	"errors"

	"github.com/stablewatch/ecosystem-cli/pkg/airesearch"
	"github.com/stablewatch/ecosystem-cli/pkg/coingecko"
	"github.com/stablewatch/ecosystem-cli/pkg/defillama"
	"github.com/stablewatch/ecosystem-cli/pkg/thegrid"
	"github.com/stablewatch/ecosystem-cli/pkg/webscan"
)

// Fakes shared by the stage tests.

type fakeGrid struct {
	profiles  map[string][]thegrid.Profile // keyed by search text
	roots     map[string]*thegrid.Root
	searchErr map[string]error // keyed by search text
	rootErr   map[string]error // keyed by root id
}

func (f *fakeGrid) SearchProfiles(_ context.Context, name string) ([]thegrid.Profile, error) {
	if err := f.searchErr[name]; err != nil {
		return nil, err
	}
	return f.profiles[name], nil
}

func (f *fakeGrid) SearchByURL(_ context.Context, _ string) ([]thegrid.Profile, []thegrid.Product, error) {
	return nil, nil, nil
}

func (f *fakeGrid) RootBySlug(_ context.Context, slug string) (*thegrid.Root, error) {
	return f.roots[slug], nil
}

func (f *fakeGrid) RootByID(_ context.Context, id string) (*thegrid.Root, error) {
	if err := f.rootErr[id]; err != nil {
		return nil, err
	}
	return f.roots[id], nil
}

func (f *fakeGrid) ListProfiles(_ context.Context, _, offset int) ([]thegrid.Profile, error) {
	if offset > 0 {
		return nil, nil
	}
	var all []thegrid.Profile
	for _, ps := range f.profiles {
		all = append(all, ps...)
	}
	return all, nil
}

func (f *fakeGrid) ListProducts(_ context.Context, _, _ int) ([]thegrid.Product, error) {
	return nil, nil
}

type fakeLlama struct {
	summaries []defillama.ProtocolSummary
	protocols map[string]*defillama.Protocol
}

func (f *fakeLlama) Protocols(_ context.Context) ([]defillama.ProtocolSummary, error) {
	return f.summaries, nil
}

func (f *fakeLlama) Protocol(_ context.Context, slug string) (*defillama.Protocol, error) {
	p, ok := f.protocols[slug]
	if !ok {
		return nil, errors.New("defillama: unexpected status 404")
	}
	return p, nil
}

type fakeGecko struct {
	hits      map[string][]coingecko.CoinSummary
	coins     map[string]*coingecko.Coin
	searchErr map[string]error // keyed by query
}

func (f *fakeGecko) Search(_ context.Context, query string) ([]coingecko.CoinSummary, error) {
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.hits[query], nil
}

func (f *fakeGecko) Coin(_ context.Context, id string) (*coingecko.Coin, error) {
	c, ok := f.coins[id]
	if !ok {
		return nil, errors.New("coingecko: unexpected status 404")
	}
	return c, nil
}

type fakeScanner struct {
	pages  map[string]string         // url -> text
	status map[string]webscan.Status // url -> probe status
	codes  map[string]int
}

func (f *fakeScanner) FetchText(_ context.Context, pageURL string) (string, error) {
	text, ok := f.pages[pageURL]
	if !ok {
		return "", errors.New("webscan: fetch failed")
	}
	return text, nil
}

func (f *fakeScanner) Probe(_ context.Context, pageURL string) (webscan.Status, int) {
	st, ok := f.status[pageURL]
	if !ok {
		return webscan.StatusError, 0
	}
	return st, f.codes[pageURL]
}

type fakeResearcher struct {
	assessments map[string]*airesearch.Assessment
	err         error
}

func (f *fakeResearcher) Assess(_ context.Context, brief airesearch.Brief) (*airesearch.Assessment, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.assessments[brief.Name]
	if !ok {
		return nil, errors.New("airesearch: no JSON object in response")
	}
	return a, nil
}
