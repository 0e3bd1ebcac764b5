package thegrid

// Profile is one registry profile: the public identity of a project.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	Root     *Root     `json:"root,omitempty"`
	URLs     []URL     `json:"urls,omitempty"`
	Products []Product `json:"products,omitempty"`
	Socials  []Social  `json:"socials,omitempty"`

	DescriptionShort string `json:"descriptionShort,omitempty"`
}

// Root is the registry's stable anchor for a project. Profiles and products
// hang off a root; the root id is what downstream sheets reference.
type Root struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// URL is one link attached to a profile or product.
type URL struct {
	URL  string `json:"url"`
	Type string `json:"urlType,omitempty"`
}

// Product is one offering under a profile, with its supported assets.
type Product struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URLMain string `json:"urlMain,omitempty"`

	Root   *Root   `json:"root,omitempty"`
	Assets []Asset `json:"supportedAssets,omitempty"`
}

// Asset is a token a product supports.
type Asset struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// Social is one social account attached to a profile.
type Social struct {
	URL  string `json:"url"`
	Type string `json:"socialType,omitempty"`
}

// MainURL returns the profile's primary website, or "" when none is listed.
func (p *Profile) MainURL() string {
	for _, u := range p.URLs {
		if u.Type == "main" || u.Type == "website" {
			return u.URL
		}
	}
	if len(p.URLs) > 0 {
		return p.URLs[0].URL
	}
	for _, prod := range p.Products {
		if prod.URLMain != "" {
			return prod.URLMain
		}
	}
	return ""
}

// SupportsAsset reports whether any product under the profile lists an asset
// whose name or ticker is in aliases.
func (p *Profile) SupportsAsset(aliases map[string]struct{}) bool {
	for _, prod := range p.Products {
		for _, a := range prod.Assets {
			if _, ok := aliases[a.Ticker]; ok {
				return true
			}
			if _, ok := aliases[a.Name]; ok {
				return true
			}
		}
	}
	return false
}
