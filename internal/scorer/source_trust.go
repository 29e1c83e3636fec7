package scorer

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nutrition-enrichment/internal/models"
)

// SourceTrust classifies a record's data source into a trust tier.
// Known source names come from a YAML registry so new providers can be
// added without a rebuild.
type SourceTrust struct {
	authoritative map[string]struct{}
	thirdParty    map[string]struct{}
}

type sourceRegistry struct {
	Authoritative []string `yaml:"authoritative"`
	ThirdParty    []string `yaml:"third_party"`
}

// Built-in registry used when no sources file is configured.
var defaultRegistry = sourceRegistry{
	Authoritative: []string{"usda", "ciqual", "mccance", "efsa"},
	ThirdParty:    []string{"openfoodfacts", "nutritionix", "fatsecret", "edamam"},
}

// NewSourceTrust loads the registry from path. An empty path or a missing
// file falls back to built-in defaults; a malformed file is an error.
func NewSourceTrust(path string) (*SourceTrust, error) {
	reg := defaultRegistry
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			var loaded sourceRegistry
			if uerr := yaml.Unmarshal(b, &loaded); uerr != nil {
				return nil, uerr
			}
			reg = loaded
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return newSourceTrustFrom(reg), nil
}

func newSourceTrustFrom(reg sourceRegistry) *SourceTrust {
	st := &SourceTrust{
		authoritative: make(map[string]struct{}, len(reg.Authoritative)),
		thirdParty:    make(map[string]struct{}, len(reg.ThirdParty)),
	}
	for _, s := range reg.Authoritative {
		st.authoritative[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	for _, s := range reg.ThirdParty {
		st.thirdParty[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return st
}

// Classify maps a raw source string to a trust tier. Unknown or empty
// sources are unverified.
func (st *SourceTrust) Classify(source *string) string {
	if source == nil {
		return models.SourceUnverified
	}
	key := strings.ToLower(strings.TrimSpace(*source))
	switch key {
	case "":
		return models.SourceUnverified
	case models.SourceAuthoritative, models.SourceThirdParty, models.SourceUnverified:
		// already a tier tag
		return key
	}
	if _, ok := st.authoritative[key]; ok {
		return models.SourceAuthoritative
	}
	if _, ok := st.thirdParty[key]; ok {
		return models.SourceThirdParty
	}
	return models.SourceUnverified
}

// Multiplier returns the share of the source budget a tier earns.
func (st *SourceTrust) Multiplier(tier string) float64 {
	switch tier {
	case models.SourceAuthoritative:
		return 1.0
	case models.SourceThirdParty:
		return 0.8
	default:
		return 0.4
	}
}
