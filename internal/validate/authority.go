package validate

import (
	"net/url"
	"strings"

	"github.com/ppiankov/proofpulse/internal/model"
)

// institutionalSuffixes mark hosts treated as primary without configuration
var institutionalSuffixes = []string{".gov", ".mil", ".edu", ".int", ".gov.uk", ".ac.uk"}

// AuthorityClassifier classifies source URLs into authority tiers
type AuthorityClassifier struct {
	primary   []string
	secondary []string
}

// NewAuthorityClassifier creates a classifier from configured domain lists.
// A listed domain also matches its subdomains.
func NewAuthorityClassifier(primary, secondary []string) *AuthorityClassifier {
	return &AuthorityClassifier{
		primary:   normalizeDomains(primary),
		secondary: normalizeDomains(secondary),
	}
}

// Classify returns the tier for rawURL; unparseable URLs are tertiary
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return model.TierTertiary
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return model.TierTertiary
	}

	if matchDomain(host, a.primary) {
		return model.TierPrimary
	}
	if matchDomain(host, a.secondary) {
		return model.TierSecondary
	}
	for _, suffix := range institutionalSuffixes {
		if strings.HasSuffix(host, suffix) {
			return model.TierPrimary
		}
	}
	return model.TierTertiary
}

func matchDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(strings.Trim(d, "."), "www.")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
