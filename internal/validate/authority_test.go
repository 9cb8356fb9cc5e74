package validate

import (
	"testing"

	"github.com/ppiankov/proofpulse/internal/model"
)

func TestAuthorityClassifier_Classify(t *testing.T) {
	classifier := NewAuthorityClassifier(
		[]string{"ons.gov.uk", "doi.org", " WHO.int "},
		[]string{"www.reuters.com", "wikipedia.org"},
	)

	tests := []struct {
		url      string
		expected model.AuthorityTier
		desc     string
	}{
		{"https://doi.org/10.1234/example", model.TierPrimary, "primary domain exact match"},
		{"https://www.ons.gov.uk/economy", model.TierPrimary, "primary domain with subdomain"},
		{"https://www.who.int/news", model.TierPrimary, "domain list is normalized"},
		{"https://reuters.com/markets", model.TierSecondary, "www prefix stripped from config"},
		{"https://en.wikipedia.org/wiki/Inflation", model.TierSecondary, "secondary subdomain"},
		{"https://www.bls.gov/cpi/", model.TierPrimary, ".gov suffix"},
		{"https://stanford.edu/research", model.TierPrimary, ".edu suffix"},
		{"https://www.ox.ac.uk/news", model.TierPrimary, ".ac.uk suffix"},
		{"https://DOI.ORG:443/10.1/x", model.TierPrimary, "host case and port ignored"},
		{"https://someblog.example.com/post", model.TierTertiary, "unknown host"},
		{"https://notdoi.org/x", model.TierTertiary, "suffix must match on a label boundary"},
		{"not a url", model.TierTertiary, "no host"},
		{"", model.TierTertiary, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := classifier.Classify(tt.url); got != tt.expected {
				t.Errorf("Classify(%q) = %s, want %s", tt.url, got, tt.expected)
			}
		})
	}
}

func TestAuthorityClassifier_DefaultConfig(t *testing.T) {
	cfg := model.DefaultConfig().Sources
	classifier := NewAuthorityClassifier(cfg.PrimaryDomains, cfg.SecondaryDomains)

	if got := classifier.Classify("https://www.nature.com/articles/x"); got != model.TierPrimary {
		t.Errorf("nature.com = %s, want primary", got)
	}
	if got := classifier.Classify("https://apnews.com/article/x"); got != model.TierSecondary {
		t.Errorf("apnews.com = %s, want secondary", got)
	}
}
