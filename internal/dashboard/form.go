package dashboard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TobiSchelling/reviewgen/internal/generate"
	"github.com/TobiSchelling/reviewgen/internal/product"
)

// PresetPlatforms are the affiliate platforms offered in forms and help text.
var PresetPlatforms = []string{
	"Amazon",
	"Mercado Livre",
	"Shopee",
	"Magalu",
	"Clickbank",
	"Hotmart",
	"Eduzz",
	"Kiwify",
	"Braip",
}

// DefaultAspectRatio is preselected for image submissions.
const DefaultAspectRatio = "16:9"

// Form is the raw directive input a user fills in before generating.
type Form struct {
	ProductURL          string                   `json:"productUrl"`
	GeoFocus            string                   `json:"geoFocus"`
	Locale              string                   `json:"locale"`
	Tone                string                   `json:"tone"`
	Keywords            string                   `json:"keywords"`
	Competitors         string                   `json:"competitors"`
	Affiliates          []generate.AffiliateLink `json:"affiliates"`
	CustomInstructions  string                   `json:"customInstructions"`
	IncludeImagePrompts bool                     `json:"includeImagePrompts"`
	Reference           *product.Record          `json:"reference,omitempty"`
}

// NewForm returns a form with the dashboard's starting values.
func NewForm() Form {
	return Form{
		GeoFocus:            "Brazil",
		Locale:              "pt-BR",
		Tone:                "expert yet approachable journalist with transparent tone",
		Keywords:            "melhor review, análise completa",
		IncludeImagePrompts: true,
	}
}

var competitorSepRe = regexp.MustCompile(`[\n,]`)

// SplitKeywords splits a comma-separated keyword field.
func SplitKeywords(s string) []string {
	return nonEmpty(strings.Split(s, ","))
}

// SplitCompetitors splits competitor URLs on commas or newlines.
func SplitCompetitors(s string) []string {
	return nonEmpty(competitorSepRe.Split(s, -1))
}

// CompleteAffiliates keeps only pairs with both platform and url set.
func CompleteAffiliates(links []generate.AffiliateLink) []generate.AffiliateLink {
	var out []generate.AffiliateLink
	for _, l := range links {
		l.Platform = strings.TrimSpace(l.Platform)
		l.URL = strings.TrimSpace(l.URL)
		if l.Platform != "" && l.URL != "" {
			out = append(out, l)
		}
	}
	return out
}

// ParseAffiliate parses a "Platform=URL" pair.
func ParseAffiliate(s string) (generate.AffiliateLink, error) {
	platform, url, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(platform) == "" || strings.TrimSpace(url) == "" {
		return generate.AffiliateLink{}, fmt.Errorf("affiliate %q: want Platform=URL", s)
	}
	return generate.AffiliateLink{Platform: strings.TrimSpace(platform), URL: strings.TrimSpace(url)}, nil
}

// Request converts the form into a generation request. The reference record
// is copied so later edits to the form do not leak into the request.
func (f Form) Request() generate.Request {
	return generate.Request{
		ProductURL:          strings.TrimSpace(f.ProductURL),
		GeoFocus:            f.GeoFocus,
		Locale:              f.Locale,
		Tone:                f.Tone,
		TargetKeywords:      SplitKeywords(f.Keywords),
		CompetitorURLs:      SplitCompetitors(f.Competitors),
		AffiliateLinks:      CompleteAffiliates(f.Affiliates),
		ReferenceData:       f.Reference.Clone(),
		CustomInstructions:  f.CustomInstructions,
		IncludeImagePrompts: f.IncludeImagePrompts,
	}
}

func nonEmpty(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
