package generate

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
	"github.com/TobiSchelling/reviewgen/internal/product"
)

// MaxCustomInstructions bounds the free-text directive, in characters.
const MaxCustomInstructions = 4000

// AffiliateLink is one platform/url pair to weave into the article.
type AffiliateLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// Request is everything needed to generate one review article.
type Request struct {
	ProductURL          string          `json:"productUrl"`
	GeoFocus            string          `json:"geoFocus,omitempty"`
	Locale              string          `json:"locale,omitempty"`
	Tone                string          `json:"tone,omitempty"`
	TargetKeywords      []string        `json:"targetKeywords,omitempty"`
	CompetitorURLs      []string        `json:"competitorUrls,omitempty"`
	AffiliateLinks      []AffiliateLink `json:"affiliateLinks,omitempty"`
	ReferenceData       *product.Record `json:"referenceData,omitempty"`
	CustomInstructions  string          `json:"customInstructions,omitempty"`
	IncludeImagePrompts bool            `json:"includeImagePrompts"`
}

// Validate returns a normalised copy of req, or a *apperr.ValidationError
// naming every offending field. The input is never modified.
func Validate(req Request) (Request, error) {
	verr := &apperr.ValidationError{}
	out := Request{
		ProductURL:          strings.TrimSpace(req.ProductURL),
		GeoFocus:            strings.TrimSpace(req.GeoFocus),
		Locale:              strings.TrimSpace(req.Locale),
		Tone:                strings.TrimSpace(req.Tone),
		TargetKeywords:      compact(req.TargetKeywords),
		CompetitorURLs:      compact(req.CompetitorURLs),
		ReferenceData:       normaliseReference(req.ReferenceData),
		CustomInstructions:  strings.TrimSpace(req.CustomInstructions),
		IncludeImagePrompts: req.IncludeImagePrompts,
	}

	switch {
	case out.ProductURL == "":
		verr.Add("productUrl", "is required")
	case !absoluteHTTP(out.ProductURL):
		verr.Add("productUrl", "must be an absolute http or https URL")
	}

	if out.Locale != "" {
		if _, err := language.Parse(out.Locale); err != nil {
			verr.Add("locale", "%q is not a valid BCP 47 language tag", out.Locale)
		}
	}

	for i, u := range out.CompetitorURLs {
		if !absoluteHTTP(u) {
			verr.Add("competitorUrls", "entry %d (%q) must be an absolute http or https URL", i, u)
		}
	}

	for _, link := range req.AffiliateLinks {
		link.Platform = strings.TrimSpace(link.Platform)
		link.URL = strings.TrimSpace(link.URL)
		if link.Platform == "" || link.URL == "" {
			continue
		}
		if !absoluteHTTP(link.URL) {
			verr.Add("affiliateLinks", "%s link %q must be an absolute http or https URL", link.Platform, link.URL)
			continue
		}
		out.AffiliateLinks = append(out.AffiliateLinks, link)
	}

	if n := utf8.RuneCountInString(out.CustomInstructions); n > MaxCustomInstructions {
		verr.Add("customInstructions", "is %d characters, limit is %d", n, MaxCustomInstructions)
	}

	if err := verr.OrNil(); err != nil {
		return Request{}, err
	}
	return out, nil
}

func absoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// compact trims entries and drops empty ones, keeping order and duplicates.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normaliseReference(r *product.Record) *product.Record {
	if r == nil {
		return nil
	}
	out := &product.Record{
		SourceURL:   strings.TrimSpace(r.SourceURL),
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Price:       strings.TrimSpace(r.Price),
		Breadcrumbs: compact(r.Breadcrumbs),
		Features:    compact(r.Features),
	}
	for _, s := range r.Technical {
		out.Technical.Set(s.Label, s.Value)
	}
	if out.Empty() {
		return nil
	}
	return out
}
