// Package extract turns one fetched product page into a product.Record.
//
// Extraction is heuristic and priority ordered: site-provided structured
// metadata (JSON-LD, microdata, product meta tags) is consulted first, then
// semantic markup (headings, price-labelled regions, breadcrumb navigation,
// feature lists, spec tables). Fields that cannot be derived are omitted.
// Only a page yielding no product signal at all is an error.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/reviewgen/internal/product"
)

// Config controls the single page fetch.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// DefaultConfig returns default extraction settings.
func DefaultConfig() Config {
	return Config{
		Timeout:      15 * time.Second,
		UserAgent:    "Mozilla/5.0 (compatible; reviewgen/1.0)",
		MaxBodyBytes: 5 << 20,
	}
}

// Extractor fetches product pages and derives records from them.
// It holds no per-call state and is safe for concurrent use.
type Extractor struct {
	cfg    Config
	client *http.Client
}

// New creates an Extractor. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client) *Extractor {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	return &Extractor{cfg: cfg, client: client}
}

// Extract fetches targetURL once and returns the derived record.
func (e *Extractor) Extract(ctx context.Context, targetURL string) (*product.Record, error) {
	start := time.Now()

	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("URL must be absolute http or https")
		}
		return nil, &ExtractionError{URL: targetURL, Reason: InvalidURL, Err: err}
	}

	p, err := e.fetch(ctx, u.String())
	if err != nil {
		log.Debug().Err(err).Str("url", targetURL).Msg("product fetch failed")
		return nil, err
	}

	rec, err := Parse(targetURL, p.body)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("url", targetURL).
		Str("final_url", p.finalURL).
		Strs("fields", rec.PopulatedFields()).
		Dur("duration", time.Since(start)).
		Msg("product extracted")
	return rec, nil
}

// Parse derives a record from already-fetched UTF-8 markup. sourceURL is
// recorded verbatim on the result.
func Parse(sourceURL string, r io.Reader) (*product.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ExtractionError{URL: sourceURL, Reason: Unparseable, Err: err}
	}

	// Structured data lives in script tags, so read it before they are stripped.
	sd := readStructured(doc)
	doc.Find("script,noscript,style,template,svg").Remove()

	rec := &product.Record{SourceURL: sourceURL}
	confident := false

	if title := firstNonEmpty(sd.title, metaContent(doc, "og:title", "twitter:title"), headingTitle(doc), clean(doc.Find("title").First().Text())); title != "" {
		rec.Title = title
		confident = true
	}

	if desc := firstNonEmpty(sd.description, metaContent(doc, "og:description", "description", "twitter:description")); desc != "" {
		rec.Description = desc
		confident = true
	} else {
		// Paragraph and readability descriptions are low confidence: they
		// exist on any page, so on their own they do not make a product.
		rec.Description = contentParagraph(doc)
		if rec.Description == "" {
			rec.Description = readabilityExcerpt(doc, sourceURL)
		}
	}

	if price := firstNonEmpty(sd.price, metaPrice(doc), regionPrice(doc)); price != "" {
		rec.Price = price
		confident = true
	}

	rec.Breadcrumbs = sd.breadcrumbs
	if len(rec.Breadcrumbs) == 0 {
		rec.Breadcrumbs = findBreadcrumbs(doc)
	}
	rec.Features = findFeatures(doc)

	for _, s := range sd.specs {
		rec.Technical.Set(s.Label, s.Value)
	}
	for _, s := range findSpecs(doc) {
		rec.Technical.Set(s.Label, s.Value)
	}

	if len(rec.Breadcrumbs) > 0 || len(rec.Features) > 0 || len(rec.Technical) > 0 {
		confident = true
	}

	if !confident {
		return nil, &ExtractionError{
			URL:    sourceURL,
			Reason: NotProduct,
			Err:    fmt.Errorf("no product signals found on page"),
		}
	}
	return rec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
