// Package dashboard sequences the user-initiated calls of the review
// workflow: scrape, edit, generate, audit and image submission. It owns the
// caller-side state the core refuses to hold, namely the image log and the
// optional history.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
	"github.com/TobiSchelling/reviewgen/internal/extract"
	"github.com/TobiSchelling/reviewgen/internal/generate"
	"github.com/TobiSchelling/reviewgen/internal/imagegen"
	"github.com/TobiSchelling/reviewgen/internal/product"
	"github.com/TobiSchelling/reviewgen/internal/spell"
)

// Texts shown by the spell-check panel.
const (
	NoSpellingConcerns = "No spelling concerns flagged."
	NoSuggestions      = "No suggestions available."
	SpellUnavailable   = "Spell check unavailable"
)

type Extractor interface {
	Extract(ctx context.Context, url string) (*product.Record, error)
}

type Generator interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Article, error)
}

// History receives finished extractions and articles. *database.DB
// satisfies it.
type History interface {
	InsertExtraction(url string, recordJSON, errorKind, errorMessage *string) (string, error)
	InsertArticle(productURL, requestJSON, markdown string, spellIssuesJSON, spellcheckError *string) (string, error)
}

// Deps are the collaborators of a Controller. ImageLog defaults to a
// MemoryLog; History is optional.
type Deps struct {
	Extractor Extractor
	Generator Generator
	Auditor   spell.Auditor
	Images    imagegen.Submitter
	ImageLog  ImageLog
	History   History
}

// Controller is safe for concurrent use.
type Controller struct {
	extractor Extractor
	generator Generator
	auditor   spell.Auditor
	images    imagegen.Submitter
	imageLog  ImageLog
	history   History
}

func New(d Deps) *Controller {
	if d.ImageLog == nil {
		d.ImageLog = NewMemoryLog()
	}
	if d.Auditor == nil {
		d.Auditor = spell.Disabled{}
	}
	return &Controller{
		extractor: d.Extractor,
		generator: d.Generator,
		auditor:   d.Auditor,
		images:    d.Images,
		imageLog:  d.ImageLog,
		history:   d.History,
	}
}

// Scrape extracts one product page.
func (c *Controller) Scrape(ctx context.Context, url string) (*product.Record, error) {
	rec, err := c.extractor.Extract(ctx, url)
	if c.history != nil {
		c.recordExtraction(url, rec, err)
	}
	return rec, err
}

func (c *Controller) recordExtraction(url string, rec *product.Record, xerr error) {
	var recordJSON, kind, message *string
	if xerr != nil {
		k := string(apperr.KindOf(xerr))
		var ee *extract.ExtractionError
		if errors.As(xerr, &ee) {
			k = string(ee.Reason)
		}
		m := xerr.Error()
		kind, message = &k, &m
	} else if data, err := json.Marshal(rec); err == nil {
		s := string(data)
		recordJSON = &s
	}
	if _, err := c.history.InsertExtraction(url, recordJSON, kind, message); err != nil {
		log.Warn().Err(err).Msg("recording extraction history")
	}
}

// Generate builds a request from the form and runs the orchestrator. The
// returned article is never nil: on failure it carries the
// "Generation failed: ..." text alongside the error.
func (c *Controller) Generate(ctx context.Context, f Form) (*generate.Article, error) {
	return c.GenerateRequest(ctx, f.Request())
}

// GenerateRequest is Generate for a caller that already holds a request.
func (c *Controller) GenerateRequest(ctx context.Context, req generate.Request) (*generate.Article, error) {
	article, err := c.generator.Generate(ctx, req)
	if err != nil {
		return generate.FailedArticle(err), err
	}
	if c.history != nil {
		c.recordArticle(req, article)
	}
	return article, nil
}

func (c *Controller) recordArticle(req generate.Request, a *generate.Article) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		log.Warn().Err(err).Msg("encoding request for history")
		return
	}
	var issuesJSON, auditErr *string
	if a.AuditAvailable() {
		data, _ := json.Marshal(a.SpellIssues)
		s := string(data)
		issuesJSON = &s
	} else {
		s := a.SpellcheckError
		auditErr = &s
	}
	if _, err := c.history.InsertArticle(req.ProductURL, string(reqJSON), a.Markdown, issuesJSON, auditErr); err != nil {
		log.Warn().Err(err).Msg("recording article history")
	}
}

// Spellcheck re-audits edited markdown.
func (c *Controller) Spellcheck(ctx context.Context, markdown string) ([]spell.Issue, error) {
	return c.auditor.Audit(ctx, markdown)
}

// SubmitImage validates the input, logs a Queued entry, submits it and
// updates the entry with the provider's answer or the failure. Invalid
// input is rejected without touching the log.
func (c *Controller) SubmitImage(ctx context.Context, prompt, aspectRatio string) (ImageEntry, error) {
	prompt, aspectRatio, err := imagegen.Validate(prompt, aspectRatio)
	if err != nil {
		return ImageEntry{}, err
	}

	entry := newEntry(prompt, aspectRatio)
	if err := c.imageLog.Add(entry); err != nil {
		log.Warn().Err(err).Msg("adding image log entry")
	}

	job, subErr := c.images.Submit(ctx, prompt, aspectRatio)
	if subErr != nil {
		entry.Status = StatusFailed
		entry.Error = subErr.Error()
	} else {
		entry.ProviderJobID = job.ID
		entry.Status = job.Status
		entry.ImageURL = job.ImageURL
		entry.Error = job.Error
	}

	if err := c.imageLog.Update(entry); err != nil {
		log.Warn().Err(err).Str("entry", entry.ID).Msg("updating image log entry")
	}
	return entry, subErr
}

// Images returns the image log, newest first.
func (c *Controller) Images() ([]ImageEntry, error) {
	return c.imageLog.List()
}
