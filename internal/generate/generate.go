// Package generate turns a validated request into one review article: one
// canonical prompt, one provider call, one spell audit.
package generate

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
	"github.com/TobiSchelling/reviewgen/internal/llm"
	"github.com/TobiSchelling/reviewgen/internal/spell"
)

// EmptyCompletion replaces the markdown when the provider answers with no text.
const EmptyCompletion = "Generation failed: no content returned by the language model."

// GenerationError wraps a failed provider call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string     { return "generating article: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error     { return e.Err }
func (e *GenerationError) Kind() apperr.Kind { return apperr.KindGeneration }

// Article is the orchestrator's result. SpellIssues is nil only when the
// audit could not run; a clean audit yields an empty slice.
type Article struct {
	Markdown        string        `json:"markdown"`
	SpellIssues     []spell.Issue `json:"spellIssues"`
	SpellcheckError string        `json:"spellcheckError,omitempty"`
	ImagePrompts    []string      `json:"imagePrompts,omitempty"`

	auditErr error
}

// AuditErr returns the audit failure, if any.
func (a *Article) AuditErr() error { return a.auditErr }

// AuditAvailable reports whether SpellIssues reflects a completed audit.
func (a *Article) AuditAvailable() bool { return a.auditErr == nil }

// Settings are the sampling parameters for the provider call.
type Settings struct {
	Temperature float64
	MaxTokens   int
}

// DefaultSettings favour factual consistency over variety.
func DefaultSettings() Settings {
	return Settings{Temperature: 0.4, MaxTokens: 1800}
}

// Orchestrator sequences validate, prompt, provider call and audit.
type Orchestrator struct {
	provider llm.Provider
	auditor  spell.Auditor
	settings Settings
}

// NewOrchestrator creates an Orchestrator. A nil auditor disables auditing.
func NewOrchestrator(provider llm.Provider, auditor spell.Auditor, settings Settings) *Orchestrator {
	if auditor == nil {
		auditor = spell.Disabled{}
	}
	def := DefaultSettings()
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = def.MaxTokens
	}
	if settings.Temperature < 0 {
		settings.Temperature = def.Temperature
	}
	return &Orchestrator{provider: provider, auditor: auditor, settings: settings}
}

// Generate runs one generation. Errors are *apperr.ValidationError, before
// any external call, or *GenerationError. An audit outage is reported on the
// returned Article, not as an error.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Article, error) {
	req, err := Validate(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := o.provider.Complete(ctx, llm.Completion{
		System:      SystemPrompt,
		Prompt:      BuildPrompt(req),
		Temperature: o.settings.Temperature,
		MaxTokens:   o.settings.MaxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("product_url", req.ProductURL).Msg("generation failed")
		return nil, &GenerationError{Err: err}
	}

	markdown := strings.TrimSpace(text)
	if markdown == "" {
		markdown = EmptyCompletion
	}
	article := &Article{Markdown: markdown, ImagePrompts: ImagePrompts(markdown)}

	issues, err := o.auditor.Audit(ctx, markdown)
	if err != nil {
		var aerr *spell.AuditError
		if !errors.As(err, &aerr) {
			aerr = &spell.AuditError{Err: err}
		}
		article.auditErr = aerr
		article.SpellcheckError = aerr.Error()
		log.Warn().Err(err).Msg("spell audit unavailable")
	} else {
		if issues == nil {
			issues = []spell.Issue{}
		}
		article.SpellIssues = issues
	}

	log.Info().
		Str("product_url", req.ProductURL).
		Int("chars", len(markdown)).
		Int("spell_issues", len(article.SpellIssues)).
		Bool("audit_available", article.AuditAvailable()).
		Dur("duration", time.Since(start)).
		Msg("article generated")
	return article, nil
}

var imagePromptRe = regexp.MustCompile(`(?i)\[IMAGE PROMPT:\s*([^\]]+?)\s*\]`)

// ImagePrompts returns the [IMAGE PROMPT: ...] marker texts in order.
func ImagePrompts(markdown string) []string {
	var prompts []string
	for _, m := range imagePromptRe.FindAllStringSubmatch(markdown, -1) {
		if p := strings.TrimSpace(m[1]); p != "" {
			prompts = append(prompts, p)
		}
	}
	return prompts
}

// FailedArticle is the renderable stand-in a caller shows when Generate
// returned an error. Its audit is marked unavailable.
func FailedArticle(err error) *Article {
	reason := &spell.AuditError{Err: errors.New("skipped because generation failed")}
	return &Article{
		Markdown:        "Generation failed: " + err.Error(),
		SpellcheckError: reason.Error(),
		auditErr:        reason,
	}
}
