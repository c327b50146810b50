package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/reviewgen/internal/config"
	"github.com/TobiSchelling/reviewgen/internal/dashboard"
	"github.com/TobiSchelling/reviewgen/internal/generate"
	"github.com/TobiSchelling/reviewgen/internal/product"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	URL     string
	Record  *product.Record
	Article *generate.Article
	Images  []dashboard.ImageEntry
	Steps   []StepResult
}

// Failed reports whether any step ended in error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Options tune a run.
type Options struct {
	SubmitImages bool
	AspectRatio  string
	MaxImages    int
}

// Pipeline runs extract, generate, audit and image submission for one URL.
type Pipeline struct {
	cfg  *config.Config
	ctrl *dashboard.Controller
	opts Options
}

// New creates a new pipeline.
func New(cfg *config.Config, ctrl *dashboard.Controller, opts Options) *Pipeline {
	if opts.AspectRatio == "" {
		opts.AspectRatio = cfg.Images.DefaultAspectRatio
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 4
	}
	return &Pipeline{cfg: cfg, ctrl: ctrl, opts: opts}
}

// Run executes the pipeline. form supplies the directives; its ProductURL
// and Reference are replaced by url and the extracted record.
func (p *Pipeline) Run(ctx context.Context, url string, form dashboard.Form) *Result {
	r := &Result{URL: url}

	// Step 1: Extract. A failure leaves generation without reference data.
	step := p.runExtract(ctx, r)
	r.Steps = append(r.Steps, step)

	// Step 2: Generate
	form.ProductURL = url
	form.Reference = r.Record
	step = p.runGenerate(ctx, r, form)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 3: Spell audit, already run by the orchestrator
	r.Steps = append(r.Steps, auditStep(r.Article))

	// Step 4: Images
	if p.opts.SubmitImages {
		r.Steps = append(r.Steps, p.runImages(ctx, r))
	}

	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun(url string, form dashboard.Form) *Result {
	r := &Result{URL: url}
	gen := p.cfg.Generation

	r.Steps = append(r.Steps, StepResult{
		Name:    "Extract",
		Summary: fmt.Sprintf("[dry-run] would fetch %s once (timeout %s)", url, p.cfg.Extraction.Timeout()),
	})
	r.Steps = append(r.Steps, StepResult{
		Name: "Generate",
		Summary: fmt.Sprintf("[dry-run] would call %s model %s (temperature %.1f, max %d tokens) with %d keywords and %d affiliate links",
			gen.Provider, gen.Model, gen.Temperature, gen.MaxTokens,
			len(dashboard.SplitKeywords(form.Keywords)), len(dashboard.CompleteAffiliates(form.Affiliates))),
	})
	if p.cfg.Spellcheck.Enabled {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Spellcheck",
			Summary: fmt.Sprintf("[dry-run] would audit via %s (%s)", p.cfg.Spellcheck.Endpoint, p.cfg.Spellcheck.Language),
		})
	} else {
		r.Steps = append(r.Steps, StepResult{Name: "Spellcheck", Summary: "[dry-run] spell check disabled"})
	}
	if p.opts.SubmitImages {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Images",
			Summary: fmt.Sprintf("[dry-run] would submit up to %d image prompts to %s at %s", p.opts.MaxImages, p.cfg.Images.Endpoint, p.opts.AspectRatio),
		})
	}
	return r
}

func (p *Pipeline) runExtract(ctx context.Context, r *Result) StepResult {
	log.Info().Str("url", r.URL).Msg("step 1: extracting product")
	rec, err := p.ctrl.Scrape(ctx, r.URL)
	if err != nil {
		return StepResult{Name: "Extract", Err: err}
	}
	r.Record = rec
	return StepResult{
		Name:    "Extract",
		Summary: fmt.Sprintf("Extracted %d fields: %v", len(rec.PopulatedFields()), rec.PopulatedFields()),
	}
}

func (p *Pipeline) runGenerate(ctx context.Context, r *Result, form dashboard.Form) StepResult {
	log.Info().Msg("step 2: generating article")
	article, err := p.ctrl.Generate(ctx, form)
	r.Article = article
	if err != nil {
		return StepResult{Name: "Generate", Err: err}
	}
	return StepResult{
		Name:    "Generate",
		Summary: fmt.Sprintf("Generated %d characters with %d image prompts", len(article.Markdown), len(article.ImagePrompts)),
	}
}

func auditStep(a *generate.Article) StepResult {
	if !a.AuditAvailable() {
		return StepResult{Name: "Spellcheck", Err: a.AuditErr()}
	}
	if len(a.SpellIssues) == 0 {
		return StepResult{Name: "Spellcheck", Summary: dashboard.NoSpellingConcerns}
	}
	return StepResult{Name: "Spellcheck", Summary: fmt.Sprintf("%d spelling issues flagged", len(a.SpellIssues))}
}

func (p *Pipeline) runImages(ctx context.Context, r *Result) StepResult {
	log.Info().Msg("step 4: submitting image prompts")
	prompts := r.Article.ImagePrompts
	if len(prompts) > p.opts.MaxImages {
		prompts = prompts[:p.opts.MaxImages]
	}

	var failed int
	var lastErr error
	for _, prompt := range prompts {
		entry, err := p.ctrl.SubmitImage(ctx, prompt, p.opts.AspectRatio)
		if err != nil {
			failed++
			lastErr = err
			log.Warn().Err(err).Msg("image submission failed")
			if entry.ID == "" {
				continue
			}
		}
		r.Images = append(r.Images, entry)
	}

	step := StepResult{
		Name:    "Images",
		Summary: fmt.Sprintf("Submitted %d image prompts, %d failed", len(prompts)-failed, failed),
	}
	if failed > 0 && failed == len(prompts) {
		step.Err = lastErr
	}
	return step
}
