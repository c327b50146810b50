package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reviewgen/internal/config"
	"github.com/TobiSchelling/reviewgen/internal/dashboard"
	"github.com/TobiSchelling/reviewgen/internal/extract"
	"github.com/TobiSchelling/reviewgen/internal/generate"
	"github.com/TobiSchelling/reviewgen/internal/imagegen"
	"github.com/TobiSchelling/reviewgen/internal/llm"
	"github.com/TobiSchelling/reviewgen/internal/product"
	"github.com/TobiSchelling/reviewgen/internal/spell"
)

type mockExtractor struct {
	err error
}

func (m *mockExtractor) Extract(_ context.Context, url string) (*product.Record, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &product.Record{SourceURL: url, Title: "Widget X", Price: "R$ 10"}, nil
}

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	prompts  []string
}

func (m *mockProvider) Complete(_ context.Context, c llm.Completion) (string, error) {
	m.prompts = append(m.prompts, c.Prompt)
	return m.response, nil
}
func (m *mockProvider) IsConfigured() bool { return true }
func (m *mockProvider) Name() string       { return "mock" }

type cleanAuditor struct{}

func (cleanAuditor) Audit(context.Context, string) ([]spell.Issue, error) { return []spell.Issue{}, nil }

type mockSubmitter struct {
	prompts []string
}

func (m *mockSubmitter) Submit(_ context.Context, prompt, aspect string) (*imagegen.Job, error) {
	m.prompts = append(m.prompts, prompt)
	return &imagegen.Job{ID: "j", Prompt: prompt, AspectRatio: aspect, Status: "queued"}, nil
}

const articleWithImages = "# Widget X\n\n[IMAGE PROMPT: widget on an oak desk at dawn]\n\nText.\n\n[IMAGE PROMPT: close-up of the widget dial]\n"

func newPipeline(ex dashboard.Extractor, provider *mockProvider, sub *mockSubmitter, opts Options) *Pipeline {
	ctrl := dashboard.New(dashboard.Deps{
		Extractor: ex,
		Generator: generate.NewOrchestrator(provider, cleanAuditor{}, generate.DefaultSettings()),
		Auditor:   cleanAuditor{},
		Images:    sub,
	})
	return New(config.Default(), ctrl, opts)
}

func TestRunAllSteps(t *testing.T) {
	provider := &mockProvider{response: articleWithImages}
	sub := &mockSubmitter{}
	p := newPipeline(&mockExtractor{}, provider, sub, Options{SubmitImages: true})

	r := p.Run(context.Background(), "https://shop.example/w", dashboard.NewForm())
	require.False(t, r.Failed(), "%+v", r.Steps)

	names := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"Extract", "Generate", "Spellcheck", "Images"}, names)
	assert.Equal(t, dashboard.NoSpellingConcerns, r.Steps[2].Summary)
	assert.Contains(t, provider.prompts[0], "Title: Widget X")
	assert.Equal(t, []string{"widget on an oak desk at dawn", "close-up of the widget dial"}, sub.prompts)
	assert.Len(t, r.Images, 2)
}

func TestRunContinuesWithoutReference(t *testing.T) {
	provider := &mockProvider{response: "# Widget"}
	p := newPipeline(&mockExtractor{err: &extract.ExtractionError{Reason: extract.Timeout, Err: errors.New("deadline")}}, provider, &mockSubmitter{}, Options{})

	r := p.Run(context.Background(), "https://shop.example/w", dashboard.NewForm())
	require.Len(t, r.Steps, 3)
	assert.Error(t, r.Steps[0].Err)
	assert.NoError(t, r.Steps[1].Err)
	assert.NotContains(t, provider.prompts[0], "Reference data")
	assert.Equal(t, "# Widget", r.Article.Markdown)
}

func TestRunLimitsImages(t *testing.T) {
	sub := &mockSubmitter{}
	p := newPipeline(&mockExtractor{}, &mockProvider{response: articleWithImages}, sub, Options{SubmitImages: true, MaxImages: 1})

	p.Run(context.Background(), "https://shop.example/w", dashboard.NewForm())
	assert.Len(t, sub.prompts, 1)
}

func TestDryRunMakesNoCalls(t *testing.T) {
	provider := &mockProvider{response: "# never"}
	sub := &mockSubmitter{}
	p := newPipeline(&mockExtractor{}, provider, sub, Options{SubmitImages: true})

	r := p.DryRun("https://shop.example/w", dashboard.NewForm())
	assert.Empty(t, provider.prompts)
	assert.Empty(t, sub.prompts)
	for _, s := range r.Steps {
		assert.True(t, strings.HasPrefix(s.Summary, "[dry-run]"), s.Summary)
	}
}
