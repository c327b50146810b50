package generate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
	"github.com/TobiSchelling/reviewgen/internal/llm"
	"github.com/TobiSchelling/reviewgen/internal/product"
	"github.com/TobiSchelling/reviewgen/internal/spell"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	calls    []llm.Completion
}

func (m *mockProvider) Complete(_ context.Context, c llm.Completion) (string, error) {
	m.calls = append(m.calls, c)
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }
func (m *mockProvider) Name() string       { return "mock" }

// mockAuditor implements spell.Auditor for testing.
type mockAuditor struct {
	issues []spell.Issue
	err    error
	texts  []string
}

func (m *mockAuditor) Audit(_ context.Context, text string) ([]spell.Issue, error) {
	m.texts = append(m.texts, text)
	return m.issues, m.err
}

func brazilRequest() Request {
	return Request{
		ProductURL:          "https://example.com/p/1",
		GeoFocus:            "Brazil",
		Locale:              "pt-BR",
		Tone:                "expert",
		TargetKeywords:      []string{"melhor review"},
		CompetitorURLs:      []string{},
		AffiliateLinks:      []AffiliateLink{{Platform: "Amazon", URL: "https://amzn.to/x"}},
		IncludeImagePrompts: false,
		ReferenceData:       &product.Record{Title: "Widget X"},
	}
}

func TestGenerateBrazilScenario(t *testing.T) {
	provider := &mockProvider{response: "## Widget X Review"}
	auditor := &mockAuditor{issues: []spell.Issue{}}
	o := NewOrchestrator(provider, auditor, DefaultSettings())

	article, err := o.Generate(context.Background(), brazilRequest())
	require.NoError(t, err)
	assert.Equal(t, "## Widget X Review", article.Markdown)
	assert.Contains(t, article.Markdown, "Widget X")
	assert.NotNil(t, article.SpellIssues)
	assert.Empty(t, article.SpellIssues)
	assert.NoError(t, article.AuditErr())

	require.Len(t, provider.calls, 1)
	call := provider.calls[0]
	assert.Equal(t, SystemPrompt, call.System)
	assert.Equal(t, 0.4, call.Temperature)
	assert.Equal(t, 1800, call.MaxTokens)
	assert.Contains(t, call.Prompt, "- Amazon: https://amzn.to/x")
	assert.Contains(t, call.Prompt, "melhor review")
	assert.Contains(t, call.Prompt, "Title: Widget X")
	assert.NotContains(t, call.Prompt, "[IMAGE PROMPT:")
	assert.Equal(t, []string{"## Widget X Review"}, auditor.texts)
}

func TestPromptContainsEveryInput(t *testing.T) {
	req := Request{
		ProductURL:     "https://shop.example/widget",
		TargetKeywords: []string{"best widget", " widget review ", ""},
		CompetitorURLs: []string{"https://rival.example/a", "  "},
		AffiliateLinks: []AffiliateLink{
			{Platform: "Amazon", URL: "https://amzn.to/x"},
			{Platform: "Shopee", URL: "https://shope.ee/y"},
			{Platform: "", URL: "https://dropped.example"},
		},
		ReferenceData: &product.Record{
			Title:       "Widget X",
			Description: "Compact widget",
			Price:       "R$ 1.299,90",
			Breadcrumbs: []string{"Home", "Tools"},
			Features:    []string{"Aluminium body"},
			Technical:   product.SpecTable{{Label: "Weight", Value: "250 g"}},
		},
		CustomInstructions:  "Mention the warranty.",
		IncludeImagePrompts: true,
	}
	valid, err := Validate(req)
	require.NoError(t, err)
	prompt := BuildPrompt(valid)

	for _, want := range []string{
		"best widget", "widget review", "https://rival.example/a",
		"- Amazon: https://amzn.to/x", "- Shopee: https://shope.ee/y",
		"Widget X", "Compact widget", "R$ 1.299,90", "Home › Tools",
		"- Aluminium body", "- Weight: 250 g", "[IMAGE PROMPT:",
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, "dropped.example")
	assert.True(t, strings.HasSuffix(prompt, "Additional instructions:\nMention the warranty."))
}

func TestPromptSectionOrder(t *testing.T) {
	valid, err := Validate(Request{
		ProductURL:          "https://shop.example/widget",
		GeoFocus:            "Portugal",
		TargetKeywords:      []string{"kw"},
		CompetitorURLs:      []string{"https://rival.example"},
		AffiliateLinks:      []AffiliateLink{{Platform: "Amazon", URL: "https://amzn.to/x"}},
		ReferenceData:       &product.Record{Title: "Widget X"},
		CustomInstructions:  "Last words.",
		IncludeImagePrompts: true,
	})
	require.NoError(t, err)
	prompt := BuildPrompt(valid)

	markers := []string{
		"Audience geo focus", "Product URL:", "Reference data", "Target keywords",
		"Competitor pages", "Affiliate links", "Structure requirements", "Image prompts", "Additional instructions",
	}
	prev := -1
	for _, m := range markers {
		idx := strings.Index(prompt, m)
		require.GreaterOrEqual(t, idx, 0, m)
		assert.Greater(t, idx, prev, m)
		prev = idx
	}
}

func TestPromptOmitsAbsentFields(t *testing.T) {
	valid, err := Validate(Request{
		ProductURL:    "https://shop.example/widget",
		ReferenceData: &product.Record{Title: "Widget X", Price: "  "},
	})
	require.NoError(t, err)
	prompt := BuildPrompt(valid)

	for _, bad := range []string{"undefined", "null", "unknown", "Price:", "Description:", "Features:", "Tone:", "Target keywords"} {
		assert.NotContains(t, prompt, bad)
	}

	noRef, err := Validate(Request{ProductURL: "https://shop.example/widget", ReferenceData: &product.Record{}})
	require.NoError(t, err)
	assert.NotContains(t, BuildPrompt(noRef), "Reference data")
}

func TestGenerateIdempotent(t *testing.T) {
	provider := &mockProvider{response: "  # Fixed article\n\n[IMAGE PROMPT: widget on a desk]\n"}
	o := NewOrchestrator(provider, &mockAuditor{issues: []spell.Issue{}}, DefaultSettings())

	a1, err := o.Generate(context.Background(), brazilRequest())
	require.NoError(t, err)
	a2, err := o.Generate(context.Background(), brazilRequest())
	require.NoError(t, err)

	assert.Equal(t, a1.Markdown, a2.Markdown)
	assert.Equal(t, provider.calls[0].Prompt, provider.calls[1].Prompt)
	assert.Equal(t, []string{"widget on a desk"}, a1.ImagePrompts)
}

func TestGenerateEmptyCompletionPlaceholder(t *testing.T) {
	o := NewOrchestrator(&mockProvider{response: " \n\t"}, &mockAuditor{}, DefaultSettings())
	article, err := o.Generate(context.Background(), brazilRequest())
	require.NoError(t, err)
	assert.Equal(t, EmptyCompletion, article.Markdown)
}

func TestGenerateProviderFailure(t *testing.T) {
	o := NewOrchestrator(&mockProvider{err: errors.New("connection reset")}, &mockAuditor{}, DefaultSettings())
	article, err := o.Generate(context.Background(), brazilRequest())
	assert.Nil(t, article)

	var gerr *GenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, apperr.KindGeneration, apperr.KindOf(err))
}

func TestGenerateAuditOutageDistinctFromClean(t *testing.T) {
	clean := NewOrchestrator(&mockProvider{response: "# ok"}, &mockAuditor{issues: []spell.Issue{}}, DefaultSettings())
	down := NewOrchestrator(&mockProvider{response: "# ok"}, &mockAuditor{err: errors.New("503")}, DefaultSettings())

	good, err := clean.Generate(context.Background(), brazilRequest())
	require.NoError(t, err)
	bad, err := down.Generate(context.Background(), brazilRequest())
	require.NoError(t, err)

	assert.True(t, good.AuditAvailable())
	assert.False(t, bad.AuditAvailable())
	assert.Nil(t, bad.SpellIssues)
	assert.NotEmpty(t, bad.SpellcheckError)

	var aerr *spell.AuditError
	assert.True(t, errors.As(bad.AuditErr(), &aerr))

	goodJSON, _ := json.Marshal(good)
	badJSON, _ := json.Marshal(bad)
	assert.Contains(t, string(goodJSON), `"spellIssues":[]`)
	assert.Contains(t, string(badJSON), `"spellIssues":null`)
}

func TestValidateRejectsWithoutCalling(t *testing.T) {
	provider := &mockProvider{response: "# never"}
	o := NewOrchestrator(provider, &mockAuditor{}, DefaultSettings())

	_, err := o.Generate(context.Background(), Request{
		ProductURL:         "example.com/no-scheme",
		Locale:             "not a locale!!",
		CompetitorURLs:     []string{"ftp://rival.example"},
		AffiliateLinks:     []AffiliateLink{{Platform: "Amazon", URL: "amzn/x"}},
		CustomInstructions: strings.Repeat("x", MaxCustomInstructions+1),
	})
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"productUrl", "locale", "competitorUrls", "affiliateLinks", "customInstructions"}, verr.FieldNames())
	assert.Empty(t, provider.calls)
}

func TestValidateMissingProductURL(t *testing.T) {
	_, err := Validate(Request{})
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"productUrl"}, verr.FieldNames())
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	req := Request{
		ProductURL:     " https://shop.example/w ",
		TargetKeywords: []string{" a ", ""},
		ReferenceData:  &product.Record{Title: " Widget "},
	}
	out, err := Validate(req)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/w", out.ProductURL)
	assert.Equal(t, []string{"a"}, out.TargetKeywords)
	assert.Equal(t, "Widget", out.ReferenceData.Title)
	assert.Equal(t, " Widget ", req.ReferenceData.Title)
	assert.Equal(t, []string{" a ", ""}, req.TargetKeywords)
}

func TestRequestIgnoresUnknownFields(t *testing.T) {
	var req Request
	err := json.Unmarshal([]byte(`{"productUrl":"https://x.example","extra":42,"includeImagePrompts":true,"referenceData":{"title":"T","technical":{"Weight":"1 kg"}}}`), &req)
	require.NoError(t, err)
	assert.True(t, req.IncludeImagePrompts)
	v, ok := req.ReferenceData.Technical.Get("weight")
	assert.True(t, ok)
	assert.Equal(t, "1 kg", v)
}
