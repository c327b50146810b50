package generate

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/reviewgen/internal/product"
)

// SystemPrompt is the persona sent with every generation call.
const SystemPrompt = "You are an elite SEO product review strategist who writes impeccable Markdown, respects factual accuracy, and supplies structured outputs for Discovery surfaces."

const structureRequirements = `Structure requirements:
- Start with one H1 title that contains the primary keyword.
- Open with a short introduction that states who the product is for.
- Use H2 sections for overview, key features, technical specifications, pros and cons, and final verdict.
- Add an FAQ section with three to five questions and concise answers.
- Finish with a line starting "Meta description:" of at most 160 characters.
- State only facts supported by the reference data or the product page; never invent prices or specifications.`

const imagePromptInstruction = `Image prompts:
- Where an illustration would help the reader, add a line of the form [IMAGE PROMPT: detailed description of the image].
- Place two to four such markers, each on its own line, describing composition, lighting and setting.`

// BuildPrompt renders a validated request into the canonical user prompt.
// Section order is fixed; absent data produces no text at all.
func BuildPrompt(req Request) string {
	var sections []string
	add := func(s string) {
		if s != "" {
			sections = append(sections, s)
		}
	}

	persona := []string{"Write a search-optimised product review article in Markdown."}
	if req.GeoFocus != "" {
		persona = append(persona, "Audience geo focus: "+req.GeoFocus)
	}
	if req.Locale != "" {
		persona = append(persona, "Write in locale: "+req.Locale)
	}
	if req.Tone != "" {
		persona = append(persona, "Tone: "+req.Tone)
	}
	add(strings.Join(persona, "\n"))

	add("Product URL: " + req.ProductURL)
	add(referenceBlock(req.ReferenceData))

	if len(req.TargetKeywords) > 0 {
		add("Target keywords (use each naturally, primary keyword first):\n" + bullets(req.TargetKeywords))
	}
	if len(req.CompetitorURLs) > 0 {
		add("Competitor pages to outperform (cover what they miss; never copy their wording):\n" + bullets(req.CompetitorURLs))
	}
	if len(req.AffiliateLinks) > 0 {
		lines := make([]string, len(req.AffiliateLinks))
		for i, l := range req.AffiliateLinks {
			lines[i] = fmt.Sprintf("- %s: %s", l.Platform, l.URL)
		}
		add("Affiliate links (weave each one into a relevant sentence as a Markdown link, keep every URL exactly as given, never dump them in a single list):\n" + strings.Join(lines, "\n"))
	}

	add(structureRequirements)
	if req.IncludeImagePrompts {
		add(imagePromptInstruction)
	}
	if req.CustomInstructions != "" {
		add("Additional instructions:\n" + req.CustomInstructions)
	}

	return strings.Join(sections, "\n\n")
}

func referenceBlock(r *product.Record) string {
	if r == nil {
		return ""
	}
	var lines []string
	if r.Title != "" {
		lines = append(lines, "Title: "+r.Title)
	}
	if r.Description != "" {
		lines = append(lines, "Description: "+r.Description)
	}
	if r.Price != "" {
		lines = append(lines, "Price: "+r.Price)
	}
	if len(r.Breadcrumbs) > 0 {
		lines = append(lines, "Category path: "+strings.Join(r.Breadcrumbs, " › "))
	}
	if len(r.Features) > 0 {
		lines = append(lines, "Features:\n"+bullets(r.Features))
	}
	if len(r.Technical) > 0 {
		specs := make([]string, len(r.Technical))
		for i, s := range r.Technical {
			specs[i] = fmt.Sprintf("- %s: %s", s.Label, s.Value)
		}
		lines = append(lines, "Technical specifications:\n"+strings.Join(specs, "\n"))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Reference data (verified facts from the product page):\n" + strings.Join(lines, "\n")
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}
