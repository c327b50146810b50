package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reviewgen/internal/spell"
)

func TestDirectiveFlagsForm(t *testing.T) {
	d := directiveFlags{
		geo:          "Portugal",
		locale:       "pt-PT",
		keywords:     "a, b",
		affiliates:   []string{"Amazon=https://amzn.to/x", "Shopee = https://shope.ee/y"},
		imagePrompts: true,
	}
	form, err := d.form("https://shop.example/w")
	require.NoError(t, err)

	req := form.Request()
	assert.Equal(t, "https://shop.example/w", req.ProductURL)
	assert.Equal(t, []string{"a", "b"}, req.TargetKeywords)
	require.Len(t, req.AffiliateLinks, 2)
	assert.Equal(t, "Shopee", req.AffiliateLinks[1].Platform)
	assert.True(t, req.IncludeImagePrompts)

	d.affiliates = []string{"no-separator"}
	_, err = d.form("https://shop.example/w")
	assert.Error(t, err)
}

func TestPrintSpelling(t *testing.T) {
	var buf bytes.Buffer
	printSpelling(&buf, []spell.Issue{}, nil)
	assert.Contains(t, buf.String(), "No spelling concerns flagged.")

	buf.Reset()
	printSpelling(&buf, []spell.Issue{{Word: "recieve", Suggestions: []string{"receive"}}, {Word: "zzq"}}, nil)
	assert.Contains(t, buf.String(), "recieve: receive")
	assert.Contains(t, buf.String(), "zzq: No suggestions available.")

	buf.Reset()
	printSpelling(&buf, nil, errors.New("timeout"))
	assert.Contains(t, buf.String(), "Spell check unavailable: timeout")
}
