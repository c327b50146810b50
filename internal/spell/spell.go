// Package spell audits generated Markdown for misspellings through an
// external grammar service.
package spell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
	"github.com/TobiSchelling/reviewgen/internal/config"
)

const maxSuggestions = 5

// ErrDisabled is wrapped by the AuditError a Disabled auditor returns.
var ErrDisabled = errors.New("spell check disabled in configuration")

// Issue is one flagged word with up to five replacements.
type Issue struct {
	Word        string   `json:"word"`
	Suggestions []string `json:"suggestions"`
}

// AuditError means the audit could not be performed. It never means the
// text is clean.
type AuditError struct {
	Err error
}

func (e *AuditError) Error() string     { return "spell audit unavailable: " + e.Err.Error() }
func (e *AuditError) Unwrap() error     { return e.Err }
func (e *AuditError) Kind() apperr.Kind { return apperr.KindAudit }

// Auditor checks text for misspellings. An empty, non-nil result means the
// audit ran and found nothing.
type Auditor interface {
	Audit(ctx context.Context, text string) ([]Issue, error)
}

// Disabled is the Auditor used when spell checking is switched off.
type Disabled struct{}

func (Disabled) Audit(context.Context, string) ([]Issue, error) {
	return nil, &AuditError{Err: ErrDisabled}
}

// LanguageTool is an Auditor backed by the LanguageTool /v2/check API.
type LanguageTool struct {
	Endpoint string
	Language string
	Username string
	APIKey   string
	client   *http.Client
}

// NewLanguageTool creates a client. Premium credentials are optional.
func NewLanguageTool(endpoint, language, username, apiKey string, timeout time.Duration) *LanguageTool {
	if language == "" {
		language = "auto"
	}
	return &LanguageTool{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Language: language,
		Username: username,
		APIKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// FromConfig builds the configured Auditor, reading credentials from the
// environment variables the config names.
func FromConfig(cfg config.Spellcheck) Auditor {
	if !cfg.Enabled {
		return Disabled{}
	}
	return NewLanguageTool(cfg.Endpoint, cfg.Language, os.Getenv(cfg.UsernameEnv), os.Getenv(cfg.APIKeyEnv), cfg.Timeout())
}

type checkResponse struct {
	Matches []struct {
		Offset       int `json:"offset"`
		Length       int `json:"length"`
		Replacements []struct {
			Value string `json:"value"`
		} `json:"replacements"`
		Rule struct {
			ID        string `json:"id"`
			IssueType string `json:"issueType"`
			Category  struct {
				ID string `json:"id"`
			} `json:"category"`
		} `json:"rule"`
	} `json:"matches"`
}

// Audit reduces markdown to prose, submits it once and returns the
// misspellings in the order the service reports them.
func (lt *LanguageTool) Audit(ctx context.Context, markdown string) ([]Issue, error) {
	prose := Prose(markdown)
	if strings.TrimSpace(prose) == "" {
		return []Issue{}, nil
	}

	form := url.Values{}
	form.Set("text", prose)
	form.Set("language", lt.Language)
	if lt.Username != "" && lt.APIKey != "" {
		form.Set("username", lt.Username)
		form.Set("apiKey", lt.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lt.Endpoint+"/v2/check", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuditError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := lt.client.Do(req)
	if err != nil {
		return nil, &AuditError{Err: fmt.Errorf("languagetool request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &AuditError{Err: fmt.Errorf("languagetool returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var result checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &AuditError{Err: fmt.Errorf("decoding languagetool response: %w", err)}
	}

	// Offsets count UTF-16 code units.
	units := utf16.Encode([]rune(prose))
	issues := []Issue{}
	for _, m := range result.Matches {
		if m.Rule.IssueType != "misspelling" && m.Rule.Category.ID != "TYPOS" {
			continue
		}
		if m.Offset < 0 || m.Length <= 0 || m.Offset+m.Length > len(units) {
			continue
		}
		issue := Issue{
			Word:        string(utf16.Decode(units[m.Offset : m.Offset+m.Length])),
			Suggestions: []string{},
		}
		for _, r := range m.Replacements {
			if len(issue.Suggestions) == maxSuggestions {
				break
			}
			issue.Suggestions = append(issue.Suggestions, r.Value)
		}
		issues = append(issues, issue)
	}

	log.Debug().
		Int("matches", len(result.Matches)).
		Int("issues", len(issues)).
		Dur("duration", time.Since(start)).
		Msg("spell audit complete")
	return issues, nil
}
