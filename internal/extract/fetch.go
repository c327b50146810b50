package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"
)

// page is the raw markup delivered for one fetch, decoded to UTF-8.
type page struct {
	finalURL    string
	contentType string
	body        io.Reader
}

func (e *Extractor) fetch(ctx context.Context, target string) (*page, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &ExtractionError{URL: target, Reason: InvalidURL, Err: err}
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en;q=0.8,*;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ExtractionError{URL: target, Reason: classifyNetErr(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ExtractionError{
			URL:        target,
			Reason:     BadStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		return nil, &ExtractionError{
			URL:    target,
			Reason: Unparseable,
			Err:    fmt.Errorf("unsupported content type %q", contentType),
		}
	}

	// Read the whole capped body inside the deadline so a slow body surfaces
	// as a timeout rather than a truncated parse.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	if err != nil {
		return nil, &ExtractionError{URL: target, Reason: classifyNetErr(err), Err: err}
	}

	body, err := charset.NewReader(strings.NewReader(string(raw)), contentType)
	if err != nil {
		return nil, &ExtractionError{URL: target, Reason: Unparseable, Err: err}
	}

	return &page{
		finalURL:    resp.Request.URL.String(),
		contentType: contentType,
		body:        body,
	}, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func classifyNetErr(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	return FetchFailed
}
