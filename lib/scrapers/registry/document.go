package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"estatescout-backend/lib/browser"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func looksLikePDF(url, contentType string) bool {
	if strings.Contains(contentType, "application/pdf") {
		return true
	}
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(strings.ToLower(trimmed), ".pdf")
}

type fetchStrategy struct {
	name string
	fn   func(ctx context.Context, page *browser.Page, ref string) ([]byte, error)
}

// FetchDocument downloads the binary content behind a document
// reference. Retrieval happens in an auxiliary page so viewer side
// effects never touch the session's main tab. Strategies are tried in
// order until one yields content; exhausting them is
// ErrDocumentUnavailable.
func (c *Client) FetchDocument(ctx context.Context, ref string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "client:FetchDocument")
	defer span.End()

	if ref == "" {
		return nil, ErrDocumentUnavailable
	}
	if c.session == nil {
		return nil, fmt.Errorf("document retrieval needs a live browser session")
	}

	page, err := c.session.NewPage(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open auxiliary page")
		return nil, err
	}
	defer page.Close()

	strategies := []fetchStrategy{
		{"embed-source", c.fetchViaEmbedSource},
		{"network-capture", c.fetchViaNetworkCapture},
		{"direct-download", c.fetchViaDirectDownload},
	}

	for _, strategy := range strategies {
		body, err := strategy.fn(ctx, page, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.DebugContext(ctx, "document fetch strategy failed",
				"strategy", strategy.name, "ref", ref, "err", err)
			continue
		}
		span.SetAttributes(
			attribute.String("strategy", strategy.name),
			attribute.Int("bytes", len(body)),
		)
		return body, nil
	}

	span.SetStatus(codes.Error, "all fetch strategies exhausted")
	return nil, fmt.Errorf("%w: %s", ErrDocumentUnavailable, ref)
}

// fetchViaEmbedSource opens the viewer page, finds the embedded
// viewer's direct source url and re-navigates to it to capture the
// raw body.
func (c *Client) fetchViaEmbedSource(ctx context.Context, page *browser.Page, ref string) ([]byte, error) {
	if err := page.Navigate(ctx, ref); err != nil {
		return nil, err
	}

	var src string
	for _, sel := range []string{"embed", "iframe", "object"} {
		attr := "src"
		if sel == "object" {
			attr = "data"
		}
		value, ok, err := page.Attr(ctx, sel, attr)
		if err == nil && ok && value != "" {
			src = value
			break
		}
	}
	if src == "" {
		return nil, fmt.Errorf("no embedded viewer on %s", ref)
	}

	return page.CaptureResponse(ctx, c.resolveHref(ref, src), looksLikePDF)
}

// fetchViaNetworkCapture reloads the reference while watching network
// responses for anything that looks like the document.
func (c *Client) fetchViaNetworkCapture(ctx context.Context, page *browser.Page, ref string) ([]byte, error) {
	return page.CaptureResponse(ctx, ref, looksLikePDF)
}

// fetchViaDirectDownload asks for the reference over plain http,
// reusing the browser's cookies. Last resort for portal revisions
// that serve the file as a straight attachment.
func (c *Client) fetchViaDirectDownload(ctx context.Context, _ *browser.Page, ref string) ([]byte, error) {
	cookies, err := c.session.Cookies(ctx, ref)
	if err != nil {
		return nil, err
	}

	res, err := c.download.R().
		SetContext(ctx).
		SetHeader("cookie", cookies).
		Get(ref)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("download %s: status %d", ref, res.StatusCode())
	}
	body := res.Body()
	if !looksLikePDF(ref, strings.ToLower(res.Header().Get("content-type"))) && !strings.HasPrefix(string(body), "%PDF") {
		return nil, fmt.Errorf("download %s: not a document", ref)
	}
	return body, nil
}
