package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/codes"
)

// Page is an auxiliary tab in the session's browser. Document
// downloads run in their own tab so a botched viewer page can't strand
// the main tab mid-pipeline.
type Page struct {
	ctx         context.Context
	cancel      context.CancelFunc
	stepTimeout time.Duration
}

func (s *Session) NewPage(ctx context.Context) (*Page, error) {
	pageCtx, cancel := chromedp.NewContext(s.ctx)

	p := &Page{
		ctx:         pageCtx,
		cancel:      cancel,
		stepTimeout: s.stepTimeout,
	}
	// materialize the tab
	if err := p.run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("open auxiliary page: %w", err)
	}
	return p, nil
}

func (p *Page) Close() {
	p.cancel()
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.stepTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Attr reads an attribute of the first node matching sel on this page.
func (p *Page) Attr(ctx context.Context, sel, name string) (string, bool, error) {
	var value string
	var ok bool
	err := p.run(ctx, chromedp.AttributeValue(sel, name, &value, &ok, chromedp.ByQuery))
	if err != nil {
		return "", false, fmt.Errorf("read attr %s[%s]: %w", sel, name, err)
	}
	return value, ok, nil
}

// ResponseMatch decides whether a network response is the document a
// capture is waiting for.
type ResponseMatch func(url, contentType string) bool

// CaptureResponse navigates the page to url and returns the body of
// the first response matched by match. The portal serves documents
// through a viewer that buries the binary behind redirects, so the
// body is lifted straight off the network layer instead of scraping
// the rendered page.
func (p *Page) CaptureResponse(ctx context.Context, url string, match ResponseMatch) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "CaptureResponse")
	defer span.End()

	var mu sync.Mutex
	var requestID network.RequestID
	found := make(chan struct{})

	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		res, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if requestID != "" {
			return
		}
		if match(res.Response.URL, strings.ToLower(res.Response.MimeType)) {
			requestID = res.RequestID
			close(found)
		}
	})

	err := p.run(ctx,
		network.Enable(),
		chromedp.Navigate(url),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture navigation failed")
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	select {
	case <-found:
	case <-time.After(p.stepTimeout):
		return nil, fmt.Errorf("no matching response within %s", p.stepTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	id := requestID
	mu.Unlock()

	var body []byte
	err = p.run(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(cctx)
		return err
	}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read response body")
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func getCookies(cctx context.Context, url string) ([]*network.Cookie, error) {
	return network.GetCookies().WithURLs([]string{url}).Do(cctx)
}
