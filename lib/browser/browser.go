// Package browser wraps a chromedp-driven Chrome session behind the
// small set of primitives the portal scraper needs: navigation, form
// fill, clicks, page snapshots and network response capture.
//
// One Session maps to one browser and one main tab. The portal keeps
// per-session server state (cookies, current page), so a Session must
// never be shared between concurrent pipeline runs.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/browser")

const defaultStepTimeout = time.Second * 30

type Options struct {
	// CDP websocket url of a remote automation provider. When empty a
	// local headless Chrome is launched instead.
	RemoteURL string
	// show the browser window, local launches only
	Headful     bool
	UserAgent   string
	StepTimeout time.Duration
}

// Session owns a live browser connection and its main tab.
type Session struct {
	ctx         context.Context
	cancels     []context.CancelFunc
	stepTimeout time.Duration
}

// Connect establishes the automation channel and opens the main tab.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	stepTimeout := opts.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}

	var cancels []context.CancelFunc
	var allocCtx context.Context
	if opts.RemoteURL != "" {
		var cancel context.CancelFunc
		allocCtx, cancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
		cancels = append(cancels, cancel)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", !opts.Headful),
		)
		if opts.UserAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
		}
		var cancel context.CancelFunc
		allocCtx, cancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
		cancels = append(cancels, cancel)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancels = append(cancels, cancelBrowser)

	s := &Session{
		ctx:         browserCtx,
		cancels:     cancels,
		stepTimeout: stepTimeout,
	}

	// start the browser process / websocket now so connection failures
	// surface here instead of on the first navigation
	if err := s.run(ctx); err != nil {
		s.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to establish browser connection")
		return nil, fmt.Errorf("connect automation channel: %w", err)
	}
	return s, nil
}

// Close tears down the tab, the browser and the channel. Safe to call
// more than once.
func (s *Session) Close() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}

// run executes chromedp actions on the session tab, bounded by the
// step timeout and cancelled early if the caller's ctx is.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.stepTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()

	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Location returns the current url of the main tab.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	if err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (s *Session) Click(ctx context.Context, sel string) error {
	err := s.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
	if err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

// ClickNavigate clicks a control that triggers a page load and waits
// for the new document to become ready.
func (s *Session) ClickNavigate(ctx context.Context, sel string) error {
	ctx, span := tracer.Start(ctx, "ClickNavigate")
	defer span.End()

	err := s.run(ctx,
		chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(time.Millisecond*250),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "click navigation failed")
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (s *Session) SetValue(ctx context.Context, sel, value string) error {
	err := s.run(ctx, chromedp.SetValue(sel, value, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("set %s: %w", sel, err)
	}
	return nil
}

// SelectOption picks a <select> option by its value attribute and
// fires the change event the portal's postback scripts listen for.
func (s *Session) SelectOption(ctx context.Context, sel, value string) error {
	err := s.run(ctx,
		chromedp.SetValue(sel, value, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(
			`document.querySelector(%q).dispatchEvent(new Event("change", {bubbles: true}))`, sel,
		), nil),
	)
	if err != nil {
		return fmt.Errorf("select %s=%s: %w", sel, value, err)
	}
	return nil
}

// Value reads the current value property of a form element.
func (s *Session) Value(ctx context.Context, sel string) (string, error) {
	var value string
	err := s.run(ctx, chromedp.Value(sel, &value, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("read value %s: %w", sel, err)
	}
	return value, nil
}

// Exists reports whether sel matches anything on the current page
// without waiting for it to appear.
func (s *Session) Exists(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return false, fmt.Errorf("query %s: %w", sel, err)
	}
	return len(nodes) > 0, nil
}

// Attr reads an attribute of the first node matching sel; ok is false
// when the node or attribute is absent.
func (s *Session) Attr(ctx context.Context, sel, name string) (string, bool, error) {
	var value string
	var ok bool
	err := s.run(ctx, chromedp.AttributeValue(sel, name, &value, &ok, chromedp.ByQuery))
	if err != nil {
		return "", false, fmt.Errorf("read attr %s[%s]: %w", sel, name, err)
	}
	return value, ok, nil
}

// Snapshot parses the rendered document into goquery for extraction.
// Scrape logic works off snapshots so selector code stays ordinary
// HTML parsing instead of round-tripping the CDP connection per field.
func (s *Session) Snapshot(ctx context.Context) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "Snapshot")
	defer span.End()

	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to capture page html")
		return nil, fmt.Errorf("snapshot page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse page html")
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}

// Cookies returns the cookie header value for the given url, for
// handing the browser's session to a plain http client.
func (s *Session) Cookies(ctx context.Context, url string) (string, error) {
	var pairs []string
	err := s.run(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		cookies, err := getCookies(cctx, url)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			pairs = append(pairs, fmt.Sprintf("%s=%s", c.Name, c.Value))
		}
		return nil
	}))
	if err != nil {
		return "", fmt.Errorf("read cookies: %w", err)
	}
	return strings.Join(pairs, "; "), nil
}
