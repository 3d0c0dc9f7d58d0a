// Package registry scrapes the state Register of Wills estate-search
// portal: gate bypass, date-range search, per-filing detail and
// petition document retrieval.
//
// Scraping here is read-only: every method's output depends only on
// its input plus the gate state carried by the session.
package registry

import (
	"context"
	"net/url"
	"strings"
	"time"

	"estatescout-backend/lib/browser"
	"estatescout-backend/lib/captcha"
	"estatescout-backend/lib/restyutil"
	"estatescout-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/registry")

// Channel is the slice of the automation channel the scraper drives.
// browser.Session implements it; tests substitute a canned stub.
type Channel interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Click(ctx context.Context, sel string) error
	ClickNavigate(ctx context.Context, sel string) error
	SetValue(ctx context.Context, sel, value string) error
	SelectOption(ctx context.Context, sel, value string) error
	Value(ctx context.Context, sel string) (string, error)
	Exists(ctx context.Context, sel string) (bool, error)
	Attr(ctx context.Context, sel, name string) (string, bool, error)
	Snapshot(ctx context.Context) (*goquery.Document, error)
}

// portal page paths, relative to the base url
const (
	welcomePath   = "/RowNetWeb/Estates/frmWelcome.aspx"
	challengePath = "/RowNetWeb/Estates/frmVerify.aspx"
	searchPath    = "/RowNetWeb/Estates/frmEstateSearch.aspx"
)

// Every selector the scraper touches lives here. The portal's markup
// shifts under us a few times a year; adapting means editing this
// block, not the state machine.
const (
	selWelcomeContinue   = "#cphMain_btnContinue"
	selChallengeWidget   = "div.g-recaptcha"
	selChallengeResponse = "#g-recaptcha-response"
	selChallengeVerify   = "#cphMain_btnVerify"
	selSearchEntry       = "#cphMain_lnkEstateSearch"

	selCounty         = "#cphMain_ddlCountyId"
	selProceedingType = "#cphMain_ddlProceedingType"
	selDateFrom       = "#cphMain_txtFileDateFrom"
	selDateTo         = "#cphMain_txtFileDateTo"
	selSearchByRange  = "#cphMain_btnSearchByDate"

	selFileNumber   = "#cphMain_txtEstateNo"
	selSearchByFile = "#cphMain_btnSearchByNumber"

	selResultsSummary = "#cphMain_lblRecordCount"
	selNextPage       = "#cphMain_lnkNext"

	selDetailParties  = "#cphMain_pnlParties"
	selDetailDocument = "#cphMain_pnlDocuments"
)

// label of the attachment link that carries the filing's petition
const documentLabel = "Petition"

// State tracks whether the session is still behind the portal's entry
// gate. Only Bypass may run while gated.
type State int

const (
	StateGated State = iota
	StateReady
)

type Options struct {
	// portal origin, e.g. https://registers.example.gov
	BaseUrl string
	// the live session; nil only in tests that provide Channel
	Session *browser.Session
	// overrides Session as the scrape channel
	Channel Channel
	Solver  captcha.Solver
	// ceiling on waiting for an interactive challenge to resolve
	ChallengeTimeout time.Duration
}

type Client struct {
	ch      Channel
	session *browser.Session
	solver  captcha.Solver

	baseUrl          *url.URL
	challengeTimeout time.Duration
	download         *resty.Client

	state      State
	challenges int
}

func NewClient(opts Options) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	ch := opts.Channel
	if ch == nil {
		ch = opts.Session
	}

	challengeTimeout := opts.ChallengeTimeout
	if challengeTimeout <= 0 {
		challengeTimeout = time.Second * 20
	}

	// plain http fallback for document downloads, reusing the
	// browser's cookies; the portal sits behind the same bot screen
	// as everything else, hence the bypass transport
	download := resty.New()
	download.SetTimeout(time.Second * 60)
	download.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(download.GetClient().Transport)
	telemetry.InstrumentResty(download, "scrapers/registry")
	restyutil.RecordClient(download, restyInstrumentOutput)

	return &Client{
		ch:               ch,
		session:          opts.Session,
		solver:           opts.Solver,
		baseUrl:          baseUrl,
		challengeTimeout: challengeTimeout,
		download:         download,
	}, nil
}

func (c *Client) State() State {
	return c.state
}

func (c *Client) pageUrl(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.baseUrl.String()
	}
	return c.baseUrl.ResolveReference(ref).String()
}

// resolveHref turns an href into an absolute url. Relative hrefs
// resolve against the page they were found on, falling back to the
// portal origin.
func (c *Client) resolveHref(pageLocation, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	base := c.baseUrl
	if page, err := url.Parse(pageLocation); err == nil && page.Host != "" {
		base = page
	}
	return base.ResolveReference(ref).String()
}

func onPath(location, path string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Path, path)
}
