package registry

import (
	"context"
	"fmt"
	"strings"

	"estatescout-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Party is one row of a filing's party table.
type Party struct {
	Name        string
	Role        string
	DateOfDeath string
}

// FilingDetail is everything worth keeping from a filing's detail
// page. DocumentRef is the absolute url of the petition document, ""
// when the filing has none attached.
type FilingDetail struct {
	Parties      []Party
	FileDate     string
	EstateClosed string
	Judge        string
	Attorney     string
	DocumentRef  string
}

// Decedent returns the party filed as the decedent, if present.
func (d FilingDetail) Decedent() *Party {
	for i, p := range d.Parties {
		if strings.Contains(strings.ToLower(p.Role), "decedent") {
			return &d.Parties[i]
		}
	}
	return nil
}

// ResolveFiling looks one filing up by its exact number and extracts
// its detail record.
func (c *Client) ResolveFiling(ctx context.Context, fileNumber, countyID string) (FilingDetail, error) {
	ctx, span := tracer.Start(ctx, "client:ResolveFiling")
	defer span.End()
	span.SetAttributes(attribute.String("file_number", fileNumber))

	if c.state != StateReady {
		return FilingDetail{}, ErrNotReady
	}

	if err := c.ch.Navigate(ctx, c.pageUrl(searchPath)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open search page")
		return FilingDetail{}, err
	}
	if err := c.ch.SelectOption(ctx, selCounty, countyID); err != nil {
		return FilingDetail{}, err
	}
	if err := c.ch.SetValue(ctx, selFileNumber, fileNumber); err != nil {
		return FilingDetail{}, err
	}
	if err := c.ch.ClickNavigate(ctx, selSearchByFile); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file number lookup failed")
		return FilingDetail{}, err
	}

	doc, err := c.ch.Snapshot(ctx)
	if err != nil {
		return FilingDetail{}, err
	}

	// an exact number sometimes still lands on a results list; click
	// through the matching row
	if sel := selectLinkForFile(doc, fileNumber); sel != "" {
		if err := c.ch.ClickNavigate(ctx, sel); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to open filing from results list")
			return FilingDetail{}, err
		}
		doc, err = c.ch.Snapshot(ctx)
		if err != nil {
			return FilingDetail{}, err
		}
	}

	detail := parseFilingDetail(doc)
	if detail.DocumentRef != "" {
		loc, err := c.ch.Location(ctx)
		if err != nil {
			return FilingDetail{}, err
		}
		detail.DocumentRef = c.resolveHref(loc, detail.DocumentRef)
	}
	span.SetAttributes(
		attribute.Int("parties", len(detail.Parties)),
		attribute.Bool("has_document", detail.DocumentRef != ""),
	)
	return detail, nil
}

// selectLinkForFile returns a css selector for the select control of
// the results row holding fileNumber, or "" when the page is not a
// results list.
func selectLinkForFile(doc *goquery.Document, fileNumber string) string {
	var sel string
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if !strings.Contains(htmlutil.CleanText(row.Text()), fileNumber) {
			return true
		}
		link := row.Find("a[id*='Select'],input[id*='Select']").First()
		if link.Length() == 0 {
			return true
		}
		id := link.AttrOr("id", "")
		if id == "" {
			return true
		}
		sel = fmt.Sprintf("#%s", id)
		return false
	})
	return sel
}

// parseFilingDetail extracts parties, labeled metadata and the
// document reference from a detail page.
func parseFilingDetail(doc *goquery.Document) FilingDetail {
	detail := FilingDetail{}

	// party tables vary in column count across record eras; detection
	// is by header names, never position
	table := htmlutil.ExtractTable(doc, func(header []string) bool {
		t := htmlutil.Table{Header: header}
		return t.Col("party") >= 0 && t.Col("role") >= 0
	})
	if table != nil {
		nameCol := table.Col("party")
		roleCol := table.Col("role")
		deathCol := table.Col("date of death")
		for _, row := range table.Rows {
			name := pick(row, nameCol)
			if name == "" {
				continue
			}
			detail.Parties = append(detail.Parties, Party{
				Name:        name,
				Role:        pick(row, roleCol),
				DateOfDeath: pick(row, deathCol),
			})
		}
	}

	text := doc.Find("body").Text()
	detail.FileDate = htmlutil.LabeledValue(text, "Date of Filing")
	detail.EstateClosed = htmlutil.LabeledValue(text, "Estate Closed")
	detail.Judge = htmlutil.LabeledValue(text, "Judge")
	detail.Attorney = htmlutil.LabeledValue(text, "Attorney")

	if anchor := htmlutil.FindAnchor(doc.Selection, documentLabel); anchor != nil {
		detail.DocumentRef = anchor.Href
	}
	return detail
}
