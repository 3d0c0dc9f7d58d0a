package registry

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"estatescout-backend/lib/dates"
	"estatescout-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FilingStub is one row of a search result: just enough identity to
// resolve the filing later. Field values are kept as the portal
// renders them.
type FilingStub struct {
	FileNumber  string
	FileDate    string
	FileName    string
	Proceeding  string
	DateOfDeath string
}

// CollectFilings searches one county + proceeding type over one
// date chunk and walks every result page. countyID and proceedingID
// are the portal's own select-option values.
func (c *Client) CollectFilings(ctx context.Context, chunk dates.Chunk, countyID, proceedingID string) ([]FilingStub, error) {
	ctx, span := tracer.Start(ctx, "client:CollectFilings")
	defer span.End()
	span.SetAttributes(
		attribute.String("chunk", chunk.String()),
		attribute.String("county", countyID),
	)

	if c.state != StateReady {
		return nil, ErrNotReady
	}

	// always safe to re-enter the search page
	if err := c.ch.Navigate(ctx, c.pageUrl(searchPath)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open search page")
		return nil, err
	}

	steps := []struct {
		sel   string
		value string
		fill  func(ctx context.Context, sel, value string) error
	}{
		{selCounty, countyID, c.ch.SelectOption},
		{selProceedingType, proceedingID, c.ch.SelectOption},
		{selDateFrom, dates.Format(chunk.From), c.ch.SetValue},
		{selDateTo, dates.Format(chunk.To), c.ch.SetValue},
	}
	for _, step := range steps {
		if err := step.fill(ctx, step.sel, step.value); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fill search form")
			return nil, err
		}
	}

	if err := c.ch.ClickNavigate(ctx, selSearchByRange); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search submit failed")
		return nil, err
	}

	var all []FilingStub
	lastEnd := 0
	for {
		doc, err := c.ch.Snapshot(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to snapshot results")
			return nil, err
		}

		switch classifyResults(doc) {
		case resultsNone:
			span.AddEvent("no records")
			return nil, nil
		case resultsRangeTooWide:
			span.SetStatus(codes.Error, ErrInvalidDateRange.Error())
			return nil, ErrInvalidDateRange
		}

		stubs := parseResultRows(doc)
		all = append(all, stubs...)

		end, total, ok := parseResultsSummary(resultsSummaryText(doc))
		if !ok {
			// rather a short list than an infinite pagination loop
			slog.WarnContext(ctx, "results summary unparsable, stopping pagination", "collected", len(all))
			break
		}
		if end >= total || end <= lastEnd {
			break
		}
		lastEnd = end

		slog.DebugContext(ctx, "paging search results", "shown", end, "total", total)
		if err := c.ch.ClickNavigate(ctx, selNextPage); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "next page failed")
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("filings", len(all)))
	return all, nil
}

type resultsKind int

const (
	resultsRows resultsKind = iota
	resultsNone
	resultsRangeTooWide
)

func classifyResults(doc *goquery.Document) resultsKind {
	text := strings.ToLower(doc.Find("body").Text())
	switch {
	case strings.Contains(text, "no records found"),
		strings.Contains(text, "no estates were found"):
		return resultsNone
	case strings.Contains(text, "cannot exceed one month"),
		strings.Contains(text, "exceeds one month"):
		return resultsRangeTooWide
	}
	return resultsRows
}

func cells(row *goquery.Selection) []string {
	var out []string
	row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
		out = append(out, htmlutil.CleanText(cell.Text()))
	})
	return out
}

func pick(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// parseResultRows extracts filing stubs from the results table. A row
// only qualifies when it carries a filing-selection control; the
// portal pads the table with notice rows that have none.
func parseResultRows(doc *goquery.Document) []FilingStub {
	var stubs []FilingStub

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return true
		}
		header := htmlutil.Table{Header: cells(rows.First())}
		fileCol := header.Col("estate number")
		if fileCol < 0 {
			fileCol = header.Col("file number")
		}
		if fileCol < 0 {
			return true
		}

		dateCol := header.Col("date of filing")
		if dateCol < 0 {
			dateCol = header.Col("file date")
		}
		nameCol := header.Col("name")
		proceedingCol := header.Col("type")
		deathCol := header.Col("date of death")

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			if row.Find("a[id*='Select'],input[id*='Select']").Length() == 0 {
				return
			}
			values := cells(row)
			fileNumber := pick(values, fileCol)
			if fileNumber == "" {
				return
			}
			stubs = append(stubs, FilingStub{
				FileNumber:  fileNumber,
				FileDate:    pick(values, dateCol),
				FileName:    pick(values, nameCol),
				Proceeding:  pick(values, proceedingCol),
				DateOfDeath: pick(values, deathCol),
			})
		})
		return false
	})

	return stubs
}

func resultsSummaryText(doc *goquery.Document) string {
	summary := doc.Find(selResultsSummary)
	if summary.Length() > 0 {
		return summary.Text()
	}
	return doc.Find("body").Text()
}

var summaryPattern = regexp.MustCompile(`(?i)records?\s+(\d+)\s+(?:to|through|-)\s+(\d+)\s+of\s+(\d+)`)

// parseResultsSummary reads "Records 1 to 20 of 57" style counts. ok
// is false when the summary is missing or garbled; callers treat that
// as "no more pages".
func parseResultsSummary(s string) (shownEnd, total int, ok bool) {
	groups := summaryPattern.FindStringSubmatch(s)
	if len(groups) != 4 {
		return 0, 0, false
	}
	end, err := strconv.Atoi(groups[2])
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(groups[3])
	if err != nil {
		return 0, 0, false
	}
	return end, total, true
}
