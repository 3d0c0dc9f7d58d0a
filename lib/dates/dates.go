package dates

import (
	"fmt"
	"time"
)

// Layout is the date format the record portal uses everywhere:
// search fields, result rows and petition documents.
const Layout = "01/02/2006"

// force a fixed zone so chunk math doesn't shift across midnight
// when the process lands in a different region than the portal
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
}

func Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected MM/DD/YYYY", s)
	}
	return t, nil
}

func Format(t time.Time) string {
	return t.Format(Layout)
}

// Chunk is a sub-range of a requested date range that fits inside a
// single calendar month, the widest span the portal accepts per search.
type Chunk struct {
	From time.Time
	To   time.Time
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s-%s", Format(c.From), Format(c.To))
}

func endOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// SplitMonthly cuts [from, to] into consecutive chunks, each contained
// within one calendar month. The chunks cover the range exactly, with
// no gaps and no overlap.
func SplitMonthly(from, to time.Time) ([]Chunk, error) {
	if from.After(to) {
		return nil, fmt.Errorf("from date %s is after to date %s", Format(from), Format(to))
	}

	var chunks []Chunk
	cursor := from
	for {
		end := endOfMonth(cursor)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, Chunk{From: cursor, To: end})
		if !end.Before(to) {
			return chunks, nil
		}
		cursor = end.AddDate(0, 0, 1)
	}
}
