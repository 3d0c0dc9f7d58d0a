package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText collapses the whitespace soup that comes out of rendered
// table cells into something comparable.
func CleanText(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || c == ' ' {
			newStr.WriteRune(c)
		}
	}
	out := strings.TrimSpace(newStr.String())
	return innerWhitespace.ReplaceAllString(out, " ")
}

type Anchor struct {
	Name string
	Href string
}

// FindAnchor returns the first link under sel whose visible text
// matches label case-insensitively, or nil when absent.
func FindAnchor(sel *goquery.Selection, label string) *Anchor {
	var found *Anchor
	sel.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		name := CleanText(a.Text())
		if !strings.EqualFold(name, label) {
			return true
		}
		found = &Anchor{
			Name: name,
			Href: a.AttrOr("href", ""),
		}
		return false
	})
	return found
}

// Table is an extracted HTML table: a normalized header row plus one
// string slice per body row.
type Table struct {
	Header []string
	Rows   [][]string
}

// Col returns the index of the first header cell containing name
// (case-insensitive substring match), or -1.
func (t Table) Col(name string) int {
	for i, h := range t.Header {
		if strings.Contains(strings.ToLower(h), strings.ToLower(name)) {
			return i
		}
	}
	return -1
}

func rowCells(row *goquery.Selection) []string {
	var cells []string
	row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, CleanText(cell.Text()))
	})
	return cells
}

// ExtractTable finds the first table in doc whose header row satisfies
// match. Record pages vary in column count and order, so callers key
// off header names instead of positions.
func ExtractTable(doc *goquery.Document, match func(header []string) bool) *Table {
	var found *Table
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return true
		}
		header := rowCells(rows.First())
		if !match(header) {
			return true
		}

		out := &Table{Header: header}
		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := rowCells(row)
			if len(cells) > 0 {
				out.Rows = append(out.Rows, cells)
			}
		})
		found = out
		return false
	})
	return found
}

// LabeledValue scans text for a line of the form "Label: value" and
// returns the value, or "" when the label never appears.
func LabeledValue(text, label string) string {
	pattern, err := regexp.Compile(`(?im)^\s*` + regexp.QuoteMeta(label) + `\s*:\s*(.+)$`)
	if err != nil {
		return ""
	}
	groups := pattern.FindStringSubmatch(text)
	if len(groups) < 2 {
		return ""
	}
	return CleanText(groups[1])
}
